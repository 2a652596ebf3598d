// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/semdex/internal/indexer"
	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Index endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-indexes",
		Method:      http.MethodGet,
		Path:        "/api/v1/indexes",
		Summary:     "List indexes",
		Tags:        []string{"indexes"},
	}, s.handleListIndexes)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-index",
		Method:        http.MethodPost,
		Path:          "/api/v1/indexes",
		Summary:       "Create an inactive index",
		Tags:          []string{"indexes"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateIndex)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-active-index",
		Method:      http.MethodGet,
		Path:        "/api/v1/indexes/active",
		Summary:     "Status of the active index",
		Tags:        []string{"indexes"},
	}, s.handleActiveStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-index",
		Method:      http.MethodGet,
		Path:        "/api/v1/indexes/{id}",
		Summary:     "Index status",
		Tags:        []string{"indexes"},
	}, s.handleGetIndex)

	huma.Register(s.api, huma.Operation{
		OperationID: "activate-index",
		Method:      http.MethodPost,
		Path:        "/api/v1/indexes/{id}/activate",
		Summary:     "Make the index the only active one and sync it",
		Tags:        []string{"indexes"},
	}, s.handleActivateIndex)

	huma.Register(s.api, huma.Operation{
		OperationID: "deactivate-index",
		Method:      http.MethodPost,
		Path:        "/api/v1/indexes/{id}/deactivate",
		Summary:     "Deactivate the index",
		Tags:        []string{"indexes"},
	}, s.handleDeactivateIndex)

	huma.Register(s.api, huma.Operation{
		OperationID:   "sync-index",
		Method:        http.MethodPost,
		Path:          "/api/v1/indexes/{id}/sync",
		Summary:       "Request a sync",
		Description:   "Returns immediately; the sync runs in the background.",
		Tags:          []string{"indexes"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleSyncIndex)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-index",
		Method:        http.MethodDelete,
		Path:          "/api/v1/indexes/{id}",
		Summary:       "Delete the index and its provider data",
		Tags:          []string{"indexes"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteIndex)

	// Search
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Semantic search over the active index, or the given one",
		Tags:        []string{"search"},
	}, s.handleSearch)

	// Record endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-record",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{id}",
		Summary:     "Get a record",
		Tags:        []string{"records"},
	}, s.handleGetRecord)

	huma.Register(s.api, huma.Operation{
		OperationID: "put-record",
		Method:      http.MethodPut,
		Path:        "/api/v1/records/{id}",
		Summary:     "Create or replace a record",
		Tags:        []string{"records"},
	}, s.handlePutRecord)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-record",
		Method:        http.MethodDelete,
		Path:          "/api/v1/records/{id}",
		Summary:       "Delete a record",
		Tags:          []string{"records"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteRecord)

	huma.Register(s.api, huma.Operation{
		OperationID:   "mark-records-stale",
		Method:        http.MethodPost,
		Path:          "/api/v1/records/stale",
		Summary:       "Flag records for re-embedding",
		Tags:          []string{"records"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleMarkStale)

	if s.services.embedders != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "list-embedders",
			Method:      http.MethodGet,
			Path:        "/api/v1/embedders",
			Summary:     "Embedder health",
			Tags:        []string{"system"},
		}, s.handleListEmbedders)
	}
}

// --- Request/Response types for huma ---

type indexIDInput struct {
	ID string `path:"id" doc:"Index identifier"`
}

type listIndexesOutput struct {
	Body struct {
		Indexes []IndexSummary `json:"indexes"`
	}
}

type createIndexInput struct {
	Body struct {
		Name           string         `json:"name" minLength:"1" doc:"Unique index name"`
		Provider       string         `json:"provider" minLength:"1" doc:"Vector provider name" example:"sqlitevec"`
		ProviderConfig map[string]any `json:"provider_config,omitempty" doc:"Provider options (embedder, model, dimensions, limit)"`
	}
}

type indexOutput struct {
	Body IndexSummary
}

type statusOutput struct {
	Body indexer.Status
}

type acceptedOutput struct {
	Body struct {
		Status string `json:"status" example:"accepted"`
	}
}

type searchInput struct {
	Body struct {
		Query   string `json:"query" minLength:"1" doc:"Free-text query"`
		IndexID string `json:"index_id,omitempty" doc:"Query this index instead of the active one"`
	}
}

type searchOutput struct {
	Body struct {
		Results []SearchHit `json:"results"`
	}
}

type recordIDInput struct {
	ID string `path:"id" doc:"Record identifier"`
}

type putRecordInput struct {
	ID   string `path:"id" doc:"Record identifier"`
	Body struct {
		Title string `json:"title,omitempty"`
		Body  string `json:"body,omitempty"`
		Ready bool   `json:"ready" doc:"Whether the record should be indexed"`
	}
}

type recordOutput struct {
	Body RecordDetail
}

type markStaleInput struct {
	Body struct {
		IDs []string `json:"ids" minItems:"1" doc:"Record identifiers"`
	}
}

type listEmbeddersOutput struct {
	Body struct {
		Embedders []EmbedderHealthDetail `json:"embedders"`
	}
}

// --- Handlers ---

func (s *Server) handleListIndexes(ctx context.Context, _ *struct{}) (*listIndexesOutput, error) {
	indexes, err := s.services.indexes.ListIndexes(ctx)
	if err != nil {
		return nil, toHumaError(err, "listing indexes")
	}
	out := &listIndexesOutput{}
	out.Body.Indexes = make([]IndexSummary, 0, len(indexes))
	for _, idx := range indexes {
		out.Body.Indexes = append(out.Body.Indexes, toIndexSummary(idx))
	}
	return out, nil
}

func (s *Server) handleCreateIndex(ctx context.Context, input *createIndexInput) (*indexOutput, error) {
	idx, err := s.services.indexes.CreateIndex(ctx, indexer.CreateIndexParams{
		Name:           input.Body.Name,
		Provider:       input.Body.Provider,
		ProviderConfig: input.Body.ProviderConfig,
	})
	if err != nil {
		return nil, toHumaError(err, "creating index")
	}
	return &indexOutput{Body: toIndexSummary(idx)}, nil
}

func (s *Server) handleActiveStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	st, err := s.services.indexes.ActiveStatus(ctx)
	if err != nil {
		return nil, toHumaError(err, "reading active index")
	}
	return &statusOutput{Body: *st}, nil
}

func (s *Server) handleGetIndex(ctx context.Context, input *indexIDInput) (*statusOutput, error) {
	st, err := s.services.indexes.Status(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err, "reading index")
	}
	return &statusOutput{Body: *st}, nil
}

func (s *Server) handleActivateIndex(ctx context.Context, input *indexIDInput) (*statusOutput, error) {
	if err := s.services.indexes.Activate(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "activating index")
	}
	return s.handleGetIndex(ctx, input)
}

func (s *Server) handleDeactivateIndex(ctx context.Context, input *indexIDInput) (*statusOutput, error) {
	if err := s.services.indexes.Deactivate(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "deactivating index")
	}
	return s.handleGetIndex(ctx, input)
}

func (s *Server) handleSyncIndex(ctx context.Context, input *indexIDInput) (*acceptedOutput, error) {
	if err := s.services.sync.TriggerSync(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "requesting sync")
	}
	out := &acceptedOutput{}
	out.Body.Status = "accepted"
	return out, nil
}

func (s *Server) handleDeleteIndex(ctx context.Context, input *indexIDInput) (*struct{}, error) {
	if err := s.services.indexes.Delete(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "deleting index")
	}
	return nil, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	var (
		ranked []indexer.RankedRecord
		err    error
	)
	if input.Body.IndexID != "" {
		ranked, err = s.services.indexes.Query(ctx, input.Body.IndexID, input.Body.Query)
	} else {
		ranked, err = s.services.indexes.QueryActive(ctx, input.Body.Query)
	}
	if err != nil {
		return nil, toHumaError(err, "searching")
	}

	out := &searchOutput{}
	out.Body.Results = make([]SearchHit, 0, len(ranked))
	for _, r := range ranked {
		out.Body.Results = append(out.Body.Results, SearchHit{Record: toRecordDetail(r.Record), Score: r.Score})
	}
	return out, nil
}

func (s *Server) handleGetRecord(ctx context.Context, input *recordIDInput) (*recordOutput, error) {
	rec, err := s.services.records.Get(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err, "reading record")
	}
	return &recordOutput{Body: toRecordDetail(rec)}, nil
}

func (s *Server) handlePutRecord(ctx context.Context, input *putRecordInput) (*recordOutput, error) {
	rec := &store.Record{
		ID:    input.ID,
		Title: input.Body.Title,
		Body:  input.Body.Body,
		Ready: input.Body.Ready,
	}
	if err := s.services.records.Put(ctx, rec); err != nil {
		return nil, toHumaError(err, "writing record")
	}
	return &recordOutput{Body: toRecordDetail(rec)}, nil
}

func (s *Server) handleDeleteRecord(ctx context.Context, input *recordIDInput) (*struct{}, error) {
	if err := s.services.records.Delete(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "deleting record")
	}
	return nil, nil
}

func (s *Server) handleMarkStale(ctx context.Context, input *markStaleInput) (*acceptedOutput, error) {
	if err := s.services.records.MarkChanged(ctx, input.Body.IDs); err != nil {
		return nil, toHumaError(err, "marking records stale")
	}
	out := &acceptedOutput{}
	out.Body.Status = "accepted"
	return out, nil
}

func (s *Server) handleListEmbedders(_ context.Context, _ *struct{}) (*listEmbeddersOutput, error) {
	snapshot := s.services.embedders.HealthSnapshot()

	out := &listEmbeddersOutput{}
	out.Body.Embedders = make([]EmbedderHealthDetail, 0, len(snapshot))
	for name, m := range snapshot {
		out.Body.Embedders = append(out.Body.Embedders, EmbedderHealthDetail{Embedder: name, Metrics: m})
	}
	sort.Slice(out.Body.Embedders, func(i, j int) bool {
		return out.Body.Embedders[i].Embedder < out.Body.Embedders[j].Embedder
	})
	return out, nil
}

// toHumaError maps a coded error to an HTTP error. 5xx responses hide the
// underlying message; it is logged instead.
func toHumaError(err error, op string) error {
	status := semerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "code", semerr.CodeOf(err), "error", err)
		return huma.NewError(status, op+" failed")
	}
	return huma.NewError(status, err.Error())
}
