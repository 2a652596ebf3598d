// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package indexer

import (
	"context"
	"slices"
	"strings"

	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// RankedRecord is a query hit resolved to its canonical record.
type RankedRecord struct {
	Record *store.Record `json:"record" yaml:"record"`
	Score  float64       `json:"score" yaml:"score"`
}

// QueryActive queries the active index.
func (e *Engine) QueryActive(ctx context.Context, text string) ([]RankedRecord, error) {
	idx, err := e.activeIndex(ctx)
	if err != nil {
		return nil, err
	}
	return e.query(ctx, idx, text)
}

// Query returns the ready records matching text, best first. Hits whose
// record no longer resolves are dropped; equal scores keep provider order.
func (e *Engine) Query(ctx context.Context, indexID, text string) ([]RankedRecord, error) {
	idx, err := e.indexes.GetIndex(ctx, indexID)
	if err != nil {
		return nil, err
	}
	return e.query(ctx, idx, text)
}

func (e *Engine) query(ctx context.Context, idx *store.Index, text string) ([]RankedRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, semerr.New(semerr.CodeIndexerQueryInvalid, "query text is required", semerr.FieldIndexID(idx.ID))
	}

	provider, cfg, err := e.providerFor(idx)
	if err != nil {
		return nil, err
	}

	matches, err := provider.EmbedAndSearch(ctx, text, cfg)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []RankedRecord{}, nil
	}

	externalIDs := make([]string, len(matches))
	for i, m := range matches {
		externalIDs[i] = m.ID
	}
	recordIDs, err := e.items.ResolveExternalIDs(ctx, idx.ID, externalIDs)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recordIDs))
	for _, id := range recordIDs {
		ids = append(ids, id)
	}
	records, err := e.records.GetReadyRecords(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]RankedRecord, 0, len(matches))
	for _, m := range matches {
		rec, ok := records[recordIDs[m.ID]]
		if !ok {
			continue
		}
		out = append(out, RankedRecord{Record: rec, Score: m.Score})
	}

	slices.SortStableFunc(out, func(a, b RankedRecord) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}
