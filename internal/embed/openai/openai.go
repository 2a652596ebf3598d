// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"
	"slices"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/semdex/internal/embed"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
	"github.com/sigil-dev/semdex/pkg/health"
)

// Name is the registry name of the OpenAI embedder.
const Name = "openai"

// Config holds OpenAI embedder configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	// MaxRetries overrides the SDK's retry count when non-nil.
	MaxRetries *int
}

// Embedder implements embed.Embedder using the OpenAI Embeddings API.
type Embedder struct {
	client openaisdk.Client
	health *embed.HealthTracker
}

var _ embed.Embedder = (*Embedder)(nil)

// New creates a new OpenAI embedder. Returns an error if the API key is missing.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, semerr.New(semerr.CodeEmbedRequestInvalid, "openai: missing api_key in config",
			semerr.FieldEmbedder(Name))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}

	tracker, err := embed.NewHealthTracker(embed.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}

	return &Embedder{client: openaisdk.NewClient(opts...), health: tracker}, nil
}

func (e *Embedder) Name() string { return Name }

func (e *Embedder) Health() health.Metrics { return e.health.Metrics() }

// Embed sends all texts in a single request.
func (e *Embedder) Embed(ctx context.Context, model string, texts []string, dims int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		return nil, semerr.New(semerr.CodeEmbedRequestInvalid, "openai: model is required", semerr.FieldEmbedder(Name))
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(model),
	}
	if dims > 0 {
		params.Dimensions = openaisdk.Int(int64(dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		e.health.RecordFailure()
		return nil, semerr.Wrapf(err, semerr.CodeEmbedUpstreamFailure, "openai: embedding %d texts", len(texts))
	}

	if len(resp.Data) != len(texts) {
		e.health.RecordFailure()
		return nil, semerr.Errorf(semerr.CodeEmbedResponseInvalid,
			"openai: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openaisdk.Embedding) int { return int(a.Index - b.Index) })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = embed.ToFloat32(d.Embedding)
	}

	e.health.RecordSuccess()
	return out, nil
}
