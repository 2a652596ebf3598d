// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/sigil-dev/semdex/internal/embed"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
	"github.com/sigil-dev/semdex/pkg/health"
)

// Name is the registry name of the Gemini embedder.
const Name = "google"

// Config holds Google embedder configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Embedder implements embed.Embedder using the Gemini embedding API.
type Embedder struct {
	client *genai.Client
	health *embed.HealthTracker
}

var _ embed.Embedder = (*Embedder)(nil)

// New creates a new Google embedder. Returns an error if the API key is missing.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, semerr.New(semerr.CodeEmbedRequestInvalid, "google: missing api_key in config",
			semerr.FieldEmbedder(Name))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeEmbedUpstreamFailure, "google: creating client")
	}

	tracker, err := embed.NewHealthTracker(embed.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}

	return &Embedder{client: client, health: tracker}, nil
}

func (e *Embedder) Name() string { return Name }

func (e *Embedder) Health() health.Metrics { return e.health.Metrics() }

// Embed sends all texts as one batch, each as its own content.
func (e *Embedder) Embed(ctx context.Context, model string, texts []string, dims int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		return nil, semerr.New(semerr.CodeEmbedRequestInvalid, "google: model is required", semerr.FieldEmbedder(Name))
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var cfg *genai.EmbedContentConfig
	if dims > 0 {
		d := int32(dims)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &d}
	}

	resp, err := e.client.Models.EmbedContent(ctx, model, contents, cfg)
	if err != nil {
		e.health.RecordFailure()
		return nil, semerr.Wrapf(err, semerr.CodeEmbedUpstreamFailure, "google: embedding %d texts", len(texts))
	}

	if len(resp.Embeddings) != len(texts) {
		e.health.RecordFailure()
		return nil, semerr.Errorf(semerr.CodeEmbedResponseInvalid,
			"google: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			e.health.RecordFailure()
			return nil, semerr.Errorf(semerr.CodeEmbedResponseInvalid, "google: empty embedding at position %d", i)
		}
		out[i] = emb.Values
	}

	e.health.RecordSuccess()
	return out, nil
}
