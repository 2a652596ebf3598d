// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"

	"github.com/sigil-dev/semdex/internal/config"
	"github.com/sigil-dev/semdex/internal/embed"
	"github.com/sigil-dev/semdex/internal/embed/google"
	"github.com/sigil-dev/semdex/internal/embed/openai"
	"github.com/sigil-dev/semdex/internal/indexer"
	"github.com/sigil-dev/semdex/internal/metrics"
	"github.com/sigil-dev/semdex/internal/redact"
	"github.com/sigil-dev/semdex/internal/scheduler"
	"github.com/sigil-dev/semdex/internal/store"
	_ "github.com/sigil-dev/semdex/internal/store/sqlite" // registers the sqlite backend
	"github.com/sigil-dev/semdex/internal/vector"
	"github.com/sigil-dev/semdex/internal/vector/sqlitevec"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// embedderFactory builds an embedder from its provider credentials.
type embedderFactory func(pc config.ProviderConfig) (embed.Embedder, error)

// embedderFactories maps provider names to constructors. Tests replace
// entries to avoid network calls.
var embedderFactories = map[string]embedderFactory{
	openai.Name: func(pc config.ProviderConfig) (embed.Embedder, error) {
		e, err := openai.New(openai.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
		if err != nil {
			return nil, err
		}
		return e, nil
	},
	google.Name: func(pc config.ProviderConfig) (embed.Embedder, error) {
		e, err := google.New(google.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
		if err != nil {
			return nil, err
		}
		return e, nil
	},
}

// registerEmbedders creates an embedder for every provider with an API key.
// Providers without one are skipped.
func registerEmbedders(reg *embed.Registry, cfg *config.Config) error {
	names := make([]string, 0, len(embedderFactories))
	for name := range embedderFactories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc, ok := cfg.Provider(name)
		if !ok {
			slog.Debug("embedder not configured, skipping", "embedder", name)
			continue
		}
		e, err := embedderFactories[name](pc)
		if err != nil {
			return semerr.Wrapf(err, semerr.CodeCLISetupFailure, "creating embedder %s", name)
		}
		if err := reg.Register(e); err != nil {
			return err
		}
		slog.Debug("embedder registered", "embedder", name)
	}
	return nil
}

// appRuntime holds the stores and services built from one configuration.
type appRuntime struct {
	cfg       *config.Config
	catalog   store.Catalog
	vectors   store.VectorStore
	embedders *embed.Registry
	providers *vector.Registry
	engine    *indexer.Engine
	metrics   *metrics.Metrics
}

// openRuntime opens the stores under the data directory and wires the
// embedders, the vector providers and the engine on top of them.
func openRuntime(cfg *config.Config) (*appRuntime, error) {
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeCLISetupFailure, "creating data directory %s", dataDir)
	}

	r := &appRuntime{
		cfg:       cfg,
		embedders: embed.NewRegistry(),
		providers: vector.NewRegistry(),
		metrics:   metrics.New(),
	}
	if err := r.open(dataDir); err != nil {
		if cerr := r.Close(); cerr != nil {
			slog.Warn("closing partially opened stores failed", "error", cerr)
		}
		return nil, err
	}
	return r, nil
}

// open fills in r. On error, whatever was opened stays on r for Close.
func (r *appRuntime) open(dataDir string) error {
	cfg := r.cfg
	storageCfg := &store.StorageConfig{Backend: cfg.Storage.Backend}

	var err error
	if r.catalog, err = store.NewCatalog(storageCfg, dataDir); err != nil {
		return err
	}
	if r.vectors, err = store.NewVectorStore(storageCfg, dataDir); err != nil {
		return err
	}
	if err := registerEmbedders(r.embedders, cfg); err != nil {
		return err
	}

	local := sqlitevec.New(r.vectors, r.embedders, sqlitevec.Options{
		Embedder:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Limit:      cfg.Indexing.SearchLimit,
	})
	if err := r.providers.Register(sqlitevec.Name, local); err != nil {
		return err
	}

	opts := []indexer.Option{indexer.WithSyncObserver(r.metrics)}
	mode, err := redact.ParseMode(cfg.Indexing.Redaction)
	if err != nil {
		return err
	}
	if mode != redact.ModeOff {
		scanner, err := redact.New(mode)
		if err != nil {
			return err
		}
		opts = append(opts, indexer.WithTextFilter(scanner))
	}

	r.engine = indexer.New(r.catalog, r.providers, indexer.Config{
		BatchSize: cfg.Indexing.BatchSize,
		LeaseTTL:  cfg.Indexing.LeaseTTL,
	}, opts...)
	return nil
}

// Close waits for background syncs, then closes the stores.
func (r *appRuntime) Close() error {
	if r.engine != nil {
		r.engine.Close()
	}
	var errs []error
	if r.vectors != nil {
		errs = append(errs, r.vectors.Close())
	}
	if r.catalog != nil {
		errs = append(errs, r.catalog.Close())
	}
	return errors.Join(errs...)
}

// newScheduler debounces sync requests for the active index.
func (r *appRuntime) newScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	ix := r.cfg.Indexing
	return scheduler.New(ctx, scheduler.Config{
		Debounce:    ix.Debounce,
		MaxDebounce: ix.MaxDebounce,
		MaxRetries:  ix.MaxRetries,
		RetryDelay:  ix.RetryDelay,
	}, func(ctx context.Context) error {
		res, err := r.engine.SyncActive(ctx)
		if res != nil {
			slog.Info("scheduled sync finished", "index_id", res.IndexID, "indexed", res.Indexed,
				"skipped", res.Skipped, "failed_batches", res.FailedBatches)
		}
		return err
	})
}

// syncTrigger routes REST sync requests: the active index goes through the
// debounced scheduler, any other index syncs once in the background.
type syncTrigger struct {
	engine *indexer.Engine
	sched  *scheduler.Scheduler
}

func (t *syncTrigger) TriggerSync(ctx context.Context, indexID string) error {
	idx, err := t.engine.GetIndex(ctx, indexID)
	if err != nil {
		return err
	}
	if idx.Active {
		t.sched.RequestRun()
		return nil
	}
	t.engine.SyncInBackground(ctx, indexID)
	return nil
}
