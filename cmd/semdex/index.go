// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/semdex/internal/indexer"
	"github.com/sigil-dev/semdex/internal/store"
	"github.com/sigil-dev/semdex/internal/vector/sqlitevec"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// indexView is the CLI representation of an index.
type indexView struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Provider      string         `json:"provider" yaml:"provider"`
	Options       map[string]any `json:"provider_config,omitempty" yaml:"provider_config,omitempty"`
	Active        bool           `json:"active" yaml:"active"`
	Indexing      bool           `json:"indexing" yaml:"indexing"`
	IndexedCount  int            `json:"indexed_count" yaml:"indexed_count"`
	LastIndexedAt *time.Time     `json:"last_indexed_at,omitempty" yaml:"last_indexed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
}

func toIndexView(idx *store.Index) indexView {
	return indexView{
		ID:            idx.ID,
		Name:          idx.Name,
		Provider:      idx.Provider,
		Options:       idx.ProviderConfig,
		Active:        idx.Active,
		Indexing:      idx.Indexing,
		IndexedCount:  idx.IndexedCount,
		LastIndexedAt: idx.LastIndexedAt,
		CreatedAt:     idx.CreatedAt,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

// withRuntime opens the runtime for the duration of fn.
func (a *app) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *appRuntime) error) (err error) {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), rt)
}

// resolveIndex accepts an index id or name.
func resolveIndex(ctx context.Context, engine *indexer.Engine, ref string) (*store.Index, error) {
	idx, err := engine.GetIndex(ctx, ref)
	if err == nil || !semerr.IsNotFound(err) {
		return idx, err
	}
	indexes, lerr := engine.ListIndexes(ctx)
	if lerr != nil {
		return nil, lerr
	}
	for _, candidate := range indexes {
		if candidate.Name == ref {
			return candidate, nil
		}
	}
	return nil, err
}

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage search indexes",
		Long:  "Create, inspect, activate, sync and delete search indexes. Indexes are addressed by id or name.",
	}

	cmd.AddCommand(
		newIndexCreateCmd(a),
		newIndexListCmd(a),
		newIndexStatusCmd(a),
		newIndexActivateCmd(a),
		newIndexDeactivateCmd(a),
		newIndexSyncCmd(a),
		newIndexDeleteCmd(a),
	)
	return cmd
}

func newIndexCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an inactive index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			activate, _ := cmd.Flags().GetBool("activate")

			opts := map[string]any{}
			if embedder, _ := cmd.Flags().GetString("embedder"); embedder != "" {
				opts["embedder"] = embedder
			}
			if model, _ := cmd.Flags().GetString("model"); model != "" {
				opts["model"] = model
			}
			if dims, _ := cmd.Flags().GetInt("dimensions"); dims > 0 {
				opts["dimensions"] = dims
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
				opts["limit"] = limit
			}
			if len(opts) == 0 {
				opts = nil
			}

			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				idx, err := rt.engine.CreateIndex(ctx, indexer.CreateIndexParams{
					Name:           args[0],
					Provider:       provider,
					ProviderConfig: opts,
				})
				if err != nil {
					return err
				}
				if activate {
					// Activation starts a sync that Close waits for.
					if err := rt.engine.Activate(ctx, idx.ID); err != nil {
						return err
					}
					idx.Active = true
				}
				return render(cmd, toIndexView(idx), func(w io.Writer) {
					row(w, "ID", "NAME", "PROVIDER", "ACTIVE")
					row(w, idx.ID, idx.Name, idx.Provider, idx.Active)
				})
			})
		},
	}

	cmd.Flags().String("provider", sqlitevec.Name, "vector provider")
	cmd.Flags().String("embedder", "", "embedder override (default from embedding.provider)")
	cmd.Flags().String("model", "", "embedding model override")
	cmd.Flags().Int("dimensions", 0, "embedding dimensions override")
	cmd.Flags().Int("limit", 0, "maximum results per query")
	cmd.Flags().Bool("activate", false, "activate and sync the index after creating it")
	return cmd
}

func newIndexListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				indexes, err := rt.engine.ListIndexes(ctx)
				if err != nil {
					return err
				}
				views := make([]indexView, 0, len(indexes))
				for _, idx := range indexes {
					views = append(views, toIndexView(idx))
				}
				return render(cmd, views, func(w io.Writer) {
					row(w, "ID", "NAME", "PROVIDER", "ACTIVE", "INDEXED", "LAST SYNC")
					for _, v := range views {
						row(w, v.ID, v.Name, v.Provider, v.Active, v.IndexedCount, formatTime(v.LastIndexedAt))
					}
				})
			})
		},
	}
}

func newIndexStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [index]",
		Short: "Show the status of an index, or of the active one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				var (
					st  *indexer.Status
					err error
				)
				if len(args) == 0 {
					st, err = rt.engine.ActiveStatus(ctx)
				} else {
					var idx *store.Index
					if idx, err = resolveIndex(ctx, rt.engine, args[0]); err == nil {
						st, err = rt.engine.Status(ctx, idx.ID)
					}
				}
				if err != nil {
					return err
				}
				return render(cmd, st, func(w io.Writer) {
					row(w, "ID", st.IndexID)
					row(w, "NAME", st.Name)
					row(w, "PROVIDER", st.Provider)
					row(w, "ACTIVE", st.Active)
					row(w, "INDEXING", st.Indexing)
					row(w, "INDEXED COUNT", st.IndexedCount)
					row(w, "LAST SYNC", formatTime(st.LastIndexedAt))
					row(w, "ITEMS", fmt.Sprintf("indexed=%d stale=%d indexing=%d orphaned=%d",
						st.Items.Indexed, st.Items.Stale, st.Items.Indexing, st.Items.Orphaned))
					if st.LeaseOwner != "" {
						row(w, "LEASE", fmt.Sprintf("%s until %s", st.LeaseOwner, formatTime(st.LeaseExpiresAt)))
					}
				})
			})
		},
	}
}

func newIndexActivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <index>",
		Short: "Make the index the only active one and sync it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				idx, err := resolveIndex(ctx, rt.engine, args[0])
				if err != nil {
					return err
				}
				if err := rt.engine.Activate(ctx, idx.ID); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Index %s (%s) is active; syncing.\n", idx.Name, idx.ID)
				return err
			})
		},
	}
}

func newIndexDeactivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <index>",
		Short: "Deactivate an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				idx, err := resolveIndex(ctx, rt.engine, args[0])
				if err != nil {
					return err
				}
				if err := rt.engine.Deactivate(ctx, idx.ID); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Index %s (%s) is inactive.\n", idx.Name, idx.ID)
				return err
			})
		},
	}
}

func newIndexSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [index]",
		Short: "Reconcile an index with the records now, defaulting to the active one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all && len(args) > 0 {
				return semerr.New(semerr.CodeCLIInputInvalid, "--all cannot be combined with an index argument")
			}

			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				var results []*indexer.SyncResult
				switch {
				case all:
					var err error
					if results, err = syncAll(ctx, rt.engine); err != nil {
						return err
					}
				case len(args) == 1:
					idx, err := resolveIndex(ctx, rt.engine, args[0])
					if err != nil {
						return err
					}
					res, err := rt.engine.Sync(ctx, idx.ID)
					if err != nil {
						return err
					}
					results = append(results, res)
				default:
					res, err := rt.engine.SyncActive(ctx)
					if err != nil {
						return err
					}
					if res == nil {
						return semerr.New(semerr.CodeIndexerNoActiveIndex, "no active index")
					}
					results = append(results, res)
				}

				return render(cmd, results, func(w io.Writer) {
					row(w, "INDEX", "SKIPPED", "ORPHANS", "DISCOVERED", "INDEXED", "MISSING", "WITHHELD", "FAILED BATCHES", "TOTAL", "DURATION")
					for _, r := range results {
						row(w, r.IndexID, r.Skipped, r.OrphansRemoved, r.Discovered, r.Indexed, r.Missing,
							r.Withheld, r.FailedBatches, r.IndexedCount, r.Duration.Round(time.Millisecond))
					}
				})
			})
		},
	}

	cmd.Flags().Bool("all", false, "sync every index, active or not")
	return cmd
}

// syncAll syncs every index concurrently. Runs of different indexes do not
// share a lane.
func syncAll(ctx context.Context, engine *indexer.Engine) ([]*indexer.SyncResult, error) {
	indexes, err := engine.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*indexer.SyncResult, len(indexes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, idx := range indexes {
		g.Go(func() error {
			res, err := engine.Sync(gctx, idx.ID)
			if err != nil {
				return semerr.Wrapf(err, semerr.CodeIndexerSyncFailure, "syncing index %s", idx.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func newIndexDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete an index and its provider data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				idx, err := resolveIndex(ctx, rt.engine, args[0])
				if err != nil {
					return err
				}
				if err := rt.engine.Delete(ctx, idx.ID); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted index %s (%s).\n", idx.Name, idx.ID)
				return err
			})
		},
	}
}
