// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/semdex/internal/events"
	"github.com/sigil-dev/semdex/internal/records"
	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// recordView is the CLI representation of a record.
type recordView struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Body      string    `json:"body" yaml:"body"`
	Ready     bool      `json:"ready" yaml:"ready"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

func toRecordView(rec *store.Record) recordView {
	return recordView{
		ID:        rec.ID,
		Title:     rec.Title,
		Body:      rec.Body,
		Ready:     rec.Ready,
		UpdatedAt: rec.UpdatedAt,
	}
}

// pendingRun remembers whether a listener asked for a sync.
type pendingRun struct {
	requested atomic.Bool
}

func (p *pendingRun) RequestRun() { p.requested.Store(true) }

// withRecords runs fn against a records service whose events reach the
// index listeners, as they do under serve. With sync set, a requested run
// of the active index happens before returning.
func (a *app) withRecords(cmd *cobra.Command, fn func(ctx context.Context, svc *records.Service) error) error {
	sync, _ := cmd.Flags().GetBool("sync")

	return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
		bus := events.NewBus()
		pending := &pendingRun{}
		events.RegisterIndexListeners(bus, pending, rt.engine)

		err := fn(ctx, records.New(rt.catalog.Records(), bus))
		// Close waits for the listeners, including stale marking.
		bus.Close()
		if err != nil {
			return err
		}

		if !pending.requested.Load() {
			return nil
		}
		if !sync {
			slog.Debug("sync requested; run 'semdex index sync' or pass --sync")
			return nil
		}
		res, err := rt.engine.SyncActive(ctx)
		if err != nil {
			return err
		}
		if res != nil {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Synced index %s: %d indexed, %d total.\n",
				res.IndexID, res.Indexed, res.IndexedCount)
		}
		return err
	})
}

func newRecordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage canonical records",
		Long:  "Write, read and delete the records that indexes are built from.",
	}

	cmd.AddCommand(
		newRecordPutCmd(a),
		newRecordGetCmd(a),
		newRecordDeleteCmd(a),
		newRecordStaleCmd(a),
	)
	return cmd
}

func addSyncFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("sync", false, "sync the active index before returning")
}

func newRecordPutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <id>",
		Short: "Create or replace a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			body, _ := cmd.Flags().GetString("body")
			bodyFile, _ := cmd.Flags().GetString("body-file")
			ready, _ := cmd.Flags().GetBool("ready")

			if bodyFile != "" {
				if body != "" {
					return semerr.New(semerr.CodeCLIInputInvalid, "--body and --body-file are mutually exclusive")
				}
				var (
					data []byte
					err  error
				)
				if bodyFile == "-" {
					data, err = io.ReadAll(cmd.InOrStdin())
				} else {
					data, err = os.ReadFile(bodyFile)
				}
				if err != nil {
					return semerr.Wrapf(err, semerr.CodeCLIInputInvalid, "reading body from %s", bodyFile)
				}
				body = string(data)
			}

			rec := &store.Record{ID: args[0], Title: title, Body: body, Ready: ready}
			return a.withRecords(cmd, func(ctx context.Context, svc *records.Service) error {
				if err := svc.Put(ctx, rec); err != nil {
					return err
				}
				return render(cmd, toRecordView(rec), func(w io.Writer) {
					row(w, "ID", "TITLE", "READY")
					row(w, rec.ID, rec.Title, rec.Ready)
				})
			})
		},
	}

	cmd.Flags().String("title", "", "record title")
	cmd.Flags().String("body", "", "record body")
	cmd.Flags().String("body-file", "", "read the body from a file, - for stdin")
	cmd.Flags().Bool("ready", false, "mark the record ready for indexing")
	addSyncFlag(cmd)
	return cmd
}

func newRecordGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				rec, err := records.New(rt.catalog.Records(), nil).Get(ctx, args[0])
				if err != nil {
					return err
				}
				v := toRecordView(rec)
				return render(cmd, v, func(w io.Writer) {
					row(w, "ID", v.ID)
					row(w, "TITLE", v.Title)
					row(w, "READY", v.Ready)
					row(w, "UPDATED", v.UpdatedAt.Local().Format(time.RFC3339))
					row(w, "BODY", v.Body)
				})
			})
		},
	}
}

func newRecordDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record; indexes drop it on their next sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRecords(cmd, func(ctx context.Context, svc *records.Service) error {
				if err := svc.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted record %s.\n", args[0])
				return err
			})
		},
	}
	addSyncFlag(cmd)
	return cmd
}

func newRecordStaleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale <id>...",
		Short: "Flag records for re-embedding in every index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRecords(cmd, func(ctx context.Context, svc *records.Service) error {
				if err := svc.MarkChanged(ctx, args); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Flagged %d record(s) as changed.\n", len(args))
				return err
			})
		},
	}
	addSyncFlag(cmd)
	return cmd
}
