// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/semdex/internal/indexer"
)

type hitView struct {
	Record recordView `json:"record" yaml:"record"`
	Score  float64    `json:"score" yaml:"score"`
}

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>...",
		Short: "Semantic search over the active index",
		Long:  "Embed the query text and return matching ready records, best match first.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			ref, _ := cmd.Flags().GetString("index")

			return a.withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				var (
					ranked []indexer.RankedRecord
					err    error
				)
				if ref == "" {
					ranked, err = rt.engine.QueryActive(ctx, text)
				} else {
					idx, rerr := resolveIndex(ctx, rt.engine, ref)
					if rerr != nil {
						return rerr
					}
					ranked, err = rt.engine.Query(ctx, idx.ID, text)
				}
				if err != nil {
					return err
				}

				hits := make([]hitView, 0, len(ranked))
				for _, r := range ranked {
					hits = append(hits, hitView{Record: toRecordView(r.Record), Score: r.Score})
				}
				return render(cmd, hits, func(w io.Writer) {
					row(w, "SCORE", "ID", "TITLE")
					for _, h := range hits {
						row(w, fmt.Sprintf("%.4f", h.Score), h.Record.ID, h.Record.Title)
					}
				})
			})
		},
	}

	cmd.Flags().String("index", "", "query this index (id or name) instead of the active one")
	return cmd
}
