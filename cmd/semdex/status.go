// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/semdex/internal/indexer"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func newStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running server",
		Long:  "Check a running server's health endpoint and report on its active index.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("address")
			if addr == "" {
				addr = a.v.GetString("networking.listen")
			}
			return runStatus(cmd, addr)
		},
	}

	cmd.Flags().String("address", "", "server address (default networking.listen)")
	return cmd
}

func runStatus(cmd *cobra.Command, addr string) error {
	out := cmd.OutOrStdout()
	c := newAPIClient(addr)

	var health struct {
		Status string `json:"status"`
	}
	if err := c.getJSON("/health", &health); err != nil {
		if semerr.HasCode(err, semerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, health.Status)

	var st indexer.Status
	err := c.getJSON("/api/v1/indexes/active", &st)
	var apiErr *apiError
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(out, "Active index: %s (%s), %d indexed, %d stale, indexing=%t\n",
			st.Name, st.IndexID, st.Items.Indexed, st.Items.Stale, st.Indexing)
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		_, _ = fmt.Fprintln(out, "Active index: none")
	default:
		_, _ = fmt.Fprintf(out, "Active index: %s\n", err)
	}
	return nil
}
