// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/semdex/internal/config"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, embedder credentials, data directory, disk space and a running server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("address")
			if addr == "" {
				addr = a.v.GetString("networking.listen")
			}
			return a.runDoctor(cmd, addr)
		},
	}

	cmd.Flags().String("address", "", "server address to check (default networking.listen)")
	return cmd
}

func (a *app) runDoctor(cmd *cobra.Command, addr string) error {
	dataDir := a.dataDir()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Server", func() string { return checkServer(addr) }},
		{"Config", a.checkConfig},
		{"Embedders", a.checkEmbedders},
		{"Data Dir", func() string { return checkDataDir(dataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

// dataDir expands storage.data_dir without validating the rest of the
// configuration, so doctor still reports on a broken config.
func (a *app) dataDir() string {
	cfg := &config.Config{Storage: config.StorageConfig{DataDir: a.v.GetString("storage.data_dir")}}
	dir, err := cfg.DataDir()
	if err != nil {
		return cfg.Storage.DataDir
	}
	return dir
}

func checkBinary() string {
	return fmt.Sprintf("semdex %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkServer(addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newAPIClient(addr).getJSON("/health", &body); err != nil {
		if semerr.HasCode(err, semerr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'semdex serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func (a *app) checkConfig() string {
	source := "using defaults (no config file found)"
	if f := a.v.ConfigFileUsed(); f != "" {
		source = "loaded from " + f
	}
	if _, err := a.config(); err != nil {
		return fmt.Sprintf("%s, invalid: %s", source, err)
	}
	return source
}

func (a *app) checkEmbedders() string {
	names := make([]string, 0, len(embedderFactories))
	for name := range embedderFactories {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		state := "no api key"
		if a.v.GetString("providers."+name+".api_key") != "" {
			state = "api key set"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, state))
	}
	return strings.Join(parts, ", ")
}

func checkDataDir(dataDir string) string {
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return fmt.Sprintf("%s (not created yet)", dataDir)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "catalog.db")); err == nil {
		return fmt.Sprintf("%s (catalog present)", dataDir)
	}
	return fmt.Sprintf("%s (no catalog yet)", dataDir)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to the home directory before the data dir exists.
		path, _ = os.UserHomeDir()
	}

	avail, err := diskAvailable(path)
	if err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}
	return formatBytes(avail) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
