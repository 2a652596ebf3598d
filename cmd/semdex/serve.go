// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/semdex/internal/events"
	"github.com/sigil-dev/semdex/internal/records"
	"github.com/sigil-dev/semdex/internal/server"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and keep the active index in sync",
		Long:  "Open the stores, start the debounced sync scheduler and serve the REST API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = a.v.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) (err error) {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	// Shutdown runs in reverse: HTTP first (Serve returns), then the bus so
	// no new requests arrive, then the scheduler flush, then the engine and
	// the stores.
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sched, err := rt.newScheduler(ctx)
	if err != nil {
		return err
	}
	defer sched.Close()

	bus := events.NewBus()
	defer bus.Close()
	events.RegisterIndexListeners(bus, sched, rt.engine)

	svc, err := server.NewServices(rt.engine, &syncTrigger{engine: rt.engine, sched: sched},
		records.New(rt.catalog.Records(), bus), rt.embedders)
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
		Version:     version,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimit.RequestsPerSecond,
			Burst:             cfg.Networking.RateLimit.Burst,
		},
	}
	if cfg.Networking.Metrics {
		srvCfg.Metrics = rt.metrics.Handler()
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	srv.RegisterServices(svc)

	ln, err := net.Listen("tcp", cfg.Networking.Listen)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeServerStartFailure, "listening on %s", cfg.Networking.Listen)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "semdex listening on %s\n", ln.Addr())

	// Catch up on anything written while the server was down.
	sched.RequestRun()

	if err := srv.Serve(ctx, ln); err != nil {
		return err
	}
	slog.Info("shutting down")
	return nil
}
