package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	spawnmgr "github.com/axondata/go-spawnmgr"
	"github.com/axondata/go-spawnmgr/internal/config"
	"github.com/axondata/go-spawnmgr/internal/logging"
)

func newSpawnCmd(cfg *config.Config) *cobra.Command {
	var (
		user    string
		group   string
		timeout time.Duration
		metrics string
	)

	cmd := &cobra.Command{
		Use:   "spawn APP_ROOT...",
		Short: "Start the spawn server and spawn one worker per application root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Address = metrics
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSpawn(cmd, cfg, args, spawnmgr.SpawnRequest{User: user, Group: group}, timeout)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User the workers run as (server default if empty)")
	cmd.Flags().StringVar(&group, "group", "", "Group the workers run as (server default if empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-application spawn timeout")
	cmd.Flags().StringVar(&metrics, "metrics-addr", "", "Serve Prometheus metrics on this address while running (METRICS_ADDR)")
	return cmd
}

func runSpawn(cmd *cobra.Command, cfg *config.Config, roots []string, tmpl spawnmgr.SpawnRequest, timeout time.Duration) error {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	if cfg.Metrics.Address != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	mgr, err := spawnmgr.New(cfg.Spawn.Server,
		spawnmgr.WithInterpreter(cfg.Spawn.Interpreter),
		spawnmgr.WithLogFile(cfg.Spawn.LogFile),
		spawnmgr.WithEnvironment(cfg.Spawn.Environment),
		spawnmgr.WithEnvironmentVariable(cfg.Spawn.EnvironmentVariable),
		spawnmgr.WithPIDFile(cfg.Spawn.PIDFile),
		spawnmgr.WithShutdownTimeout(cfg.Spawn.ShutdownTimeout),
		spawnmgr.WithLogger(logger),
		spawnmgr.WithMetrics(spawnmgr.NewMetrics(registry)),
	)
	if err != nil {
		return fmt.Errorf("starting spawn server: %w", err)
	}
	defer func() { _ = mgr.Close() }()

	out := cmd.OutOrStdout()
	var failed int
	for _, root := range roots {
		req := tmpl
		req.AppRoot = root

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		handle, err := mgr.Spawn(ctx, req)
		cancel()
		if err != nil {
			failed++
			logger.Error("spawn failed", zap.String("app_root", root), zap.Error(err))
			continue
		}

		addr := "-"
		if ln, err := handle.Listener(); err == nil {
			addr = ln.Addr().String()
			_ = ln.Close()
		}
		fmt.Fprintf(out, "%s\t%d\t%s\n", handle.AppRoot(), handle.PID(), addr)
		_ = handle.Close()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d spawns failed", failed, len(roots))
	}
	return nil
}
