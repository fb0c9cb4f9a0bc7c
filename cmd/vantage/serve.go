package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/vantage/internal/api"
	"github.com/seantiz/vantage/internal/cache"
	"github.com/seantiz/vantage/internal/config"
	"github.com/seantiz/vantage/internal/dispatch"
	"github.com/seantiz/vantage/internal/engine"
	"github.com/seantiz/vantage/internal/executor"
	"github.com/seantiz/vantage/internal/function"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/store"
	"github.com/seantiz/vantage/internal/telemetry"
	"github.com/seantiz/vantage/internal/upstream"
	"github.com/seantiz/vantage/internal/upstream/httpapi"
)

const (
	serviceName     = "vantage"
	janitorInterval = time.Minute
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides VANTAGE_LISTEN_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(os.Stdout, cfg.Level())

	logger.Info("vantage: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"datasources", len(cfg.Datasources),
	)

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("shut down tracing", "error", err)
		}
	}()

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sources := upstream.NewRegistry()
	var clients []*httpapi.Client
	for _, uc := range cfg.Upstreams() {
		client, err := httpapi.New(uc)
		if err != nil {
			return fmt.Errorf("configure datasource %s: %w", uc.Name, err)
		}
		sources.Register(uc.Name, client)
		clients = append(clients, client)
		logger.Info("datasource registered", "datasource", uc.Name, "url", client.Info().URL)
	}

	execs, err := executor.NewRegistry(cfg.Executor(), executor.WithLogger(logger))
	if err != nil {
		return err
	}
	results, err := cache.New[[]model.Output]("results", cfg.Cache())
	if err != nil {
		return err
	}

	functions := function.NewRegistry(function.Env{
		Upstream:  sources,
		Executors: execs,
		Cache:     results,
	}, function.Builtins()...)
	dispatcher := dispatch.New(functions, execs, dispatch.WithFailFast(cfg.CompositeFailFast))
	eng := engine.NewEngine(db, dispatcher, logger, engine.WithTimeout(cfg.RequestTimeout))

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, logger, execs, results, clients)

	srv := api.NewServer(cfg.ListenAddr, api.Deps{
		Store:       db,
		Engine:      eng,
		Functions:   functions,
		Datasources: sources,
		Executors:   execs,
		Cache:       results,
	}, logger)

	runErr := srv.Run()

	// Let background invocations record their outcome before the store closes.
	eng.Wait()
	return runErr
}

// runJanitor drops idle executor pairs, expired cache entries and idle
// account limiters until ctx ends.
func runJanitor(ctx context.Context, logger *slog.Logger, execs *executor.Registry, results *cache.Cache[[]model.Output], clients []*httpapi.Client) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pairs := execs.Sweep()
			entries := results.Purge()
			limiters := 0
			for _, c := range clients {
				limiters += c.PurgeLimiters()
			}
			if pairs > 0 || entries > 0 || limiters > 0 {
				logger.Debug("janitor sweep", "pairs_evicted", pairs, "entries_expired", entries, "limiters_dropped", limiters)
			}
		}
	}
}
