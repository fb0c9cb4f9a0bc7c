// fakeupstream serves a deterministic monitoring API for local development.
// Usage: go run ./cmd/fakeupstream --addr :9100 --latency 50ms
package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/vantage/internal/upstream/fake"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr    string
		token   string
		latency time.Duration
	)

	cmd := &cobra.Command{
		Use:          "fakeupstream",
		Short:        "Serve a fake monitoring API",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

			cfg := fake.DefaultConfig()
			cfg.Token = token
			cfg.Latency = latency

			srv := &http.Server{
				Addr:              addr,
				Handler:           fake.NewServer(cfg),
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("fakeupstream: listening",
				"addr", addr,
				"metrics", len(cfg.Metrics),
				"entities", len(cfg.Entities),
				"latency", latency.String(),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9100", "listen address")
	cmd.Flags().StringVar(&token, "token", "", "bearer token required on every request")
	cmd.Flags().DurationVar(&latency, "latency", 0, "latency added to every response")
	return cmd
}
