package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dskvich/scholarai/pkg/api"
	"github.com/dskvich/scholarai/pkg/api/handler"
	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/gateway"
	"github.com/dskvich/scholarai/pkg/repository"
	"github.com/dskvich/scholarai/pkg/workers"
)

const minSweepInterval = time.Minute

func newServeCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve research sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfg)
		},
	}
}

func runServe(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	workerGroup, err := setupWorkers(ctx, cfg)
	if err != nil {
		if configurationMissing(err) {
			slog.Error(domain.UserMessage(err))
		}
		return err
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		select {
		case s := <-sigCh:
			slog.Info("shutting down due to signal", "signal", s.String())
			cancelFn()
		case <-ctx.Done():
		}
	}()

	err = workerGroup.Start(ctx)
	slog.Info("shutdown complete")
	return err
}

func setupWorkers(ctx context.Context, cfg Config) (workers.Group, error) {
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", cfg.Provider, err)
	}

	gw := gateway.New(provider, cfg.gatewayConfig())
	sessionRepository := repository.NewSessionRepository(cfg.SessionTTL)

	router := api.NewRouter(gw, sessionRepository, handler.Defaults{
		Persona:     cfg.Persona,
		Temperature: cfg.Temperature,
	})

	var workerGroup workers.Group

	httpServer, err := workers.NewHTTPServer(cfg.HTTPAddr, router)
	if err != nil {
		return nil, fmt.Errorf("creating http server: %w", err)
	}
	workerGroup = append(workerGroup, httpServer)

	if cfg.SessionTTL > 0 {
		workerGroup = append(workerGroup, workers.NewSessionJanitor(sessionRepository, max(cfg.SessionTTL/4, minSweepInterval)))
	}

	return workerGroup, nil
}
