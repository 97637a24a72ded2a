package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/dskvich/scholarai/pkg/logger"
)

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, logger.DefaultOptions)))

	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("shutting down due to error", logger.Err(err))
		}
		os.Exit(1)
	}
}
