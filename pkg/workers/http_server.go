package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dskvich/scholarai/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type httpServer struct {
	srv *http.Server
	lis net.Listener
}

// NewHTTPServer binds addr immediately so that a busy port fails at startup.
func NewHTTPServer(addr string, handler http.Handler) (*httpServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	return &httpServer{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		lis: lis,
	}, nil
}

func (h *httpServer) Name() string { return "http_server" }

func (h *httpServer) Addr() string { return h.lis.Addr().String() }

func (h *httpServer) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", h.Name(), "addr", h.Addr())
	defer slog.Info("Worker stopped", "name", h.Name())

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.srv.Serve(h.lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := h.srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", logger.Err(err))
		return h.srv.Close()
	}
	return nil
}
