package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Signal is the provider failure class the retry policy branches on.
type Signal int

const (
	SignalOther Signal = iota
	SignalRateLimited
	SignalModelNotFound
	SignalMalformed
	SignalNetwork
)

func (s Signal) String() string {
	switch s {
	case SignalRateLimited:
		return "rate_limited"
	case SignalModelNotFound:
		return "model_not_found"
	case SignalMalformed:
		return "malformed_request"
	case SignalNetwork:
		return "network"
	default:
		return "other"
	}
}

// ProviderError is a provider failure classified at the adapter boundary.
type ProviderError struct {
	Signal     Signal
	StatusCode int
	Message    string
	// RetryAfter is the provider's own retry hint, if it sent one.
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	msg := Truncate(e.Message, MaxProviderMessageLen)
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (%d): %s", e.Signal, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %s: %s", e.Signal, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SignalForStatus maps an HTTP status returned by a provider to a Signal.
func SignalForStatus(code int) Signal {
	switch {
	case code == http.StatusTooManyRequests:
		return SignalRateLimited
	case code == http.StatusNotFound:
		return SignalModelNotFound
	case code == http.StatusBadRequest,
		code == http.StatusUnsupportedMediaType,
		code == http.StatusUnprocessableEntity:
		return SignalMalformed
	case code == http.StatusRequestTimeout,
		code == http.StatusGatewayTimeout,
		code >= 500:
		return SignalNetwork
	default:
		return SignalOther
	}
}

// ClassifyTransport wraps an error that carries no HTTP status. Timeouts and
// transport failures become SignalNetwork; anything else SignalOther.
func ClassifyTransport(err error) *ProviderError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return &ProviderError{Signal: SignalNetwork, Message: err.Error(), Err: err}
	}
	return &ProviderError{Signal: SignalOther, Message: err.Error(), Err: err}
}
