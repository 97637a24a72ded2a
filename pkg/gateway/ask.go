package gateway

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dskvich/scholarai/pkg/converter"
	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/logger"
)

var errEmptyResponse = &domain.ProviderError{Signal: domain.SignalOther, Message: "provider returned no text"}

// streamBrokenError marks a failure after fragments were already delivered.
// Such failures are never retried.
type streamBrokenError struct{ err error }

func (e *streamBrokenError) Error() string { return "stream interrupted: " + e.err.Error() }
func (e *streamBrokenError) Unwrap() error { return e.err }

type attemptFunc func(ctx context.Context, call domain.Call) error

// Ask answers req with the complete response text.
func (g *Gateway) Ask(ctx context.Context, req domain.Request) (string, error) {
	var text string
	err := g.run(ctx, req, g.cfg.CallTimeout, func(ctx context.Context, call domain.Call) error {
		t, err := g.provider.Generate(ctx, call)
		if err != nil {
			return err
		}
		if strings.TrimSpace(t) == "" {
			return errEmptyResponse
		}
		text = t
		return nil
	})
	return text, err
}

// AskStream answers req as an ordered sequence of text fragments. The
// sequence can be ranged over once; a failure is yielded as the last element.
// Retries happen only before the first fragment is delivered.
func (g *Gateway) AskStream(ctx context.Context, req domain.Request) iter.Seq2[string, error] {
	var consumed atomic.Bool

	return func(yield func(string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield("", &domain.Error{Kind: domain.KindRequestRejected, Message: "response stream already consumed"})
			return
		}

		stopped := false
		err := g.run(ctx, req, g.cfg.StreamTimeout, func(ctx context.Context, call domain.Call) error {
			started := false
			for fragment, err := range g.provider.GenerateStream(ctx, call) {
				if err != nil {
					if started {
						return &streamBrokenError{err: err}
					}
					return err
				}
				if fragment == "" {
					continue
				}
				started = true
				if !yield(fragment, nil) {
					stopped = true
					return nil
				}
			}
			if !started {
				return errEmptyResponse
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

func (g *Gateway) run(ctx context.Context, req domain.Request, timeout time.Duration, attempt attemptFunc) error {
	if err := req.Validate(); err != nil {
		return err
	}

	model, err := g.ResolveModel(ctx, req.ModelPreference)
	if err != nil {
		return err
	}

	call := domain.Call{
		Model:       model,
		Prompt:      req.Prompt,
		Attachment:  req.Attachment,
		Persona:     req.Persona,
		Temperature: req.Temperature,
		History:     g.history(req.History),
	}

	var (
		retries    int
		delay      = g.cfg.InitialBackoff
		fellBack   bool
		normalized bool
	)

	for n := 1; ; n++ {
		slog.InfoContext(ctx, "Calling provider",
			"provider", g.provider.Name(),
			"model", call.Model,
			"attempt", n,
			"historyTurns", len(call.History),
			"attachment", call.Attachment != nil,
		)

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := attempt(callCtx, call)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		perr := providerError(err)

		var broken *streamBrokenError
		if errors.As(err, &broken) {
			slog.WarnContext(ctx, "Stream interrupted", "model", call.Model, logger.Err(err))
			return surface(perr)
		}

		switch perr.Signal {
		case domain.SignalRateLimited:
			if retries >= g.cfg.MaxRetries {
				hint := max(delay, perr.RetryAfter)
				slog.WarnContext(ctx, "Quota exhausted", "model", call.Model, "retries", retries, "retryAfter", hint)
				return &domain.Error{
					Kind:       domain.KindQuotaExhausted,
					Message:    fmt.Sprintf("still rate limited after %d retries", retries),
					RetryAfter: hint,
					Err:        perr,
				}
			}
			retries++
			slog.WarnContext(ctx, "Rate limited, backing off", "model", call.Model, "delay", delay, "retry", retries)
			if err := g.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2

		case domain.SignalModelNotFound:
			if fellBack {
				return &domain.Error{
					Kind:    domain.KindModelUnavailable,
					Message: fmt.Sprintf("fallback model %s not found", call.Model),
					Err:     perr,
				}
			}
			fellBack = true

			fallback, ferr := g.fallbackModel(ctx, req.ModelPreference, call.Model)
			if ferr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &domain.Error{
					Kind:    domain.KindModelUnavailable,
					Message: fmt.Sprintf("model %s not found and no fallback resolved", call.Model),
					Err:     ferr,
				}
			}
			slog.WarnContext(ctx, "Model not found, degrading", "model", call.Model, "fallback", fallback)
			call.Model = fallback

		case domain.SignalMalformed:
			if normalized || call.Attachment == nil {
				return rejected(perr)
			}
			normalized = true

			mimeType, nerr := converter.Correct(call.Attachment.MIMEType(), call.Attachment.Head(converter.SniffLen))
			if nerr != nil || mimeType == call.Attachment.MIMEType() {
				return rejected(perr)
			}
			slog.WarnContext(ctx, "Request rejected, normalizing content type",
				"from", call.Attachment.MIMEType(), "to", mimeType)
			call.Attachment = call.Attachment.WithMIMEType(mimeType)

		default:
			return surface(perr)
		}
	}
}

func providerError(err error) *domain.ProviderError {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return domain.ClassifyTransport(err)
}

// surface converts a provider failure that is not retried any further.
func surface(perr *domain.ProviderError) error {
	switch perr.Signal {
	case domain.SignalRateLimited:
		return &domain.Error{Kind: domain.KindQuotaExhausted, RetryAfter: perr.RetryAfter, Err: perr}
	case domain.SignalModelNotFound:
		return &domain.Error{Kind: domain.KindModelUnavailable, Err: perr}
	case domain.SignalNetwork:
		return &domain.Error{Kind: domain.KindTransientNetwork, Err: perr}
	default:
		return rejected(perr)
	}
}

func rejected(perr *domain.ProviderError) error {
	return &domain.Error{
		Kind:    domain.KindRequestRejected,
		Message: domain.Truncate(perr.Message, domain.MaxProviderMessageLen),
		Err:     perr,
	}
}
