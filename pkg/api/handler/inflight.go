package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/dskvich/scholarai/pkg/domain"
)

// inflight tracks the gateway calls running for each session so that
// clearing the session or replacing its file abandons them.
type inflight struct {
	mu    sync.Mutex
	next  uint64
	calls map[string]map[uint64]context.CancelCauseFunc
}

func newInflight() *inflight {
	return &inflight{calls: make(map[string]map[uint64]context.CancelCauseFunc)}
}

// track derives a context that is cancelled with domain.ErrSessionChanged
// when the session is abandoned. release must be called once the call is done.
func (f *inflight) track(ctx context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	f.mu.Lock()
	f.next++
	id := f.next
	if f.calls[sessionID] == nil {
		f.calls[sessionID] = make(map[uint64]context.CancelCauseFunc)
	}
	f.calls[sessionID][id] = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if calls, ok := f.calls[sessionID]; ok {
			delete(calls, id)
			if len(calls) == 0 {
				delete(f.calls, sessionID)
			}
		}
		f.mu.Unlock()
		cancel(nil)
	}
}

// abandon cancels every call tracked for sessionID and reports how many
// there were.
func (f *inflight) abandon(sessionID string) int {
	f.mu.Lock()
	calls := f.calls[sessionID]
	delete(f.calls, sessionID)
	f.mu.Unlock()

	for _, cancel := range calls {
		cancel(domain.ErrSessionChanged)
	}
	return len(calls)
}

// sessionChanged replaces err with domain.ErrSessionChanged when ctx was
// abandoned.
func sessionChanged(ctx context.Context, err error) error {
	if err != nil && errors.Is(context.Cause(ctx), domain.ErrSessionChanged) {
		return domain.ErrSessionChanged
	}
	return err
}
