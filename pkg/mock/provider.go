// Package mock is an in-memory inference provider with scriptable failures.
// It backs tests and the "mock" provider mode for local development.
package mock

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dskvich/scholarai/pkg/domain"
)

// Step scripts the outcome of one Generate or GenerateStream call.
type Step struct {
	Text string
	// Fragments overrides the split of Text for streaming calls.
	Fragments []string
	Err       error
	// ErrMidStream delivers Fragments before failing with Err.
	ErrMidStream bool
	// Hold delays the outcome until the channel is closed or the call's
	// context ends.
	Hold <-chan struct{}
}

type Provider struct {
	mu         sync.Mutex
	models     []string
	listErr    error
	listGate   chan struct{}
	listCalls  int
	steps      []Step
	calls      []domain.Call
	files      map[string]*domain.RemoteFile
	polls      map[string]int
	readyAfter int
	failFiles  bool
	hangUpload bool
	hangPolls  bool
}

func NewProvider(models ...string) *Provider {
	return &Provider{
		models: models,
		files:  make(map[string]*domain.RemoteFile),
		polls:  make(map[string]int),
	}
}

func (p *Provider) Name() string { return "mock" }

// Script queues outcomes for the next calls. Once the queue is empty the
// provider answers by echoing the prompt.
func (p *Provider) Script(steps ...Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
}

func (p *Provider) SetModels(models ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models = models
}

func (p *Provider) FailListing(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}

// GateListing makes ListModels block until the returned func is called.
func (p *Provider) GateListing() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.listGate = gate
	p.mu.Unlock()
	return sync.OnceFunc(func() { close(gate) })
}

// ReadyAfter sets how many status polls an upload stays PROCESSING.
func (p *Provider) ReadyAfter(polls int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readyAfter = polls
}

func (p *Provider) FailIndexing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failFiles = true
}

// HangUploads makes Upload block until its context ends.
func (p *Provider) HangUploads() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangUpload = true
}

// HangPolls makes GetFile block until its context ends.
func (p *Provider) HangPolls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangPolls = true
}

func (p *Provider) Calls() []domain.Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Call(nil), p.calls...)
}

func (p *Provider) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	p.listCalls++
	gate, err, models := p.listGate, p.listErr, append([]string(nil), p.models...)
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, domain.ClassifyTransport(ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return models, nil
}

func (p *Provider) Generate(ctx context.Context, call domain.Call) (string, error) {
	step := p.next(call)
	if err := hold(ctx, step.Hold); err != nil {
		return "", err
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Text, ctx.Err()
}

func (p *Provider) GenerateStream(ctx context.Context, call domain.Call) iter.Seq2[string, error] {
	step := p.next(call)

	return func(yield func(string, error) bool) {
		if err := hold(ctx, step.Hold); err != nil {
			yield("", err)
			return
		}
		if step.Err != nil && !step.ErrMidStream {
			yield("", step.Err)
			return
		}
		for _, f := range step.Fragments {
			if err := ctx.Err(); err != nil {
				yield("", domain.ClassifyTransport(err))
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if step.Err != nil {
			yield("", step.Err)
		}
	}
}

func hold(ctx context.Context, gate <-chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return domain.ClassifyTransport(ctx.Err())
	}
}

// block waits for ctx to end when hang is set.
func block(ctx context.Context, hang bool) error {
	if !hang {
		return nil
	}
	<-ctx.Done()
	return domain.ClassifyTransport(ctx.Err())
}

func (p *Provider) next(call domain.Call) Step {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, call)
	if len(p.steps) > 0 {
		step := p.steps[0]
		p.steps = p.steps[1:]
		if step.Fragments == nil && step.Text != "" {
			step.Fragments = split(step.Text)
		}
		return step
	}

	text := Echo(call)
	return Step{Text: text, Fragments: split(text)}
}

// Echo is the deterministic answer given when no step is scripted.
func Echo(call domain.Call) string {
	if call.Attachment != nil {
		return fmt.Sprintf("About %s (%s): %s", call.Attachment.Name(), call.Attachment.MIMEType(), call.Prompt)
	}
	return "Echo: " + call.Prompt
}

func split(text string) []string {
	return strings.SplitAfter(text, " ")
}

func (p *Provider) Upload(ctx context.Context, name, mimeType string, r io.Reader) (domain.RemoteFile, error) {
	p.mu.Lock()
	hang := p.hangUpload
	p.mu.Unlock()
	if err := block(ctx, hang); err != nil {
		return domain.RemoteFile{}, err
	}

	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return domain.RemoteFile{}, domain.ClassifyTransport(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := "files/" + uuid.NewString()
	file := &domain.RemoteFile{
		Name:     id,
		URI:      "mock://" + id,
		MIMEType: mimeType,
		Size:     n,
		State:    domain.FileStateProcessing,
	}
	p.files[id] = file
	return *file, nil
}

func (p *Provider) GetFile(ctx context.Context, name string) (domain.RemoteFile, error) {
	p.mu.Lock()
	hang := p.hangPolls
	p.mu.Unlock()
	if err := block(ctx, hang); err != nil {
		return domain.RemoteFile{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	file, ok := p.files[name]
	if !ok {
		return domain.RemoteFile{}, NotFound(name)
	}

	p.polls[name]++
	switch {
	case p.failFiles:
		file.State = domain.FileStateFailed
	case p.polls[name] >= p.readyAfter:
		file.State = domain.FileStateActive
	}
	return *file, nil
}

func RateLimited(retryAfter time.Duration) *domain.ProviderError {
	return &domain.ProviderError{
		Signal:     domain.SignalRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Message:    "resource exhausted",
		RetryAfter: retryAfter,
	}
}

func NotFound(model string) *domain.ProviderError {
	return &domain.ProviderError{
		Signal:     domain.SignalModelNotFound,
		StatusCode: http.StatusNotFound,
		Message:    model + " is not found",
	}
}

func Malformed(message string) *domain.ProviderError {
	return &domain.ProviderError{
		Signal:     domain.SignalMalformed,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

func Network() *domain.ProviderError {
	return &domain.ProviderError{Signal: domain.SignalNetwork, Message: "connection reset by peer"}
}
