package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/mock"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

func newTestGateway(p Provider) (*Gateway, *sleepRecorder) {
	cfg := DefaultConfig()
	g := New(p, cfg)
	rec := &sleepRecorder{}
	g.sleep = rec.sleep
	return g, rec
}

func ask(prompt string) domain.Request {
	return domain.Request{Prompt: prompt, ModelPreference: "fast", Temperature: 0.3}
}

func TestAskPlainPrompt(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	g, _ := newTestGateway(p)

	text, err := g.Ask(context.Background(), ask("What is entropy?"))
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if text != "Echo: What is entropy?" {
		t.Errorf("unexpected answer %q", text)
	}
	if calls := p.Calls(); len(calls) != 1 || calls[0].Model != "gemini-2.5-flash" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestAskValidation(t *testing.T) {
	g, _ := newTestGateway(mock.NewProvider("gemini-2.5-flash"))

	tests := []struct {
		name string
		req  domain.Request
	}{
		{"empty prompt", domain.Request{Prompt: "   "}},
		{"temperature too high", domain.Request{Prompt: "hi", Temperature: 1.5}},
		{"temperature negative", domain.Request{Prompt: "hi", Temperature: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Ask(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrRequestRejected) {
				t.Errorf("expected request rejected, got %v", err)
			}
		})
	}
}

func TestAskRetriesRateLimitWithBackoff(t *testing.T) {
	tests := []struct {
		failures  int
		wantTotal time.Duration
	}{
		{0, 0},
		{1, 5 * time.Second},
		{2, 15 * time.Second},
		{3, 35 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d failures", tt.failures), func(t *testing.T) {
			p := mock.NewProvider("gemini-2.5-flash")
			for i := 0; i < tt.failures; i++ {
				p.Script(mock.Step{Err: mock.RateLimited(0)})
			}
			p.Script(mock.Step{Text: "finally"})

			g, rec := newTestGateway(p)
			text, err := g.Ask(context.Background(), ask("q"))
			if err != nil {
				t.Fatalf("Ask failed: %v", err)
			}
			if text != "finally" {
				t.Errorf("unexpected answer %q", text)
			}
			if got := rec.total(); got != tt.wantTotal {
				t.Errorf("waited %s, want %s", got, tt.wantTotal)
			}
			if got := len(p.Calls()); got != tt.failures+1 {
				t.Errorf("made %d calls, want %d", got, tt.failures+1)
			}
		})
	}
}

func TestAskQuotaExhausted(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	for i := 0; i < 10; i++ {
		p.Script(mock.Step{Err: mock.RateLimited(0)})
	}

	g, rec := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))
	if !errors.Is(err, domain.ErrQuotaExhausted) {
		t.Fatalf("expected quota exhausted, got %v", err)
	}

	if got := len(p.Calls()); got != 4 {
		t.Errorf("made %d calls, want initial call plus 3 retries", got)
	}
	if want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}; !slices.Equal(rec.delays, want) {
		t.Errorf("backoff schedule %v, want %v", rec.delays, want)
	}

	var gwErr *domain.Error
	if !errors.As(err, &gwErr) || gwErr.RetryAfter != 40*time.Second {
		t.Errorf("expected 40s retry hint, got %+v", gwErr)
	}
}

func TestAskQuotaExhaustedUsesProviderHint(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	for i := 0; i < 4; i++ {
		p.Script(mock.Step{Err: mock.RateLimited(90 * time.Second)})
	}

	g, _ := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))

	var gwErr *domain.Error
	if !errors.As(err, &gwErr) || gwErr.RetryAfter != 90*time.Second {
		t.Errorf("expected provider retry hint, got %v", err)
	}
}

func TestAskBackoffIsCancellable(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.RateLimited(0)})

	g := New(p, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := g.Ask(ctx, ask("q"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %s", elapsed)
	}
}

func TestAskFallsBackOnModelNotFound(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash", "gemini-2.0-flash")
	p.Script(mock.Step{Err: mock.NotFound("gemini-2.5-flash")}, mock.Step{Text: "from fallback"})

	g, _ := newTestGateway(p)
	text, err := g.Ask(context.Background(), ask("q"))
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if text != "from fallback" {
		t.Errorf("unexpected answer %q", text)
	}

	calls := p.Calls()
	if len(calls) != 2 || calls[1].Model != "gemini-2.0-flash" {
		t.Errorf("expected retry on gemini-2.0-flash, got %+v", calls)
	}
	if got := p.ListCalls(); got != 2 {
		t.Errorf("expected model list refresh, got %d list calls", got)
	}
}

func TestAskModelUnavailableAfterFallback(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash", "gemini-2.0-flash")
	p.Script(
		mock.Step{Err: mock.NotFound("gemini-2.5-flash")},
		mock.Step{Err: mock.NotFound("gemini-2.0-flash")},
	)

	g, _ := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
	if got := len(p.Calls()); got != 2 {
		t.Errorf("made %d calls, want 2", got)
	}
}

func TestAskModelUnavailableWhenNothingLeft(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.NotFound("gemini-2.5-flash")})

	g, _ := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
}

func TestAskNormalizesContentTypeOnce(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	att, err := domain.NewInlineAttachment("paper.pdf", "application/x-pdf", pdf, 0)
	if err != nil {
		t.Fatal(err)
	}

	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.Malformed("Unsupported MIME type: application/x-pdf")}, mock.Step{Text: "summary"})

	g, _ := newTestGateway(p)
	req := ask("summarize")
	req.Attachment = att

	text, err := g.Ask(context.Background(), req)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if text != "summary" {
		t.Errorf("unexpected answer %q", text)
	}

	calls := p.Calls()
	if got := calls[1].Attachment.MIMEType(); got != "application/pdf" {
		t.Errorf("retried with %q, want application/pdf", got)
	}
	if att.MIMEType() != "application/x-pdf" {
		t.Errorf("caller's attachment was modified")
	}
}

func TestAskRejectedMessageIsTruncated(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.Malformed(strings.Repeat("x", 5000))})

	g, _ := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))
	if !errors.Is(err, domain.ErrRequestRejected) {
		t.Fatalf("expected request rejected, got %v", err)
	}

	var gwErr *domain.Error
	errors.As(err, &gwErr)
	if len(gwErr.Message) > domain.MaxProviderMessageLen+len("…") {
		t.Errorf("message not truncated: %d bytes", len(gwErr.Message))
	}
	if len(err.Error()) > 1000 {
		t.Errorf("error string not bounded: %d bytes", len(err.Error()))
	}
	if got := len(p.Calls()); got != 1 {
		t.Errorf("retried a request without attachment: %d calls", got)
	}
}

func TestAskRejectedAfterNormalizationFails(t *testing.T) {
	att, _ := domain.NewInlineAttachment("paper.pdf", "application/x-pdf", []byte("%PDF-1.7\n"), 0)

	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.Malformed("bad")}, mock.Step{Err: mock.Malformed("still bad")})

	g, _ := newTestGateway(p)
	req := ask("q")
	req.Attachment = att

	_, err := g.Ask(context.Background(), req)
	if !errors.Is(err, domain.ErrRequestRejected) {
		t.Fatalf("expected request rejected, got %v", err)
	}
	if got := len(p.Calls()); got != 2 {
		t.Errorf("made %d calls, want 2", got)
	}
}

func TestAskNetworkErrorFailsFast(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.Network()})

	g, rec := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))
	if !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected transient network error, got %v", err)
	}
	if got := len(p.Calls()); got != 1 {
		t.Errorf("made %d calls, want 1", got)
	}
	if len(rec.delays) != 0 {
		t.Errorf("unexpected backoff %v", rec.delays)
	}
}

func TestAskUnclassifiedErrorIsDistinguishable(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: errors.New("boom")})

	g, _ := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))
	if domain.KindOf(err) == domain.KindUnknown {
		t.Fatalf("expected a classified error, got %v", err)
	}
}

func TestAskEmptyResponseIsRejected(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Text: "  "})

	g, _ := newTestGateway(p)
	_, err := g.Ask(context.Background(), ask("q"))
	if !errors.Is(err, domain.ErrRequestRejected) {
		t.Fatalf("expected request rejected, got %v", err)
	}
}

func TestAskTrimsHistory(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	g, _ := newTestGateway(p)
	g.cfg.HistoryTurns = 2

	req := ask("q")
	base := time.Now()
	for i := 0; i < 5; i++ {
		req.History = append(req.History, domain.Turn{Role: domain.RoleUser, Text: fmt.Sprint(i), At: base.Add(time.Duration(i) * time.Second)})
	}

	if _, err := g.Ask(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	history := p.Calls()[0].History
	if len(history) != 2 || history[0].Text != "3" || history[1].Text != "4" {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestAskStreamMatchesAsk(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	g, _ := newTestGateway(p)

	want, err := g.Ask(context.Background(), ask("explain the second law of thermodynamics"))
	if err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	fragments := 0
	for fragment, err := range g.AskStream(context.Background(), ask("explain the second law of thermodynamics")) {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		fragments++
		b.WriteString(fragment)
	}

	if b.String() != want {
		t.Errorf("stream %q, want %q", b.String(), want)
	}
	if fragments < 2 {
		t.Errorf("expected several fragments, got %d", fragments)
	}
}

func TestAskStreamRetriesBeforeFirstFragment(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.RateLimited(0)}, mock.Step{Fragments: []string{"a", "b"}})

	g, rec := newTestGateway(p)

	var got []string
	for fragment, err := range g.AskStream(context.Background(), ask("q")) {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		got = append(got, fragment)
	}

	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("unexpected fragments %v", got)
	}
	if rec.total() != 5*time.Second {
		t.Errorf("waited %s, want 5s", rec.total())
	}
}

func TestAskStreamDoesNotRetryMidStream(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Fragments: []string{"partial "}, Err: mock.RateLimited(0), ErrMidStream: true})

	g, _ := newTestGateway(p)

	var (
		got     []string
		lastErr error
	)
	for fragment, err := range g.AskStream(context.Background(), ask("q")) {
		if err != nil {
			lastErr = err
			continue
		}
		got = append(got, fragment)
	}

	if !slices.Equal(got, []string{"partial "}) {
		t.Errorf("unexpected fragments %v", got)
	}
	if !errors.Is(lastErr, domain.ErrQuotaExhausted) {
		t.Errorf("expected quota exhausted, got %v", lastErr)
	}
	if got := len(p.Calls()); got != 1 {
		t.Errorf("made %d calls, want 1", got)
	}
}

func TestAskStreamIsNotRestartable(t *testing.T) {
	g, _ := newTestGateway(mock.NewProvider("gemini-2.5-flash"))
	stream := g.AskStream(context.Background(), ask("q"))

	for range stream {
	}

	for _, err := range stream {
		if !errors.Is(err, domain.ErrRequestRejected) {
			t.Errorf("expected rejection on second range, got %v", err)
		}
		return
	}
	t.Error("second range yielded nothing")
}

func TestAskStreamStopsWhenConsumerBreaks(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Fragments: []string{"a", "b", "c"}})

	g, _ := newTestGateway(p)
	for fragment, err := range g.AskStream(context.Background(), ask("q")) {
		if err != nil || fragment != "a" {
			t.Fatalf("unexpected element %q %v", fragment, err)
		}
		break
	}
}

func TestConcurrentAsksDoNotMix(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	g, _ := newTestGateway(p)

	prompts := []string{"alpha alpha alpha", "beta beta beta"}
	results := make([]string, len(prompts))
	streamed := make([]string, len(prompts))

	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[i], _ = g.Ask(context.Background(), ask(prompt))
		}()
		go func() {
			defer wg.Done()
			var b strings.Builder
			for fragment, err := range g.AskStream(context.Background(), ask(prompt)) {
				if err == nil {
					b.WriteString(fragment)
				}
			}
			streamed[i] = b.String()
		}()
	}
	wg.Wait()

	for i, other := range []string{"beta", "alpha"} {
		if strings.Contains(results[i], other) || strings.Contains(streamed[i], other) {
			t.Errorf("response %d mixed with %q: %q / %q", i, other, results[i], streamed[i])
		}
		if results[i] != streamed[i] {
			t.Errorf("response %d: ask %q, stream %q", i, results[i], streamed[i])
		}
	}
}

func TestTrimForContextBudget(t *testing.T) {
	base := time.Now()
	var transcript []domain.Turn
	for i := 0; i < 5; i++ {
		transcript = append(transcript, domain.Turn{Text: fmt.Sprint(i), At: base.Add(time.Duration(i))})
	}

	texts := func(turns []domain.Turn) string {
		var b strings.Builder
		for _, t := range turns {
			b.WriteString(t.Text)
		}
		return b.String()
	}

	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "4"},
		{3, "234"},
		{5, "01234"},
		{9, "01234"},
	}

	for _, tt := range tests {
		got := TrimForContextBudget(transcript, tt.n)
		if texts(got) != tt.want {
			t.Errorf("n=%d: got %q, want %q", tt.n, texts(got), tt.want)
		}
		if again := TrimForContextBudget(got, tt.n); texts(again) != tt.want {
			t.Errorf("n=%d: not idempotent, got %q", tt.n, texts(again))
		}
	}
}

func TestAttachInline(t *testing.T) {
	g, _ := newTestGateway(mock.NewProvider("gemini-2.5-flash"))
	data := []byte("%PDF-1.4\nhello")

	att, err := g.Attach(context.Background(), "a.pdf", "application/octet-stream", int64(len(data)), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if att.IsRemote() || att.MIMEType() != "application/pdf" || !bytes.Equal(att.Data(), data) {
		t.Errorf("unexpected attachment %s %s remote=%v", att.Name(), att.MIMEType(), att.IsRemote())
	}
}

func TestAttachUploadsLargeFiles(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.ReadyAfter(3)

	g, rec := newTestGateway(p)
	g.cfg.InlineLimit = 8
	data := []byte("%PDF-1.4\nthis is larger than eight bytes")

	att, err := g.Attach(context.Background(), "big.pdf", "application/pdf", int64(len(data)), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	remote, ok := att.Remote()
	if !ok || remote.State != domain.FileStateActive || remote.Size != int64(len(data)) {
		t.Errorf("unexpected remote file %+v", remote)
	}
	if len(rec.delays) != 3 {
		t.Errorf("polled %d times, want 3", len(rec.delays))
	}
}

func TestAttachIndexingTimeout(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.ReadyAfter(1 << 30)

	g := New(p, Config{InlineLimit: 8, PollInterval: 2 * time.Millisecond, IndexingTimeout: 30 * time.Millisecond})
	data := []byte("%PDF-1.4\nthis is larger than eight bytes")

	_, err := g.Attach(context.Background(), "big.pdf", "application/pdf", int64(len(data)), bytes.NewReader(data))
	if !errors.Is(err, domain.ErrIndexingTimeout) {
		t.Fatalf("expected indexing timeout, got %v", err)
	}
}

func TestAttachIndexingFailure(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.ReadyAfter(5)
	p.FailIndexing()

	g, _ := newTestGateway(p)
	g.cfg.InlineLimit = 8
	data := []byte("%PDF-1.4\nthis is larger than eight bytes")

	_, err := g.Attach(context.Background(), "big.pdf", "application/pdf", int64(len(data)), bytes.NewReader(data))
	if !errors.Is(err, domain.ErrRequestRejected) {
		t.Fatalf("expected request rejected, got %v", err)
	}
}

func TestAttachRejects(t *testing.T) {
	g, _ := newTestGateway(mock.NewProvider("gemini-2.5-flash"))

	_, err := g.Attach(context.Background(), "huge.mp4", "video/mp4", domain.MaxUploadSize+1, strings.NewReader(""))
	if !errors.Is(err, domain.ErrAttachmentTooLarge) {
		t.Errorf("expected too large, got %v", err)
	}

	data := []byte{0x00, 0x01, 0x02, 0x03}
	_, err = g.Attach(context.Background(), "blob.bin", "application/octet-stream", 4, bytes.NewReader(data))
	if !errors.Is(err, domain.ErrRequestRejected) {
		t.Errorf("expected unsupported type rejection, got %v", err)
	}
}

func TestResolveModelUsesSecondaryCandidate(t *testing.T) {
	g, _ := newTestGateway(mock.NewProvider("gemini-2.0-flash", "gemini-1.5-pro"))

	tests := map[string]string{
		"fast":             "gemini-2.0-flash",
		"Gemini 1.5 Flash": "gemini-2.0-flash",
		"deep":             "gemini-1.5-pro",
		"gemini-1.5-pro":   "gemini-1.5-pro",
	}
	for label, want := range tests {
		got, err := g.ResolveModel(context.Background(), label)
		if err != nil {
			t.Fatalf("ResolveModel(%q) failed: %v", label, err)
		}
		if got != want {
			t.Errorf("ResolveModel(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestResolveModelProviderUnreachable(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.FailListing(mock.Network())

	g, _ := newTestGateway(p)
	_, err := g.ResolveModel(context.Background(), "fast")
	if !errors.Is(err, domain.ErrProviderUnreachable) {
		t.Fatalf("expected provider unreachable, got %v", err)
	}
}

func TestResolveModelEmptyListIsUnavailable(t *testing.T) {
	g, _ := newTestGateway(mock.NewProvider())

	_, err := g.ResolveModel(context.Background(), "deep")
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
}

func TestConcurrentResolveSharesOneListing(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash", "gemini-2.5-pro")
	release := p.GateListing()

	g, _ := newTestGateway(p)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = g.ResolveModel(context.Background(), "fast")
		}()
	}

	// let every caller reach the in-flight listing
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	for i := range callers {
		if errs[i] != nil || results[i] != "gemini-2.5-flash" {
			t.Errorf("caller %d: got %q, %v", i, results[i], errs[i])
		}
	}
	if got := p.ListCalls(); got != 1 {
		t.Errorf("provider listed models %d times, want 1", got)
	}
}

func TestResolveModelCallerCancelDoesNotFailOthers(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	release := p.GateListing()

	g, _ := newTestGateway(p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.ResolveModel(ctx, "fast")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}

	release()
	if _, err := g.ResolveModel(context.Background(), "fast"); err != nil {
		t.Errorf("second caller failed: %v", err)
	}
}

func TestAttachCorrectsMismatchedFamily(t *testing.T) {
	g, _ := newTestGateway(mock.NewProvider("gemini-2.5-flash"))
	pdf := []byte("%PDF-1.7\n%âãÏÓ\n1 0 obj\n")

	att, err := g.Attach(context.Background(), "paper.pdf", "video/mp4", int64(len(pdf)), bytes.NewReader(pdf))
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if att.MIMEType() != "application/pdf" {
		t.Errorf("attached as %q, want application/pdf", att.MIMEType())
	}
}

func TestAskRetriesAttachedFileWithSniffedType(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.Script(mock.Step{Err: mock.Malformed("content does not match mime type image/jpeg")}, mock.Step{Text: "a chart"})

	g, _ := newTestGateway(p)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	att, err := g.Attach(context.Background(), "figure.jpg", "image/jpeg", int64(len(png)), bytes.NewReader(png))
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	req := ask("what does it show?")
	req.Attachment = att
	text, err := g.Ask(context.Background(), req)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if text != "a chart" {
		t.Errorf("unexpected answer %q", text)
	}

	calls := p.Calls()
	if len(calls) != 2 || calls[0].Attachment.MIMEType() != "image/jpeg" || calls[1].Attachment.MIMEType() != "image/png" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestAttachUploadTimeout(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.HangUploads()

	g := New(p, Config{InlineLimit: 8, UploadTimeout: 20 * time.Millisecond})
	data := []byte("%PDF-1.4\nthis is larger than eight bytes")

	start := time.Now()
	_, err := g.Attach(context.Background(), "big.pdf", "application/pdf", int64(len(data)), bytes.NewReader(data))
	if !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected transient network error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("upload was not bounded: %s", elapsed)
	}
}

func TestAttachStatusPollTimeout(t *testing.T) {
	p := mock.NewProvider("gemini-2.5-flash")
	p.HangPolls()

	g := New(p, Config{
		InlineLimit:     8,
		CallTimeout:     20 * time.Millisecond,
		PollInterval:    time.Millisecond,
		IndexingTimeout: time.Hour,
	})
	data := []byte("%PDF-1.4\nthis is larger than eight bytes")

	start := time.Now()
	_, err := g.Attach(context.Background(), "big.pdf", "application/pdf", int64(len(data)), bytes.NewReader(data))
	if !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected transient network error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("status poll was not bounded: %s", elapsed)
	}
}
