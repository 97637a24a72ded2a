package gateway

import (
	"context"
	"io"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dskvich/scholarai/pkg/domain"
)

// Provider is a remote inference backend. Implementations classify their
// failures as *domain.ProviderError before returning them.
type Provider interface {
	Name() string
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, call domain.Call) (string, error)
	GenerateStream(ctx context.Context, call domain.Call) iter.Seq2[string, error]
	Upload(ctx context.Context, name, mimeType string, r io.Reader) (domain.RemoteFile, error)
	GetFile(ctx context.Context, name string) (domain.RemoteFile, error)
}

type Config struct {
	FastModels      []string
	DeepModels      []string
	InlineLimit     int64
	MaxRetries      int
	InitialBackoff  time.Duration
	CallTimeout     time.Duration
	StreamTimeout   time.Duration
	UploadTimeout   time.Duration
	IndexingTimeout time.Duration
	PollInterval    time.Duration
	// HistoryTurns caps the transcript sent with each call. Negative sends
	// everything, zero sends nothing.
	HistoryTurns int
}

func DefaultConfig() Config {
	return Config{
		FastModels:      []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"},
		DeepModels:      []string{"gemini-2.5-pro", "gemini-1.5-pro"},
		InlineLimit:     domain.DefaultInlineLimit,
		MaxRetries:      3,
		InitialBackoff:  5 * time.Second,
		CallTimeout:     60 * time.Second,
		StreamTimeout:   3 * time.Minute,
		UploadTimeout:   10 * time.Minute,
		IndexingTimeout: 5 * time.Minute,
		PollInterval:    2 * time.Second,
		HistoryTurns:    6,
	}
}

// Gateway answers prompts through a Provider. It is safe for concurrent use;
// the model list is the only state shared between calls.
type Gateway struct {
	provider Provider
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.RWMutex
	models  []string
	loaded  bool
	refresh singleflight.Group
}

func New(provider Provider, cfg Config) *Gateway {
	def := DefaultConfig()
	if len(cfg.FastModels) == 0 {
		cfg.FastModels = def.FastModels
	}
	if len(cfg.DeepModels) == 0 {
		cfg.DeepModels = def.DeepModels
	}
	if cfg.InlineLimit <= 0 {
		cfg.InlineLimit = def.InlineLimit
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = def.StreamTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = def.UploadTimeout
	}
	if cfg.IndexingTimeout <= 0 {
		cfg.IndexingTimeout = def.IndexingTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	return &Gateway{
		provider: provider,
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

func (g *Gateway) ProviderName() string { return g.provider.Name() }

// TrimForContextBudget returns the last maxTurns turns of transcript in
// their original order. Older turns are lost.
func TrimForContextBudget(transcript []domain.Turn, maxTurns int) []domain.Turn {
	return domain.TrimTranscript(transcript, maxTurns)
}

func (g *Gateway) history(turns []domain.Turn) []domain.Turn {
	if g.cfg.HistoryTurns < 0 {
		return append([]domain.Turn(nil), turns...)
	}
	return TrimForContextBudget(turns, g.cfg.HistoryTurns)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
