package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/samber/lo"

	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/gateway"
	"github.com/dskvich/scholarai/pkg/gemini"
	"github.com/dskvich/scholarai/pkg/logger"
	"github.com/dskvich/scholarai/pkg/mock"
	"github.com/dskvich/scholarai/pkg/openai"
)

const (
	providerGemini = "gemini"
	providerOpenAI = "openai"
	providerMock   = "mock"
)

type Config struct {
	Provider string `env:"PROVIDER" envDefault:"gemini"`

	GoogleAPIKey   string `env:"GOOGLE_API_KEY"`
	GoogleProject  string `env:"GOOGLE_CLOUD_PROJECT"`
	GoogleLocation string `env:"GOOGLE_CLOUD_LOCATION" envDefault:"us-central1"`
	UseVertexAI    bool   `env:"GOOGLE_GENAI_USE_VERTEXAI"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	FastModels      []string      `env:"FAST_MODELS" envSeparator:","`
	DeepModels      []string      `env:"DEEP_MODELS" envSeparator:","`
	InlineLimit     int64         `env:"INLINE_LIMIT_BYTES" envDefault:"20971520"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	InitialBackoff  time.Duration `env:"INITIAL_BACKOFF" envDefault:"5s"`
	CallTimeout     time.Duration `env:"CALL_TIMEOUT" envDefault:"60s"`
	StreamTimeout   time.Duration `env:"STREAM_TIMEOUT" envDefault:"3m"`
	IndexingTimeout time.Duration `env:"INDEXING_TIMEOUT" envDefault:"5m"`
	UploadTimeout   time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"10m"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	HistoryTurns    int           `env:"HISTORY_TURNS" envDefault:"6"`

	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	SessionTTL  time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	Persona     string        `env:"PERSONA"`
	Temperature float32       `env:"TEMPERATURE" envDefault:"0.3"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogNoColor bool   `env:"LOG_NO_COLOR"`
}

// loadConfig reads an optional .env file and then the environment.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing env config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Provider {
	case providerGemini, providerOpenAI, providerMock:
	default:
		return fmt.Errorf("unknown provider %q, want gemini, openai or mock", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("TEMPERATURE must be within [0, 1], got %v", c.Temperature)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

func (c Config) gatewayConfig() gateway.Config {
	return gateway.Config{
		FastModels:      trimAll(c.FastModels),
		DeepModels:      trimAll(c.DeepModels),
		InlineLimit:     c.InlineLimit,
		MaxRetries:      c.MaxRetries,
		InitialBackoff:  c.InitialBackoff,
		CallTimeout:     c.CallTimeout,
		StreamTimeout:   c.StreamTimeout,
		IndexingTimeout: c.IndexingTimeout,
		UploadTimeout:   c.UploadTimeout,
		PollInterval:    c.PollInterval,
		HistoryTurns:    c.HistoryTurns,
	}
}

// newProvider builds the configured backend. A missing credential is reported
// as ConfigurationMissing before anything is served.
func newProvider(ctx context.Context, cfg Config) (gateway.Provider, error) {
	switch cfg.Provider {
	case providerOpenAI:
		c, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case providerMock:
		def := gateway.DefaultConfig()
		models := append(trimAll(cfg.FastModels), trimAll(cfg.DeepModels)...)
		if len(models) == 0 {
			models = append(def.FastModels, def.DeepModels...)
		}
		return mock.NewProvider(models...), nil
	default:
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:    cfg.GoogleAPIKey,
			UseVertex: cfg.UseVertexAI,
			Project:   cfg.GoogleProject,
			Location:  cfg.GoogleLocation,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func setupLogger(cfg Config, out *os.File) {
	slog.SetDefault(slog.New(logger.NewHandler(out, &logger.Options{
		Level:      logger.ParseLevel(cfg.LogLevel),
		TimeFormat: time.DateTime,
		AddSource:  true,
		NoColor:    cfg.LogNoColor || !isTerminal(out),
	})))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func trimAll(values []string) []string {
	return lo.Compact(lo.Map(values, func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}

// configurationMissing reports whether err should stop start-up with an
// actionable message.
func configurationMissing(err error) bool {
	return domain.KindOf(err) == domain.KindConfigurationMissing
}
