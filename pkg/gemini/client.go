package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/dskvich/scholarai/pkg/domain"
)

const generateContentAction = "generateContent"

type Config struct {
	APIKey string
	// UseVertex routes the API key through Vertex AI express mode.
	UseVertex bool
	// Project and Location select Vertex AI with application default
	// credentials instead of an API key.
	Project  string
	Location string
}

type client struct {
	api     *genai.Client
	backend genai.Backend
}

func NewClient(ctx context.Context, cfg Config) (*client, error) {
	cc := &genai.ClientConfig{}

	switch {
	case cfg.Project != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	case cfg.APIKey != "" && cfg.UseVertex:
		cc.Backend = genai.BackendVertexAI
		cc.APIKey = cfg.APIKey
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, &domain.Error{
			Kind:    domain.KindConfigurationMissing,
			Message: "GOOGLE_API_KEY or GOOGLE_CLOUD_PROJECT must be set",
		}
	}

	api, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	c := &client{api: api, backend: cc.Backend}
	slog.Info("Gemini client ready", "backend", c.Name(), "project", cfg.Project, "location", cfg.Location)

	return c, nil
}

func (c *client) Name() string {
	if c.backend == genai.BackendVertexAI {
		return "vertex"
	}
	return "gemini"
}

func (c *client) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	for m, err := range c.api.Models.All(ctx) {
		if err != nil {
			return nil, classify(err)
		}
		if len(m.SupportedActions) > 0 && !slices.Contains(m.SupportedActions, generateContentAction) {
			continue
		}
		ids = append(ids, modelID(m.Name))
	}
	return ids, nil
}

// modelID strips resource prefixes such as "models/" or
// "publishers/google/models/".
func modelID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (c *client) Generate(ctx context.Context, call domain.Call) (string, error) {
	resp, err := c.api.Models.GenerateContent(ctx, call.Model, contents(call), config(call))
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

func (c *client) GenerateStream(ctx context.Context, call domain.Call) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.api.Models.GenerateContentStream(ctx, call.Model, contents(call), config(call)) {
			if err != nil {
				yield("", classify(err))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

func (c *client) Upload(ctx context.Context, name, mimeType string, r io.Reader) (domain.RemoteFile, error) {
	if c.backend != genai.BackendGeminiAPI {
		return domain.RemoteFile{}, &domain.ProviderError{
			Signal:  domain.SignalOther,
			Message: "file uploads need the Gemini API backend; use an inline file within the size limit",
		}
	}

	f, err := c.api.Files.Upload(ctx, r, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: name,
	})
	if err != nil {
		return domain.RemoteFile{}, classify(err)
	}
	return remoteFile(f), nil
}

func (c *client) GetFile(ctx context.Context, name string) (domain.RemoteFile, error) {
	f, err := c.api.Files.Get(ctx, name, nil)
	if err != nil {
		return domain.RemoteFile{}, classify(err)
	}
	return remoteFile(f), nil
}

func remoteFile(f *genai.File) domain.RemoteFile {
	rf := domain.RemoteFile{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: f.MIMEType,
	}
	if f.SizeBytes != nil {
		rf.Size = *f.SizeBytes
	}

	switch f.State {
	case genai.FileStateActive:
		rf.State = domain.FileStateActive
	case genai.FileStateFailed:
		rf.State = domain.FileStateFailed
	default:
		rf.State = domain.FileStateProcessing
	}
	return rf
}

func contents(call domain.Call) []*genai.Content {
	out := make([]*genai.Content, 0, len(call.History)+1)
	for _, t := range call.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Text, role))
	}

	var parts []*genai.Part
	if a := call.Attachment; a != nil {
		if remote, ok := a.Remote(); ok {
			parts = append(parts, genai.NewPartFromURI(remote.URI, a.MIMEType()))
		} else {
			parts = append(parts, genai.NewPartFromBytes(a.Data(), a.MIMEType()))
		}
	}
	parts = append(parts, genai.NewPartFromText(call.Prompt))

	return append(out, genai.NewContentFromParts(parts, genai.RoleUser))
}

func config(call domain.Call) *genai.GenerateContentConfig {
	temperature := call.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if call.Persona != "" {
		cfg.SystemInstruction = genai.NewContentFromText(call.Persona, genai.RoleUser)
	}
	return cfg
}

// classify converts a genai failure into a provider signal.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Signal:     domain.SignalForStatus(apiErr.Code),
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			RetryAfter: retryDelay(apiErr.Details),
			Err:        err,
		}
	}
	return domain.ClassifyTransport(err)
}

// retryDelay reads google.rpc.RetryInfo out of error details.
func retryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		typ, _ := d["@type"].(string)
		if !strings.HasSuffix(typ, "google.rpc.RetryInfo") {
			continue
		}
		raw, _ := d["retryDelay"].(string)
		if delay, err := time.ParseDuration(raw); err == nil {
			return delay
		}
	}
	return 0
}
