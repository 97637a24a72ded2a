package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/dskvich/scholarai/pkg/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantSignal domain.Signal
		wantDelay  time.Duration
	}{
		{
			name: "rate limited with retry info",
			err: genai.APIError{
				Code:    429,
				Message: "Resource has been exhausted",
				Details: []map[string]any{
					{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "31s"},
				},
			},
			wantSignal: domain.SignalRateLimited,
			wantDelay:  31 * time.Second,
		},
		{
			name:       "model not found",
			err:        fmt.Errorf("generating: %w", genai.APIError{Code: 404, Message: "models/gemini-1.5-flash is not found"}),
			wantSignal: domain.SignalModelNotFound,
		},
		{
			name:       "invalid argument",
			err:        genai.APIError{Code: 400, Message: "Unsupported MIME type"},
			wantSignal: domain.SignalMalformed,
		},
		{
			name:       "unavailable",
			err:        genai.APIError{Code: 503, Message: "The model is overloaded"},
			wantSignal: domain.SignalNetwork,
		},
		{
			name:       "permission denied",
			err:        genai.APIError{Code: 403, Message: "API key not valid"},
			wantSignal: domain.SignalOther,
		},
		{
			name:       "deadline",
			err:        fmt.Errorf("doing request: %w", context.DeadlineExceeded),
			wantSignal: domain.SignalNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var perr *domain.ProviderError
			if !errors.As(classify(tt.err), &perr) {
				t.Fatalf("classify did not return a provider error")
			}
			if perr.Signal != tt.wantSignal {
				t.Errorf("signal %s, want %s", perr.Signal, tt.wantSignal)
			}
			if perr.RetryAfter != tt.wantDelay {
				t.Errorf("retry after %s, want %s", perr.RetryAfter, tt.wantDelay)
			}
		})
	}
}

func TestModelID(t *testing.T) {
	for in, want := range map[string]string{
		"models/gemini-2.5-flash":                 "gemini-2.5-flash",
		"publishers/google/models/gemini-1.5-pro": "gemini-1.5-pro",
		"gemini-2.0-flash":                        "gemini-2.0-flash",
	} {
		if got := modelID(in); got != want {
			t.Errorf("modelID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContents(t *testing.T) {
	att, err := domain.NewInlineAttachment("paper.pdf", "application/pdf", []byte("%PDF-1.4"), 0)
	if err != nil {
		t.Fatal(err)
	}

	call := domain.Call{
		Prompt:     "Summarize",
		Attachment: att,
		History: []domain.Turn{
			{Role: domain.RoleUser, Text: "hi"},
			{Role: domain.RoleAssistant, Text: "hello"},
		},
	}

	got := contents(call)
	if len(got) != 3 {
		t.Fatalf("got %d contents, want 3", len(got))
	}
	if got[0].Role != "user" || got[1].Role != "model" || got[2].Role != "user" {
		t.Errorf("unexpected roles %q %q %q", got[0].Role, got[1].Role, got[2].Role)
	}

	last := got[2].Parts
	if len(last) != 2 || last[0].InlineData == nil || last[0].InlineData.MIMEType != "application/pdf" || last[1].Text != "Summarize" {
		t.Errorf("unexpected final parts %+v", last)
	}
}

func TestContentsWithRemoteFile(t *testing.T) {
	att := domain.NewRemoteAttachment("lecture.mp4", domain.RemoteFile{
		Name:     "files/abc",
		URI:      "https://generativelanguage.googleapis.com/v1beta/files/abc",
		MIMEType: "video/mp4",
		State:    domain.FileStateActive,
	})

	parts := contents(domain.Call{Prompt: "What is shown?", Attachment: att})[0].Parts
	if parts[0].FileData == nil || parts[0].FileData.FileURI != "https://generativelanguage.googleapis.com/v1beta/files/abc" {
		t.Errorf("expected file reference part, got %+v", parts[0])
	}
}

func TestConfigPersona(t *testing.T) {
	cfg := config(domain.Call{Persona: domain.DefaultPersona, Temperature: 0.3})
	if cfg.SystemInstruction == nil || cfg.Temperature == nil || *cfg.Temperature != 0.3 {
		t.Errorf("unexpected config %+v", cfg)
	}

	if cfg := config(domain.Call{}); cfg.SystemInstruction != nil {
		t.Errorf("expected no system instruction")
	}
}

func TestNewClientRequiresCredential(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if !errors.Is(err, domain.ErrConfigurationMissing) {
		t.Errorf("expected configuration missing, got %v", err)
	}
}
