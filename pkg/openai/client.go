package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dskvich/scholarai/pkg/domain"
)

type client struct {
	api *goopenai.Client
}

// NewClient creates a provider for the OpenAI API or any server speaking
// its chat completions protocol at baseURL.
func NewClient(token, baseURL string) (*client, error) {
	if token == "" {
		return nil, &domain.Error{Kind: domain.KindConfigurationMissing, Message: "OPENAI_API_KEY must be set"}
	}

	cfg := goopenai.DefaultConfig(token)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	slog.Info("OpenAI client ready", "baseURL", cfg.BaseURL)

	return &client{api: goopenai.NewClientWithConfig(cfg)}, nil
}

func (c *client) Name() string { return "openai" }

func (c *client) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, classify(err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *client) Generate(ctx context.Context, call domain.Call) (string, error) {
	req, err := buildChatCompletionRequest(call)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *client) GenerateStream(ctx context.Context, call domain.Call) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := buildChatCompletionRequest(call)
		if err != nil {
			yield("", err)
			return
		}
		req.Stream = true

		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", classify(err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", classify(err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

func (c *client) Upload(ctx context.Context, name, mimeType string, r io.Reader) (domain.RemoteFile, error) {
	return domain.RemoteFile{}, &domain.ProviderError{
		Signal:  domain.SignalOther,
		Message: fmt.Sprintf("%s: file uploads are not supported by the openai provider", name),
	}
}

func (c *client) GetFile(ctx context.Context, name string) (domain.RemoteFile, error) {
	return domain.RemoteFile{}, &domain.ProviderError{
		Signal:  domain.SignalOther,
		Message: "file uploads are not supported by the openai provider",
	}
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Signal:     domain.SignalForStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.ProviderError{
			Signal:     domain.SignalForStatus(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Message:    strings.TrimSpace(reqErr.Error()),
			Err:        err,
		}
	}

	return domain.ClassifyTransport(err)
}
