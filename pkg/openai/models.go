package openai

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dskvich/scholarai/pkg/domain"
)

const maxTokens = 4096

func buildChatCompletionRequest(call domain.Call) (goopenai.ChatCompletionRequest, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(call.History)+2)

	if call.Persona != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: call.Persona,
		})
	}

	for _, t := range call.History {
		role := goopenai.ChatMessageRoleUser
		if t.Role == domain.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	user, err := userMessage(call)
	if err != nil {
		return goopenai.ChatCompletionRequest{}, err
	}
	messages = append(messages, user)

	return goopenai.ChatCompletionRequest{
		Model:       call.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: call.Temperature,
	}, nil
}

// userMessage puts the prompt and the attachment into one message. Images go
// as data URLs and text files inline; other types are refused.
func userMessage(call domain.Call) (goopenai.ChatCompletionMessage, error) {
	a := call.Attachment
	if a == nil {
		return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: call.Prompt}, nil
	}

	if a.IsRemote() {
		return goopenai.ChatCompletionMessage{}, unsupported(a)
	}

	var part goopenai.ChatMessagePart
	switch {
	case strings.HasPrefix(a.MIMEType(), "image/"):
		part = goopenai.ChatMessagePart{
			Type: goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", a.MIMEType(), base64.StdEncoding.EncodeToString(a.Data())),
				Detail: goopenai.ImageURLDetailAuto,
			},
		}
	case strings.HasPrefix(a.MIMEType(), "text/"):
		part = goopenai.ChatMessagePart{
			Type: goopenai.ChatMessagePartTypeText,
			Text: fmt.Sprintf("Contents of %s:\n\n%s", a.Name(), a.Data()),
		}
	default:
		return goopenai.ChatCompletionMessage{}, unsupported(a)
	}

	return goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleUser,
		MultiContent: []goopenai.ChatMessagePart{
			part,
			{Type: goopenai.ChatMessagePartTypeText, Text: call.Prompt},
		},
	}, nil
}

func unsupported(a *domain.Attachment) *domain.ProviderError {
	return &domain.ProviderError{
		Signal:     domain.SignalMalformed,
		StatusCode: http.StatusUnsupportedMediaType,
		Message:    fmt.Sprintf("%s attachments are not supported by the openai provider", a.MIMEType()),
	}
}
