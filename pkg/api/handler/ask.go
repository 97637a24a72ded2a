package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dskvich/scholarai/pkg/api/response"
	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/logger"
	"github.com/dskvich/scholarai/pkg/render"
)

type askRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Persona     string   `json:"persona,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type askResponse struct {
	Answer string `json:"answer"`
	HTML   string `json:"html,omitempty"`
}

type fragmentEvent struct {
	Text string `json:"text"`
}

func (h *sessions) Ask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body askRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writer.WriteError(w, &domain.Error{Kind: domain.KindRequestRejected, Message: "invalid JSON body", Err: err})
		return
	}

	s, err := h.repo.Get(id)
	if err != nil {
		h.writer.WriteError(w, err)
		return
	}

	req := domain.Request{
		Prompt:          body.Prompt,
		Attachment:      s.Attachment,
		ModelPreference: body.Model,
		Persona:         body.Persona,
		Temperature:     h.defaults.Temperature,
		History:         s.Transcript,
	}
	if req.Persona == "" {
		req.Persona = h.defaults.Persona
	}
	if body.Temperature != nil {
		req.Temperature = *body.Temperature
	}
	if err := req.Validate(); err != nil {
		h.writer.WriteError(w, err)
		return
	}

	callCtx, release := h.calls.track(r.Context(), id)
	defer release()

	if body.Stream {
		h.stream(callCtx, w, r, s, req)
		return
	}

	answer, err := h.gateway.Ask(callCtx, req)
	if err = sessionChanged(callCtx, err); err != nil {
		slog.WarnContext(r.Context(), "Ask failed", "session", id, "kind", domain.KindOf(err), logger.Err(err))
		h.writer.WriteError(w, err)
		return
	}

	if err := h.record(s, req.Prompt, answer); err != nil {
		slog.WarnContext(r.Context(), "Answer not recorded", "session", id, logger.Err(err))
		h.writer.WriteError(w, err)
		return
	}

	h.writer.WriteSuccessResponse(w, http.StatusOK, askResponse{Answer: answer, HTML: render.HTML(answer)})
}

// stream answers with server-sent events: one unnamed event per fragment,
// then either "done" or "error".
func (h *sessions) stream(ctx context.Context, w http.ResponseWriter, r *http.Request, s *domain.Session, req domain.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writer.WriteErrorResponse(w, http.StatusInternalServerError, domain.KindUnknown.String(), "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var answer []byte
	for fragment, err := range h.gateway.AskStream(ctx, req) {
		if err = sessionChanged(ctx, err); err != nil {
			slog.WarnContext(r.Context(), "Ask stream failed", "session", s.ID, "kind", domain.KindOf(err), logger.Err(err))
			writeErrorEvent(w, err)
			flusher.Flush()
			return
		}
		answer = append(answer, fragment...)
		writeEvent(w, "", fragmentEvent{Text: fragment})
		flusher.Flush()
	}

	if r.Context().Err() != nil {
		return
	}

	if err := h.record(s, req.Prompt, string(answer)); err != nil {
		slog.WarnContext(r.Context(), "Answer not recorded", "session", s.ID, logger.Err(err))
		writeErrorEvent(w, err)
	} else {
		writeEvent(w, "done", askResponse{Answer: string(answer)})
	}
	flusher.Flush()
}

// record appends the exchange unless the session was cleared or given a new
// file since s was read. Both turns are stamped when they are appended, so
// overlapping asks on one session are recorded in completion order.
func (h *sessions) record(s *domain.Session, question, answer string) error {
	_, err := h.repo.Update(s.ID, func(current *domain.Session) error {
		if current.Generation != s.Generation {
			return domain.ErrSessionChanged
		}
		current.Record(question, answer, h.now())
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording turns: %w", err)
	}
	return nil
}

func writeErrorEvent(w http.ResponseWriter, err error) {
	writeEvent(w, "error", response.ErrorResponse{Error: response.UserMessage(err), Kind: response.Kind(err)})
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("encoding event", logger.Err(err))
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
