package handler

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/dskvich/scholarai/pkg/api/response"
	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/logger"
	"github.com/dskvich/scholarai/pkg/render"
)

// multipart parts above this size are spooled to disk
const multipartMemory = 32 << 20

type Gateway interface {
	Ask(ctx context.Context, req domain.Request) (string, error)
	AskStream(ctx context.Context, req domain.Request) iter.Seq2[string, error]
	Attach(ctx context.Context, name, mimeType string, size int64, r io.Reader) (*domain.Attachment, error)
	ResolveModel(ctx context.Context, preferredLabel string) (string, error)
	Models(ctx context.Context) ([]string, error)
}

type SessionRepository interface {
	Create() *domain.Session
	Get(id string) (*domain.Session, error)
	Update(id string, fn func(s *domain.Session) error) (*domain.Session, error)
}

// Defaults apply to ask requests that leave the field empty.
type Defaults struct {
	Persona     string
	Temperature float32
}

type sessions struct {
	gateway  Gateway
	repo     SessionRepository
	defaults Defaults
	calls    *inflight
	now      func() time.Time
	writer   response.JSONResponseWriter
}

func NewSessions(gateway Gateway, repo SessionRepository, defaults Defaults) *sessions {
	if defaults.Persona == "" {
		defaults.Persona = domain.DefaultPersona
	}
	return &sessions{
		gateway:  gateway,
		repo:     repo,
		defaults: defaults,
		calls:    newInflight(),
		now:      time.Now,
	}
}

type sessionResponse struct {
	ID         string         `json:"id"`
	Attachment *attachmentDTO `json:"attachment,omitempty"`
	Transcript []domain.Turn  `json:"transcript"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Message    string         `json:"message,omitempty"`
}

type attachmentDTO struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Remote    bool   `json:"remote"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	resp := sessionResponse{
		ID:         s.ID,
		Transcript: s.Transcript,
		UpdatedAt:  s.UpdatedAt,
	}
	if resp.Transcript == nil {
		resp.Transcript = []domain.Turn{}
	}
	if a := s.Attachment; a != nil {
		resp.Attachment = &attachmentDTO{
			Name:      a.Name(),
			MIMEType:  a.MIMEType(),
			SizeBytes: a.Size(),
			Remote:    a.IsRemote(),
		}
	}
	return resp
}

func (h *sessions) Create(w http.ResponseWriter, r *http.Request) {
	s := h.repo.Create()
	slog.InfoContext(r.Context(), "Session created", "session", s.ID)
	h.writer.WriteSuccessResponse(w, http.StatusCreated, toSessionResponse(s))
}

func (h *sessions) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Get(r.PathValue("id"))
	if err != nil {
		h.writer.WriteError(w, err)
		return
	}
	h.writer.WriteSuccessResponse(w, http.StatusOK, toSessionResponse(s))
}

// Clear drops the attachment and the transcript but keeps the session id.
// Asks and uploads still running for the session are abandoned.
func (h *sessions) Clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := h.repo.Update(id, func(s *domain.Session) error {
		s.Clear()
		return nil
	})
	if err != nil {
		h.writer.WriteError(w, err)
		return
	}
	if n := h.calls.abandon(id); n > 0 {
		slog.InfoContext(r.Context(), "Abandoned in-flight calls", "session", id, "count", n)
	}

	resp := toSessionResponse(s)
	resp.Message = domain.SessionClearedMessage
	h.writer.WriteSuccessResponse(w, http.StatusOK, resp)
}

func (h *sessions) Attach(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	before, err := h.repo.Get(id)
	if err != nil {
		h.writer.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxUploadSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writer.WriteError(w, &domain.Error{Kind: domain.KindRequestRejected, Message: "expected a multipart upload with a file field", Err: err})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writer.WriteError(w, &domain.Error{Kind: domain.KindRequestRejected, Message: "missing file field", Err: err})
		return
	}
	defer file.Close()

	callCtx, release := h.calls.track(r.Context(), id)
	attachment, err := h.gateway.Attach(callCtx, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	err = sessionChanged(callCtx, err)
	release()
	if err != nil {
		slog.WarnContext(r.Context(), "Attachment refused", "name", header.Filename, logger.Err(err))
		h.writer.WriteError(w, err)
		return
	}

	s, err := h.repo.Update(id, func(s *domain.Session) error {
		if s.Generation != before.Generation {
			return domain.ErrSessionChanged
		}
		s.Attach(attachment)
		return nil
	})
	if err != nil {
		h.writer.WriteError(w, err)
		return
	}
	h.calls.abandon(id)

	h.writer.WriteSuccessResponse(w, http.StatusOK, toSessionResponse(s))
}

func (h *sessions) Transcript(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Get(r.PathValue("id"))
	if err != nil {
		h.writer.WriteError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "html":
		title := "Research session"
		if s.Attachment != nil {
			title = s.Attachment.Name()
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := io.WriteString(w, render.TranscriptHTML(title, s.Transcript)); err != nil {
			slog.ErrorContext(r.Context(), "writing transcript", logger.Err(err))
		}
	case "", "json":
		h.writer.WriteSuccessResponse(w, http.StatusOK, toSessionResponse(s))
	default:
		h.writer.WriteError(w, &domain.Error{Kind: domain.KindRequestRejected, Message: "format must be html or json"})
	}
}
