package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/logger"
)

const (
	kindSessionNotFound = "session_not_found"
	kindSessionChanged  = "session_changed"
)

type JSONResponseWriter struct{}

func (j *JSONResponseWriter) WriteSuccessResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding success response", logger.Err(err))
	}
}

func (j *JSONResponseWriter) WriteErrorResponse(w http.ResponseWriter, statusCode int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Kind: kind}); err != nil {
		slog.Error("encoding error response", logger.Err(err))
	}
}

// WriteError answers with the user-facing message for err and the status of
// its kind.
func (j *JSONResponseWriter) WriteError(w http.ResponseWriter, err error) {
	var e *domain.Error
	if errors.As(err, &e) && e.Kind == domain.KindQuotaExhausted && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}

	j.WriteErrorResponse(w, StatusFor(err), Kind(err), UserMessage(err))
}

// StatusFor maps the kind of err to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionChanged):
		return http.StatusConflict
	}

	switch domain.KindOf(err) {
	case domain.KindQuotaExhausted:
		return http.StatusTooManyRequests
	case domain.KindModelUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindRequestRejected:
		if errors.Is(err, domain.ErrAttachmentTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case domain.KindTransientNetwork:
		return http.StatusGatewayTimeout
	case domain.KindProviderUnreachable:
		return http.StatusBadGateway
	case domain.KindIndexingTimeout:
		return http.StatusRequestTimeout
	case domain.KindConfigurationMissing:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Kind is the machine-readable error kind sent to clients.
func Kind(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return kindSessionNotFound
	case errors.Is(err, domain.ErrSessionChanged):
		return kindSessionChanged
	}
	return domain.KindOf(err).String()
}

func UserMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "Session not found. Create a new session to begin."
	case errors.Is(err, domain.ErrSessionChanged):
		return "The session was cleared or given a new file before this finished."
	}
	return domain.UserMessage(err)
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
