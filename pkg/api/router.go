package api

import (
	"net/http"

	"github.com/dskvich/scholarai/pkg/api/handler"
)

// NewRouter wires the research session routes.
func NewRouter(gateway handler.Gateway, repo handler.SessionRepository, defaults handler.Defaults) http.Handler {
	sessions := handler.NewSessions(gateway, repo, defaults)
	models := handler.NewModels(gateway)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", sessions.Create)
	mux.HandleFunc("GET /api/sessions/{id}", sessions.Get)
	mux.HandleFunc("DELETE /api/sessions/{id}", sessions.Clear)
	mux.HandleFunc("POST /api/sessions/{id}/attachment", sessions.Attach)
	mux.HandleFunc("POST /api/sessions/{id}/ask", sessions.Ask)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", sessions.Transcript)
	mux.HandleFunc("GET /api/models", models.List)

	return chain(mux, withAccessLog, withRequestID)
}
