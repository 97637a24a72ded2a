package handler

import (
	"net/http"

	"github.com/dskvich/scholarai/pkg/api/response"
	"github.com/dskvich/scholarai/pkg/domain"
)

type models struct {
	gateway Gateway
	writer  response.JSONResponseWriter
}

func NewModels(gateway Gateway) *models {
	return &models{gateway: gateway}
}

type modelsResponse struct {
	Models []string          `json:"models,omitempty"`
	Tiers  map[string]string `json:"tiers,omitempty"`
	Label  string            `json:"label,omitempty"`
	Model  string            `json:"model,omitempty"`
}

// List resolves ?label= to a model id, or lists every model with the
// resolution of each tier when no label is given.
func (h *models) List(w http.ResponseWriter, r *http.Request) {
	if label := r.URL.Query().Get("label"); label != "" {
		model, err := h.gateway.ResolveModel(r.Context(), label)
		if err != nil {
			h.writer.WriteError(w, err)
			return
		}
		h.writer.WriteSuccessResponse(w, http.StatusOK, modelsResponse{Label: label, Model: model})
		return
	}

	all, err := h.gateway.Models(r.Context())
	if err != nil {
		h.writer.WriteError(w, err)
		return
	}

	tiers := make(map[string]string, 2)
	for _, tier := range []domain.Tier{domain.TierFast, domain.TierDeep} {
		if model, err := h.gateway.ResolveModel(r.Context(), string(tier)); err == nil {
			tiers[string(tier)] = model
		}
	}

	h.writer.WriteSuccessResponse(w, http.StatusOK, modelsResponse{Models: all, Tiers: tiers})
}
