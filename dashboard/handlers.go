package dashboard

import (
	"net/http"

	"github.com/transportuni/chatbot-api/auth"
)

// Handlers exposes the dashboard over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates new dashboard Handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleStats godoc
// @Summary Admin dashboard statistics
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dashboard.Stats
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Failure 403 {object} apperror.ErrorResponse "Admin privileges required"
// @Router /dashboard [get]
func (h *Handlers) HandleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.service.Stats(r.Context())
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, stats)
	}
}
