package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/transportuni/chatbot-api/auth"
)

// UserHandlers exposes account administration over HTTP.
type UserHandlers struct {
	service *UserService
}

// NewUserHandlers creates new UserHandlers.
func NewUserHandlers(service *UserService) *UserHandlers {
	return &UserHandlers{service: service}
}

// HandleUpdateStatus godoc
// @Summary Update an account's status
// @Description Enables/disables an account or grants/revokes admin. Admin only.
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param username path string true "Username"
// @Param statusBody body users.UpdateStatusRequest true "Flags to change"
// @Success 200 {object} auth.Account
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Failure 403 {object} apperror.ErrorResponse "Admin privileges required"
// @Failure 404 {object} apperror.ErrorResponse "Account not found"
// @Router /users/{username}/status [patch]
func (h *UserHandlers) HandleUpdateStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireAdmin(r.Context()); err != nil {
			auth.WriteError(w, r, err)
			return
		}

		var req UpdateStatusRequest
		if err := auth.DecodeJSON(w, r, &req); err != nil {
			auth.WriteError(w, r, err)
			return
		}

		account, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "username"), req)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, account)
	}
}
