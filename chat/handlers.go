package chat

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/auth"
)

// Handlers exposes the chat service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates new chat Handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleSave godoc
// @Summary Save a chat message
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param saveBody body chat.SaveRequest true "Message to save"
// @Success 201 {object} chat.Message
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Router /chat/save [post]
func (h *Handlers) HandleSave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Authentication is checked before the body so anonymous callers always get 401.
		if _, err := auth.RequireAccount(r.Context()); err != nil {
			auth.WriteError(w, r, err)
			return
		}
		var req SaveRequest
		if err := auth.DecodeJSON(w, r, &req); err != nil {
			auth.WriteError(w, r, err)
			return
		}
		msg, err := h.service.Save(r.Context(), req)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusCreated, msg)
	}
}

// HandleHistory godoc
// @Summary List chat history
// @Description Returns the caller's messages, newest first.
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (1-200)" default(50)
// @Param offset query int false "Items to skip" default(0)
// @Success 200 {object} chat.Page
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Router /chat/history [get]
func (h *Handlers) HandleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.RequireAccount(r.Context()); err != nil {
			auth.WriteError(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit", DefaultLimit)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		page, err := h.service.History(r.Context(), limit, offset)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, page)
	}
}

// HandleGet godoc
// @Summary Get one chat message
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message id"
// @Success 200 {object} chat.Message
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Failure 404 {object} apperror.ErrorResponse "Chat message not found"
// @Router /chat/history/{id} [get]
func (h *Handlers) HandleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, msg)
	}
}

// HandleDelete godoc
// @Summary Delete one chat message
// @Tags Chat
// @Security BearerAuth
// @Param id path string true "Message id"
// @Success 204
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Failure 404 {object} apperror.ErrorResponse "Chat message not found"
// @Router /chat/history/{id} [delete]
func (h *Handlers) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			auth.WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandlePurge godoc
// @Summary Delete the caller's chat history
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} chat.PurgeResponse
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Router /chat/history [delete]
func (h *Handlers) HandlePurge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.service.Purge(r.Context())
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, resp)
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewValidationError(name+" must be an integer", err)
	}
	return v, nil
}
