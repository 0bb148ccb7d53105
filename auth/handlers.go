package auth

import (
	"net/http"

	"github.com/transportuni/chatbot-api/apperror"
)

// Handlers exposes the auth service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleRegister godoc
// @Summary Register an account
// @Description Creates an active account and returns it with an access and refresh token.
// @Tags Auth
// @Accept json
// @Produce json
// @Param registerBody body auth.RegisterRequest true "Registration details"
// @Success 201 {object} auth.RegisterResponse
// @Failure 400 {object} apperror.ErrorResponse "Invalid input"
// @Failure 409 {object} apperror.ErrorResponse "Username or email already exists"
// @Failure 429 {object} apperror.ErrorResponse "Too many requests"
// @Router /auth/register [post]
func (h *Handlers) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := DecodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		resp, err := h.service.Register(r.Context(), req)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

// HandleLogin godoc
// @Summary Log in (form)
// @Description OAuth2 password-style login with form-encoded username and password.
// @Tags Auth
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Username or email"
// @Param password formData string true "Password"
// @Success 200 {object} auth.TokenResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Invalid username or password"
// @Failure 403 {object} apperror.ErrorResponse "Account is inactive"
// @Router /auth/login [post]
func (h *Handlers) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			WriteError(w, r, apperror.NewBadRequestError("invalid form body", err))
			return
		}
		req := LoginRequest{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
		}
		h.login(w, r, req)
	}
}

// HandleLoginJSON godoc
// @Summary Log in (JSON)
// @Tags Auth
// @Accept json
// @Produce json
// @Param loginBody body auth.LoginRequest true "Credentials"
// @Success 200 {object} auth.TokenResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Invalid username or password"
// @Failure 403 {object} apperror.ErrorResponse "Account is inactive"
// @Router /auth/login/json [post]
func (h *Handlers) HandleLoginJSON() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := DecodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		h.login(w, r, req)
	}
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request, req LoginRequest) {
	if err := Validate(&req); err != nil {
		WriteError(w, r, err)
		return
	}
	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleRefresh godoc
// @Summary Refresh the access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param refreshBody body auth.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} auth.TokenResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Invalid refresh token"
// @Router /auth/refresh [post]
func (h *Handlers) HandleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshTokenRequest
		if err := DecodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		resp, err := h.service.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleMe godoc
// @Summary Current account
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} auth.Account
// @Failure 401 {object} apperror.ErrorResponse "Not authenticated"
// @Router /auth/me [get]
func (h *Handlers) HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := RequireAccount(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, account)
	}
}
