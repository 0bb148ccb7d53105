package auth

import "strings"

// RegisterRequest represents the registration request payload.
// `validate` tags are checked by DecodeJSON before the service sees the request.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50" example:"alice"`
	Email    string `json:"email" validate:"required,email,max=255" example:"a@x.com"`
	Password string `json:"password" validate:"required,min=6,max=72" example:"Secret1"`
}

// Normalize trims the username and email and lowercases the email.
func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// LoginRequest represents the login payload, for both the form and JSON variants.
// Username may also be the account's email address.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=255" example:"alice"`
	Password string `json:"password" validate:"required,max=255" example:"Secret1"`
}

// Normalize trims the login name the same way registration does.
func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// RefreshTokenRequest carries the refresh token to exchange for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// TokenResponse is returned by login, registration and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	RefreshToken string `json:"refresh_token,omitempty" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType    string `json:"token_type" example:"bearer"`
	// ExpiresIn is the access token's remaining lifetime in seconds.
	ExpiresIn int64 `json:"expires_in" example:"3600"`
}

// RegisterResponse is the created account plus its first token pair.
type RegisterResponse struct {
	Account *Account `json:"account"`
	TokenResponse
}
