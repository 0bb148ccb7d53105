// Package apperror defines the error vocabulary shared by every feature package.
// Services return *AppError values; the HTTP layer turns them into a status code
// and a uniform JSON body without inspecting error strings.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError. The type, not the message, decides the HTTP status.
type ErrorType int

const (
	// UnknownError is for unspecified errors
	UnknownError ErrorType = iota
	// DatabaseError represents a failure of the relational store
	DatabaseError
	// ConfigError represents an invalid or missing configuration value
	ConfigError
	// AuthError means the caller is not authenticated (401)
	AuthError
	// ForbiddenError means the caller is authenticated but not allowed (403)
	ForbiddenError
	// NotFoundError represents a missing resource, or one the caller may not see
	NotFoundError
	// ValidationError represents a request that failed field validation
	ValidationError
	// BadRequestError represents a malformed request
	BadRequestError
	// InternalError represents a generic internal server error
	InternalError
	// MigrationError represents a failure while applying schema migrations
	MigrationError
	// ConflictError represents a uniqueness conflict, e.g. a taken username
	ConflictError
	// TooManyRequestsError represents a rate-limited caller
	TooManyRequestsError
)

// AppError is the application error type. Message is safe to show to clients;
// Err is the wrapped cause and is only ever logged.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error so errors.Is and errors.As can walk the chain.
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code appropriate for the error type.
func (e *AppError) StatusCode() int {
	switch e.Type {
	case AuthError:
		return http.StatusUnauthorized
	case ForbiddenError:
		return http.StatusForbidden
	case NotFoundError:
		return http.StatusNotFound
	case ValidationError, BadRequestError:
		return http.StatusBadRequest
	case ConflictError:
		return http.StatusConflict
	case TooManyRequestsError:
		return http.StatusTooManyRequests
	case DatabaseError, ConfigError, InternalError, MigrationError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new AppError of the given type.
func NewAppError(errType ErrorType, message string, underlyingError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     underlyingError,
	}
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(message string, underlyingError error) *AppError {
	return NewAppError(DatabaseError, message, underlyingError)
}

// NewConfigError creates a new ConfigError
func NewConfigError(message string, underlyingError error) *AppError {
	return NewAppError(ConfigError, message, underlyingError)
}

// NewAuthError creates a new AuthError (the caller is not authenticated)
func NewAuthError(message string, underlyingError error) *AppError {
	return NewAppError(AuthError, message, underlyingError)
}

// NewForbiddenError creates a new ForbiddenError (authenticated, but not permitted)
func NewForbiddenError(message string, underlyingError error) *AppError {
	return NewAppError(ForbiddenError, message, underlyingError)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(message string, underlyingError error) *AppError {
	return NewAppError(NotFoundError, message, underlyingError)
}

// NewValidationError creates a new ValidationError
func NewValidationError(message string, underlyingError error) *AppError {
	return NewAppError(ValidationError, message, underlyingError)
}

// NewBadRequestError creates a new BadRequestError
func NewBadRequestError(message string, underlyingError error) *AppError {
	return NewAppError(BadRequestError, message, underlyingError)
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, underlyingError error) *AppError {
	return NewAppError(InternalError, message, underlyingError)
}

// NewMigrationError creates a new MigrationError
func NewMigrationError(message string, underlyingError error) *AppError {
	return NewAppError(MigrationError, message, underlyingError)
}

// NewConflictError creates a new ConflictError
func NewConflictError(message string, underlyingError error) *AppError {
	return NewAppError(ConflictError, message, underlyingError)
}

// NewTooManyRequestsError creates a new TooManyRequestsError
func NewTooManyRequestsError(message string, underlyingError error) *AppError {
	return NewAppError(TooManyRequestsError, message, underlyingError)
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string `json:"error" example:"not authenticated"`
}

// ToResponse converts an AppError to the client-facing body. The wrapped cause is never included.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message}
}

// FromError finds the first *AppError in err's chain.
func FromError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func isType(err error, t ErrorType) bool {
	ae, ok := FromError(err)
	return ok && ae.Type == t
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool { return isType(err, NotFoundError) }

// IsAuthError checks if an error is an AuthError
func IsAuthError(err error) bool { return isType(err, AuthError) }

// IsForbiddenError checks if an error is a ForbiddenError
func IsForbiddenError(err error) bool { return isType(err, ForbiddenError) }

// IsValidationError checks if an error is a Validation error
func IsValidationError(err error) bool { return isType(err, ValidationError) }

// IsConflictError checks if an error is a Conflict error
func IsConflictError(err error) bool { return isType(err, ConflictError) }
