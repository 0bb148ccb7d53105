package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/transportuni/chatbot-api/apperror"
)

// DenialReason explains why the ownership guard refused access.
type DenialReason string

const (
	DenialUnauthenticated     DenialReason = "unauthenticated"
	DenialNotFoundOrForbidden DenialReason = "not-found-or-forbidden"
)

// Denial is returned when a request may not touch a resource. A missing resource
// and a resource owned by someone else produce the same Denial.
type Denial struct {
	Reason DenialReason
	// Resource names the kind of resource in client messages, e.g. "chat message".
	Resource string
}

func (d *Denial) Error() string {
	if d.Reason == DenialUnauthenticated {
		return "not authenticated"
	}
	if d.Resource == "" {
		return "resource not found"
	}
	return d.Resource + " not found"
}

// AppError maps the denial onto the shared error vocabulary: 401 or 404.
func (d *Denial) AppError() *apperror.AppError {
	if d.Reason == DenialUnauthenticated {
		return apperror.NewAuthError(d.Error(), nil)
	}
	return apperror.NewNotFoundError(d.Error(), nil)
}

// Authorize checks that the request identity owns the resource identified by rawID.
// find loads a resource by id scoped to its owner and returns an apperror NotFound
// error when the owner has no resource with that id.
// On success it returns the caller's account and the resource.
func Authorize[T any](ctx context.Context, resource, rawID string, find func(ctx context.Context, owner, id uuid.UUID) (T, error)) (*Account, T, error) {
	var zero T

	account, err := RequireAccount(ctx)
	if err != nil {
		return nil, zero, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, zero, &Denial{Reason: DenialNotFoundOrForbidden, Resource: resource}
	}

	found, err := find(ctx, account.ID, id)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, zero, &Denial{Reason: DenialNotFoundOrForbidden, Resource: resource}
		}
		return nil, zero, err
	}
	return account, found, nil
}
