package repository

import (
	"context"

	"converse-relay/internal/domain/model"
)

// ResultStore keeps the latest TaskResult per user identity.
type ResultStore interface {
	// Begin unconditionally records a processing result, superseding any earlier turn.
	Begin(ctx context.Context, userID string, r *model.TaskResult) error
	// Finish records a terminal result only if r.TurnID is still the user's current turn.
	Finish(ctx context.Context, userID string, r *model.TaskResult) (bool, error)
	// Get returns domain.ErrNotFound when nothing is stored.
	Get(ctx context.Context, userID string) (*model.TaskResult, error)
}

// SessionStore caches upstream session tokens per user identity.
type SessionStore interface {
	// Get returns domain.ErrNotFound when no token is cached.
	Get(ctx context.Context, userID string) (string, error)
	Put(ctx context.Context, userID, token string) error
}
