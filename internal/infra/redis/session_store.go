package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

// Sealer protects tokens at rest. security.TokenSealer implements it.
type Sealer interface {
	Seal(token string) (string, error)
	Open(sealed string) (string, error)
}

// SessionStore caches upstream session tokens without expiry. With a nil
// sealer tokens are stored as-is.
type SessionStore struct {
	c      *Client
	sealer Sealer
}

func NewSessionStore(c *Client, sealer Sealer) *SessionStore {
	return &SessionStore{c: c, sealer: sealer}
}

func (s *SessionStore) Get(ctx context.Context, userID string) (string, error) {
	tok, err := s.c.cli.Get(ctx, s.c.key("session", userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil || s.sealer == nil {
		return tok, err
	}
	plain, err := s.sealer.Open(tok)
	if err != nil {
		// Unreadable entries (e.g. after a key rotation) force a fresh session.
		return "", fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return plain, nil
}

func (s *SessionStore) Put(ctx context.Context, userID, token string) error {
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(token)
		if err != nil {
			return fmt.Errorf("seal session token: %w", err)
		}
		token = sealed
	}
	return s.c.cli.Set(ctx, s.c.key("session", userID), token, 0).Err()
}
