// Package memstore holds the in-process Result Store and Session cache.
// Both live for the lifetime of the process and vanish on restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/model"
	"converse-relay/internal/domain/ports/repository"
)

var (
	_ repository.ResultStore  = (*ResultStore)(nil)
	_ repository.SessionStore = (*SessionStore)(nil)
)

type ResultStore struct {
	mu      sync.RWMutex
	results map[string]model.TaskResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]model.TaskResult)}
}

func (s *ResultStore) Begin(_ context.Context, userID string, r *model.TaskResult) error {
	s.mu.Lock()
	s.results[userID] = *r
	s.mu.Unlock()
	return nil
}

func (s *ResultStore) Finish(_ context.Context, userID string, r *model.TaskResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.results[userID]
	if !ok || cur.TurnID != r.TurnID {
		return false, nil
	}
	s.results[userID] = *r
	return true, nil
}

func (s *ResultStore) Get(_ context.Context, userID string) (*model.TaskResult, error) {
	s.mu.RLock()
	r, ok := s.results[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

// Sweep drops terminal records settled before cutoff. Records still
// processing are kept regardless of age.
func (s *ResultStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for user, r := range s.results {
		if at, ok := r.SettledAt(); ok && at.Before(cutoff) {
			delete(s.results, user)
			n++
		}
	}
	return n, nil
}

type SessionStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{tokens: make(map[string]string)}
}

func (s *SessionStore) Get(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	tok, ok := s.tokens[userID]
	s.mu.RUnlock()
	if !ok {
		return "", domain.ErrNotFound
	}
	return tok, nil
}

func (s *SessionStore) Put(_ context.Context, userID, token string) error {
	s.mu.Lock()
	s.tokens[userID] = token
	s.mu.Unlock()
	return nil
}
