package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrValidation          = errors.New("userId and message are required")
	ErrInvalidResponse     = errors.New("invalid response from upstream")
	ErrNotConfigured       = errors.New("upstream not configured")
	ErrSessionCreateFailed = errors.New("chat session creation failed")
	ErrQueryFailed         = errors.New("chat query failed")
	ErrPoolSaturated       = errors.New("worker queue full")
	ErrPoolStopped         = errors.New("worker pool stopped")
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// NetworkExhaustedError is returned once every transport attempt has failed.
type NetworkExhaustedError struct {
	Attempts int
	Err      error
}

func (e *NetworkExhaustedError) Error() string {
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("network request failed after %d attempts: %s", e.Attempts, msg)
}

func (e *NetworkExhaustedError) Unwrap() error { return e.Err }

// UpstreamStatusError captures a non-2xx upstream response.
type UpstreamStatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Body)
}
