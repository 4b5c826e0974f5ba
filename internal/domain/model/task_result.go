package model

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusError      TaskStatus = "error"
	// TaskStatusNotFound is synthesized by the poll path and never stored.
	TaskStatusNotFound TaskStatus = "not_found"
)

// TaskResult is the latest outcome of a user's turn.
type TaskResult struct {
	Status         TaskStatus      `json:"status"`
	TurnID         string          `json:"turnId,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	FailedAt       *time.Time      `json:"failedAt,omitempty"`
	ChatResponse   json.RawMessage `json:"chatResponse,omitempty"`
	WorkflowResult string          `json:"workflowResult,omitempty"`
	Error          string          `json:"error,omitempty"`
	Message        string          `json:"message,omitempty"`
}

func NewProcessing(turnID string, at time.Time) *TaskResult {
	return &TaskResult{Status: TaskStatusProcessing, TurnID: turnID, StartedAt: &at}
}

func NewDone(turnID string, at time.Time, chat json.RawMessage, workflow string) *TaskResult {
	return &TaskResult{
		Status:         TaskStatusDone,
		TurnID:         turnID,
		CompletedAt:    &at,
		ChatResponse:   chat,
		WorkflowResult: workflow,
	}
}

func NewFailed(turnID string, at time.Time, err error) *TaskResult {
	return &TaskResult{Status: TaskStatusError, TurnID: turnID, FailedAt: &at, Error: err.Error()}
}

func NotFound() *TaskResult {
	return &TaskResult{Status: TaskStatusNotFound, Message: "No result found for this user"}
}

// Terminal reports whether the poller can stop.
func (r *TaskResult) Terminal() bool {
	return r.Status == TaskStatusDone || r.Status == TaskStatusError
}

// SettledAt is when a terminal record was written.
func (r *TaskResult) SettledAt() (time.Time, bool) {
	switch {
	case r.CompletedAt != nil:
		return *r.CompletedAt, true
	case r.FailedAt != nil:
		return *r.FailedAt, true
	}
	return time.Time{}, false
}

// Receipt is the synchronous acknowledgement of an accepted turn.
type Receipt struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TurnID  string `json:"turnId"`
}
