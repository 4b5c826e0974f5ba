package adapter

import (
	"context"
	"encoding/json"
)

// ChatSessionClient is the port for the conversational upstream.
type ChatSessionClient interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	// SendMessage returns the upstream payload untouched.
	SendMessage(ctx context.Context, sessionToken, message string) (json.RawMessage, error)
}

// WorkflowClient is the port for the workflow-automation upstream.
// An empty handle with a nil error means the workflow was not run.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, message string) (string, error)
}

// SpeechClient synthesizes speech for the frontend.
type SpeechClient interface {
	Synthesize(ctx context.Context, text string) (json.RawMessage, error)
}
