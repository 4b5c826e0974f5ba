// File: internal/infra/adapters/ondemand/chat_session.go
package ondemand

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/ports/adapter"
	"converse-relay/internal/infra/metrics"
)

var _ adapter.ChatSessionClient = (*ChatClient)(nil)

// MockSessionPrefix starts every token issued in degraded mode.
const MockSessionPrefix = "mock-session-"

// ChatClient talks to the on-demand.io chat API. Without an API key it
// answers with deterministic mocks and never touches the network.
type ChatClient struct {
	opts Options
	tr   *transport
}

func NewChatClient(o Options) *ChatClient {
	o = o.withDefaults()
	return &ChatClient{opts: o, tr: newTransport(o)}
}

// Configured reports whether live calls are enabled.
func (c *ChatClient) Configured() bool { return !IsPlaceholder(c.opts.APIKey) }

func (c *ChatClient) CreateSession(ctx context.Context, userID string) (string, error) {
	if !c.Configured() {
		c.opts.Logger.Warn().Str("user_id", userID).Msg("chat API not configured, using mock chat session")
		metrics.IncUpstream("chat.session", "mock")
		return fmt.Sprintf("%s%s-%d", MockSessionPrefix, userID, c.opts.Now().UnixMilli()), nil
	}

	resp, err := c.tr.postJSON(ctx, "chat.session", c.opts.ChatBaseURL+"/sessions", map[string]string{
		"externalUserId": userID,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("%w: chat session: %v", domain.ErrInvalidResponse, err)
	}
	if !resp.ok() {
		return "", fmt.Errorf("%w: %w", domain.ErrSessionCreateFailed, resp.statusError("chat.session"))
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("%w: missing data.id in %s", domain.ErrSessionCreateFailed, preview(resp.Body))
	}
	return out.Data.ID, nil
}

func (c *ChatClient) SendMessage(ctx context.Context, sessionToken, message string) (json.RawMessage, error) {
	if !c.Configured() {
		metrics.IncUpstream("chat.query", "mock")
		return json.Marshal(map[string]any{
			"success": true,
			"data": map[string]any{
				"content":   "Chat response (mock): " + message,
				"timestamp": c.opts.Now().UTC().Format(time.RFC3339Nano),
			},
		})
	}

	endpoint := c.opts.ChatBaseURL + "/sessions/" + url.PathEscape(sessionToken) + "/query"
	resp, err := c.tr.postJSON(ctx, "chat.query", endpoint, map[string]string{
		"query":        message,
		"endpointId":   c.opts.EndpointID,
		"responseMode": c.opts.ResponseMode,
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%w: chat query returned %d non-json bytes", domain.ErrInvalidResponse, len(resp.Body))
	}
	if !resp.ok() {
		return nil, fmt.Errorf("%w: %w", domain.ErrQueryFailed, resp.statusError("chat.query"))
	}
	return json.RawMessage(resp.Body), nil
}
