// Package client talks to the relay over HTTP the way the browser frontend
// does: submit a message, then poll until the turn settles.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/model"
	"converse-relay/internal/infra/logging"
	"converse-relay/internal/infra/retry"
)

const DefaultPollInterval = time.Second

type Client struct {
	base     string
	http     *http.Client
	interval time.Duration
	retry    retry.Policy
	log      *zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithPollInterval(d time.Duration) Option { return func(c *Client) { c.interval = d } }
func WithLogger(l *zerolog.Logger) Option { return func(c *Client) { c.log = l } }
func WithRetryPolicy(p retry.Policy) Option { return func(c *Client) { c.retry = p } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:     strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		interval: DefaultPollInterval,
		retry:    retry.DefaultPolicy(),
		log:      logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Send submits a message and returns the acceptance receipt.
func (c *Client) Send(ctx context.Context, userID, message string) (*model.Receipt, error) {
	body, err := json.Marshal(map[string]string{"userId": userID, "message": message})
	if err != nil {
		return nil, err
	}
	var rc model.Receipt
	if err := c.do(ctx, "relay.chat", http.MethodPost, c.base+"/chat", body, http.StatusAccepted, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

// Result reads the latest record for userID once.
func (c *Client) Result(ctx context.Context, userID string) (*model.TaskResult, error) {
	u := c.base + "/results?userId=" + url.QueryEscape(userID)
	var r model.TaskResult
	if err := c.do(ctx, "relay.results", http.MethodGet, u, nil, http.StatusOK, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Await polls until the record for turnID is terminal. Records from other
// turns, not_found and transient read failures keep it polling.
func (c *Client) Await(ctx context.Context, userID, turnID string) (*model.TaskResult, error) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		r, err := c.Result(ctx, userID)
		switch {
		case err != nil:
			c.log.Debug().Err(err).Msg("poll failed, retrying")
		case r.Terminal() && (turnID == "" || r.TurnID == turnID):
			return r, nil
		default:
			c.log.Trace().Str("status", string(r.Status)).Msg("still waiting")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Ask is Send followed by Await.
func (c *Client) Ask(ctx context.Context, userID, message string) (*model.TaskResult, error) {
	rc, err := c.Send(ctx, userID, message)
	if err != nil {
		return nil, err
	}
	return c.Await(ctx, userID, rc.TurnID)
}

func (c *Client) do(ctx context.Context, op, method, u string, body []byte, want int, out any) error {
	resp, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*http.Response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil && ctx.Err() == nil {
			return nil, retry.Transient(err)
		}
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &domain.UpstreamStatusError{Op: op, Status: resp.StatusCode, Body: msg}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidResponse, op, err)
	}
	return nil
}
