package ondemand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"converse-relay/internal/domain"
	"converse-relay/internal/infra/metrics"
	"converse-relay/internal/infra/retry"
)

const maxBodyPreview = 512

type response struct {
	Status int
	Body   []byte
}

func (r *response) ok() bool { return r.Status >= 200 && r.Status < 300 }

func (r *response) statusError(op string) *domain.UpstreamStatusError {
	return &domain.UpstreamStatusError{Op: op, Status: r.Status, Body: preview(r.Body)}
}

// transport posts JSON with the apikey header through the retry wrapper.
// Non-2xx responses are returned to the caller, not retried.
type transport struct {
	client *http.Client
	apiKey string
	policy retry.Policy
	log    *zerolog.Logger
}

func newTransport(o Options) *transport {
	return &transport{client: o.HTTPClient, apiKey: o.APIKey, policy: o.Retry, log: o.Logger}
}

func (t *transport) postJSON(ctx context.Context, op, url string, payload any) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	policy := t.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.IncRetry(op)
		t.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("upstream transport failure, retrying")
	}

	start := time.Now()
	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (*response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", t.apiKey)

		res, err := t.client.Do(req)
		if err != nil {
			return nil, transportErr(ctx, err)
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, transportErr(ctx, err)
		}
		return &response{Status: res.StatusCode, Body: b}, nil
	})
	latency := time.Since(start)
	if err != nil {
		metrics.ObserveUpstream(op, "network", latency)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	outcome := "ok"
	if !resp.ok() {
		outcome = "status"
	}
	metrics.ObserveUpstream(op, outcome, latency)
	t.log.Debug().Str("op", op).Int("status", resp.Status).Dur("latency", latency).Msg("upstream call")
	return resp, nil
}

// transportErr marks client errors as retryable unless the caller gave up.
func transportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return retry.Transient(err)
}

func preview(b []byte) string {
	if len(b) > maxBodyPreview {
		return string(b[:maxBodyPreview]) + "..."
	}
	return string(b)
}
