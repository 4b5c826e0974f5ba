package ondemand

import (
	"context"
	"encoding/json"
	"fmt"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/ports/adapter"
)

var _ adapter.SpeechClient = (*SpeechClient)(nil)

const maxSpeechRunes = 4096

type SpeechClient struct {
	opts Options
	tr   *transport
}

func NewSpeechClient(o Options) *SpeechClient {
	o = o.withDefaults()
	return &SpeechClient{opts: o, tr: newTransport(o)}
}

// Synthesize returns domain.ErrNotConfigured in degraded mode so callers
// can fall back to browser speech.
func (s *SpeechClient) Synthesize(ctx context.Context, text string) (json.RawMessage, error) {
	if IsPlaceholder(s.opts.APIKey) {
		return nil, domain.ErrNotConfigured
	}
	if r := []rune(text); len(r) > maxSpeechRunes {
		text = string(r[:maxSpeechRunes])
	}

	resp, err := s.tr.postJSON(ctx, "speech.synthesize", s.opts.SpeechURL, map[string]string{
		"text":  text,
		"voice": s.opts.Voice,
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.statusError("speech.synthesize")
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%w: speech synthesize", domain.ErrInvalidResponse)
	}
	return json.RawMessage(resp.Body), nil
}
