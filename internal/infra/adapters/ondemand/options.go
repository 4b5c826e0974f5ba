// File: internal/infra/adapters/ondemand/options.go
package ondemand

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"converse-relay/internal/config"
	"converse-relay/internal/infra/logging"
	"converse-relay/internal/infra/retry"
)

// Options is shared by every on-demand.io client.
type Options struct {
	APIKey        string
	WorkflowID    string
	ChatBaseURL   string
	AutomationURL string
	SpeechURL     string
	EndpointID    string
	ResponseMode  string
	Voice         string

	HTTPClient *http.Client
	Retry      retry.Policy
	Logger     *zerolog.Logger
	Now        func() time.Time
}

func OptionsFromConfig(cfg *config.Config, log *zerolog.Logger) Options {
	od := cfg.OnDemand
	return Options{
		APIKey:        od.APIKey,
		WorkflowID:    cfg.Workflow.ID,
		ChatBaseURL:   od.ChatBaseURL,
		AutomationURL: od.AutomationURL,
		SpeechURL:     od.SpeechURL,
		EndpointID:    od.EndpointID,
		ResponseMode:  od.ResponseMode,
		Voice:         od.Voice,
		HTTPClient:    &http.Client{Timeout: od.HTTPTimeout},
		Retry:         retry.Policy{MaxRetries: od.MaxRetries, BaseDelay: od.RetryBaseDelay},
		Logger:        log,
	}
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Retry.BaseDelay <= 0 {
		o.Retry.BaseDelay = retry.DefaultBaseDelay
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.EndpointID == "" {
		o.EndpointID = "predefined-openai-gpt4o"
	}
	if o.ResponseMode == "" {
		o.ResponseMode = "sync"
	}
	if o.Voice == "" {
		o.Voice = "nova"
	}
	o.ChatBaseURL = strings.TrimRight(o.ChatBaseURL, "/")
	o.AutomationURL = strings.TrimRight(o.AutomationURL, "/")
	return o
}

// IsPlaceholder reports values copied verbatim from an example env file,
// e.g. "", "your_api_key_here" or "none".
func IsPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || strings.Contains(v, "your_") || v == "none"
}
