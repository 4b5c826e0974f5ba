// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigin   string        `yaml:"allowed_origin"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type OnDemandConfig struct {
	APIKey         string        `yaml:"api_key"`
	ChatBaseURL    string        `yaml:"chat_base_url"`
	AutomationURL  string        `yaml:"automation_base_url"`
	SpeechURL      string        `yaml:"speech_url"`
	EndpointID     string        `yaml:"endpoint_id"`
	ResponseMode   string        `yaml:"response_mode"`
	Voice          string        `yaml:"voice"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

type WorkflowConfig struct {
	ID string `yaml:"id"`
}

type WorkerConfig struct {
	Count       int           `yaml:"count"`
	Queue       int           `yaml:"queue"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | redis
	// ResultRetention evicts settled in-memory results after this long; zero keeps them until overwritten.
	ResultRetention time.Duration `yaml:"result_retention"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
	// SessionSecret enables AES-GCM sealing of cached session tokens.
	SessionSecret string `yaml:"session_secret"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	OnDemand OnDemandConfig `yaml:"ondemand"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Worker   WorkerConfig   `yaml:"worker"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (a missing file is not an error),
// applies a .env file if one exists, then environment overrides and defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	// Seeded before decoding so an omitted key keeps its default.
	cfg := Config{
		OnDemand: OnDemandConfig{MaxRetries: 2},
		Metrics:  MetricsConfig{Enabled: true},
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	switch cfg.Store.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required when store.backend=redis")
		}
	default:
		return nil, fmt.Errorf("unknown store.backend %q", cfg.Store.Backend)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("ONDEMAND_API_KEY"); v != "" {
		cfg.OnDemand.APIKey = v
	}
	if v := os.Getenv("WORKFLOW_ID"); v != "" {
		cfg.Workflow.ID = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Redis.SessionSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.AllowedOrigin == "" {
		cfg.Server.AllowedOrigin = "*"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.OnDemand.ChatBaseURL == "" {
		cfg.OnDemand.ChatBaseURL = "https://api.on-demand.io/chat/v1"
	}
	if cfg.OnDemand.AutomationURL == "" {
		cfg.OnDemand.AutomationURL = "https://api.on-demand.io/automation/api"
	}
	if cfg.OnDemand.SpeechURL == "" {
		cfg.OnDemand.SpeechURL = "https://api.on-demand.io/services/v1/public/service/execute/text_to_speech"
	}
	if cfg.OnDemand.EndpointID == "" {
		cfg.OnDemand.EndpointID = "predefined-openai-gpt4o"
	}
	if cfg.OnDemand.ResponseMode == "" {
		cfg.OnDemand.ResponseMode = "sync"
	}
	if cfg.OnDemand.Voice == "" {
		cfg.OnDemand.Voice = "nova"
	}
	if cfg.OnDemand.HTTPTimeout <= 0 {
		cfg.OnDemand.HTTPTimeout = 30 * time.Second
	}
	if cfg.OnDemand.MaxRetries < 0 {
		cfg.OnDemand.MaxRetries = 2
	}
	if cfg.OnDemand.RetryBaseDelay <= 0 {
		cfg.OnDemand.RetryBaseDelay = 300 * time.Millisecond
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 8
	}
	if cfg.Worker.Queue <= 0 {
		cfg.Worker.Queue = 64
	}
	if cfg.Worker.TurnTimeout <= 0 {
		cfg.Worker.TurnTimeout = 2 * time.Minute
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.ResultRetention < 0 {
		cfg.Store.ResultRetention = 0
	}
	if cfg.Store.SweepInterval <= 0 {
		cfg.Store.SweepInterval = 5 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "converse:"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
