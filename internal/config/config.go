// Package config provides configuration loading for twind.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then environment variables. Validation distinguishes configuration faults
// (fatal, surfaced at startup) from runtime conditions.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidConfig indicates a configuration fault. Configuration faults are
// fatal: they are surfaced immediately and never retried.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete twind configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Vector    VectorConfig    `koanf:"vector"`
	Model     ModelConfig     `koanf:"model"`
	Database  DatabaseConfig  `koanf:"database"`
	STT       STTConfig       `koanf:"stt"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// VectorConfig holds vector backend configuration.
type VectorConfig struct {
	// Provider selects the backend: "qdrant" (external) or "chromem" (embedded).
	Provider string `koanf:"provider"`

	// URL is the Qdrant server URL. Must include host and port,
	// e.g. "http://localhost:6334". Required for the qdrant provider.
	URL string `koanf:"url"`

	// Path is the chromem persistence directory. Empty means in-memory.
	Path string `koanf:"path"`

	// Collection is the shared memory collection name. All users share one
	// collection; isolation is enforced by payload filtering.
	Collection string `koanf:"collection"`

	// Size is the embedding dimension. Must match the embedding model output.
	Size int `koanf:"size"`
}

// ModelConfig holds language-model configuration.
type ModelConfig struct {
	// APIKey authenticates against the Gemini API.
	APIKey string `koanf:"api_key"`

	// ChatModel is the primary generation model.
	ChatModel string `koanf:"chat_model"`

	// EmbeddingModel produces memory vectors.
	EmbeddingModel string `koanf:"embedding_model"`

	// Fallbacks is a comma-separated ordered list of models tried after a
	// quota-class failure of the primary model.
	Fallbacks string `koanf:"fallbacks"`

	// TopK is the default retrieval depth for chat.
	TopK int `koanf:"top_k"`
}

// DatabaseConfig holds the questionnaire database configuration.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// TelemetryConfig holds trace export configuration.
type TelemetryConfig struct {
	// Enabled turns span export on. Off by default.
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector endpoint, host:port.
	Endpoint string `koanf:"endpoint"`

	// Protocol selects the exporter transport: "grpc" or "http/protobuf".
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `koanf:"insecure"`

	// SampleRate is the trace sampling ratio in [0,1].
	SampleRate float64 `koanf:"sample_rate"`
}

// STTConfig holds speech-to-text collaborator configuration.
type STTConfig struct {
	// APIKey enables the ElevenLabs transcriber. Empty means transcription
	// is unavailable and ingestion surfaces a distinct error for responses
	// that need it.
	APIKey string `koanf:"api_key"`

	Timeout time.Duration `koanf:"timeout"`
}

// FallbackModels returns the ordered fallback model list, split and trimmed.
func (m ModelConfig) FallbackModels() []string {
	if m.Fallbacks == "" {
		return nil
	}
	var models []string
	for _, name := range strings.Split(m.Fallbacks, ",") {
		if name = strings.TrimSpace(name); name != "" {
			models = append(models, name)
		}
	}
	return models
}

// Host extracts the hostname from the vector URL.
func (v VectorConfig) Host() string {
	u, err := url.Parse(v.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Port extracts the port from the vector URL.
func (v VectorConfig) Port() int {
	u, err := url.Parse(v.URL)
	if err != nil {
		return 0
	}
	var port int
	if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
		return 0
	}
	return port
}

// Validate checks the configuration for faults.
func (c *Config) Validate() error {
	if c.Vector.Size <= 0 {
		return fmt.Errorf("%w: vector.size is required", ErrInvalidConfig)
	}

	switch c.Vector.Provider {
	case "qdrant":
		if c.Vector.URL == "" {
			return fmt.Errorf("%w: vector.url is required for the qdrant provider", ErrInvalidConfig)
		}
		u, err := url.Parse(c.Vector.URL)
		if err != nil {
			return fmt.Errorf("%w: vector.url: %v", ErrInvalidConfig, err)
		}
		if u.Hostname() == "" || u.Port() == "" {
			return fmt.Errorf("%w: vector.url must include host and port, e.g. http://localhost:6334", ErrInvalidConfig)
		}
	case "chromem":
		// Embedded backend needs no URL.
	default:
		return fmt.Errorf("%w: unknown vector.provider %q", ErrInvalidConfig, c.Vector.Provider)
	}

	if c.Vector.Collection == "" {
		return fmt.Errorf("%w: vector.collection is required", ErrInvalidConfig)
	}
	if c.Model.ChatModel == "" {
		return fmt.Errorf("%w: model.chat_model is required", ErrInvalidConfig)
	}
	if c.Model.EmbeddingModel == "" {
		return fmt.Errorf("%w: model.embedding_model is required", ErrInvalidConfig)
	}
	if c.Model.TopK <= 0 {
		return fmt.Errorf("%w: model.top_k must be positive", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// applyDefaults fills unset fields with defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = "qdrant"
	}
	if cfg.Vector.URL == "" {
		cfg.Vector.URL = "http://localhost:6334"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "user_questionnaire_memories"
	}
	if cfg.Vector.Size == 0 {
		cfg.Vector.Size = 768
	}
	if cfg.Model.ChatModel == "" {
		cfg.Model.ChatModel = "gemini-3-pro-preview"
	}
	if cfg.Model.EmbeddingModel == "" {
		cfg.Model.EmbeddingModel = "text-embedding-004"
	}
	if cfg.Model.TopK == 0 {
		cfg.Model.TopK = 5
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "twind.db"
	}
	if cfg.STT.Timeout == 0 {
		cfg.STT.Timeout = 60 * time.Second
	}
}
