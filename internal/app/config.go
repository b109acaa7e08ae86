package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/keystore"
)

// StorageType selects where upstream API keys are kept.
type StorageType string

const (
	StorageTypeEnv     StorageType = "env"
	StorageTypeFile    StorageType = "file"
	StorageTypeKeyring StorageType = "keyring"
)

// Config is the complete gateway configuration.
type Config struct {
	ActiveProfile string         `koanf:"active_profile" json:"active_profile,omitempty"`
	Server        ServerConfig   `koanf:"server" json:"server"`
	Upstream      UpstreamConfig `koanf:"upstream" json:"upstream"`
	Keys          KeysConfig     `koanf:"keys" json:"keys"`
	Models        ModelsConfig   `koanf:"models" json:"models"`
	Limits        LimitsConfig   `koanf:"limits" json:"limits"`
	Features      FeaturesConfig `koanf:"features" json:"features"`
	Client        ClientConfig   `koanf:"client" json:"client"`
	Log           LogConfig      `koanf:"log" json:"log"`
}

type ServerConfig struct {
	Host            string        `koanf:"host" json:"host" validate:"required"`
	Port            int           `koanf:"port" json:"port" validate:"gte=0,lte=65535"`
	MaxRequestBytes int64         `koanf:"max_request_bytes" json:"max_request_bytes" validate:"gt=0"`
	RateLimit       float64       `koanf:"rate_limit" json:"rate_limit" validate:"gte=0"`
	RateBurst       int           `koanf:"rate_burst" json:"rate_burst" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type UpstreamConfig struct {
	BaseURL         string        `koanf:"base_url" json:"base_url" validate:"required,url"`
	AzureAPIVersion string        `koanf:"azure_api_version" json:"azure_api_version,omitempty"`
	RequestTimeout  time.Duration `koanf:"request_timeout" json:"request_timeout" validate:"gt=0"`
	MaxRetries      int           `koanf:"max_retries" json:"max_retries" validate:"gte=0"`
	Cooldown        time.Duration `koanf:"cooldown" json:"cooldown" validate:"gt=0"`
}

type KeysConfig struct {
	Storage        StorageType `koanf:"storage" json:"storage" validate:"required,oneof=env file keyring"`
	Values         []string    `koanf:"values" json:"values,omitempty"`
	File           string      `koanf:"file" json:"file,omitempty" validate:"required_if=Storage file"`
	KeyringService string      `koanf:"keyring_service" json:"keyring_service,omitempty" validate:"required_if=Storage keyring"`
}

// NewStore returns the key store selected by Storage.
func (c KeysConfig) NewStore() (keystore.Store, error) {
	switch c.Storage {
	case StorageTypeEnv:
		return keystore.NewEnvStore(c.Values), nil
	case StorageTypeFile:
		return keystore.NewFileStore(c.File)
	case StorageTypeKeyring:
		return keystore.NewKeyringStore(c.KeyringService)
	default:
		return nil, fmt.Errorf("unsupported key storage %q", c.Storage)
	}
}

type ModelsConfig struct {
	Big    string `koanf:"big" json:"big" validate:"required"`
	Middle string `koanf:"middle" json:"middle,omitempty"`
	Small  string `koanf:"small" json:"small" validate:"required"`
}

type LimitsConfig struct {
	MinTokens int `koanf:"min_tokens" json:"min_tokens" validate:"gte=1"`
	MaxTokens int `koanf:"max_tokens" json:"max_tokens" validate:"gtefield=MinTokens"`
}

type FeaturesConfig struct {
	PromptCache bool `koanf:"prompt_cache" json:"prompt_cache"`
}

type ClientConfig struct {
	// APIKey, when set, must be presented by clients via x-api-key or a bearer token.
	APIKey string `koanf:"api_key" json:"api_key,omitempty"`
}

type LogConfig struct {
	Level    string `koanf:"level" json:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format   string `koanf:"format" json:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}

// Defaults returns the lowest configuration layer as a flat koanf key map.
func Defaults() map[string]any {
	return map[string]any{
		"server.host":              "0.0.0.0",
		"server.port":              8082,
		"server.max_request_bytes": int64(32 << 20),
		"server.rate_limit":        0.0,
		"server.rate_burst":        0,
		"server.shutdown_timeout":  5 * time.Second,

		"upstream.base_url":        "https://api.openai.com/v1",
		"upstream.request_timeout": 90 * time.Second,
		"upstream.max_retries":     2,
		"upstream.cooldown":        keypool.DefaultCooldown,

		"keys.storage":         string(StorageTypeEnv),
		"keys.keyring_service": "msgbridge",

		"models.big":   "gpt-4o",
		"models.small": "gpt-4o-mini",

		"limits.min_tokens": 100,
		"limits.max_tokens": 4096,

		"features.prompt_cache": false,

		"log.level":    "info",
		"log.format":   "text",
		"log.exporter": "none",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			msgs := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Masked returns a copy safe for display, with every secret reduced to a prefix.
func (c Config) Masked() Config {
	masked := c
	masked.Keys.Values = make([]string, len(c.Keys.Values))
	for i, key := range c.Keys.Values {
		masked.Keys.Values[i] = keypool.Mask(key)
	}
	if c.Client.APIKey != "" {
		masked.Client.APIKey = keypool.Mask(c.Client.APIKey)
	}
	return masked
}
