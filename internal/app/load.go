package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/msgbridge/internal/keystore"
)

// EnvPrefix is the prefix of environment variables read into the configuration.
// Nested keys are separated by a double underscore: MSGBRIDGE_UPSTREAM__BASE_URL.
const EnvPrefix = "MSGBRIDGE_"

// legacyEnv maps plain environment variables onto config keys.
var legacyEnv = map[string]string{
	"OPENAI_API_KEY":    "keys.values",
	"ANTHROPIC_API_KEY": "client.api_key",
	"OPENAI_BASE_URL":   "upstream.base_url",
	"AZURE_API_VERSION": "upstream.azure_api_version",
	"BIG_MODEL":         "models.big",
	"MIDDLE_MODEL":      "models.middle",
	"SMALL_MODEL":       "models.small",
	"MAX_TOKENS_LIMIT":  "limits.max_tokens",
	"MIN_TOKENS_LIMIT":  "limits.min_tokens",
	"MAX_RETRIES":       "upstream.max_retries",
	"REQUEST_TIMEOUT":   "upstream.request_timeout",
	"LOG_LEVEL":         "log.level",
	"HOST":              "server.host",
	"PORT":              "server.port",
}

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// Path of an optional TOML file.
	Path string
	// Profile overrides active_profile.
	Profile string
	// Environ returns the environment, os.Environ when nil.
	Environ func() []string
	// Overrides is the highest layer, typically from command line flags.
	Overrides map[string]any
}

// LoadConfig merges, in increasing precedence: defaults, the TOML file, the active
// profile from that file, legacy environment variables, MSGBRIDGE_ variables and
// Overrides. The result is validated.
func LoadConfig(opts LoadOptions) (*Config, error) {
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", opts.Path, err)
		}
	}

	envLayer := koanf.New(".")
	if err := envLayer.Load(confmap.Provider(legacyEnvValues(environ()), "."), nil); err != nil {
		return nil, fmt.Errorf("loading legacy environment: %w", err)
	}
	if err := envLayer.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	overrides := koanf.New(".")
	if len(opts.Overrides) > 0 {
		if err := overrides.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	profile := firstNonEmpty(opts.Profile, overrides.String("active_profile"), envLayer.String("active_profile"), k.String("active_profile"))
	if profile != "" {
		if err := applyProfile(k, profile); err != nil {
			return nil, err
		}
		if err := k.Set("active_profile", profile); err != nil {
			return nil, fmt.Errorf("setting active profile: %w", err)
		}
	}
	k.Delete("profiles")

	if err := k.Merge(envLayer); err != nil {
		return nil, fmt.Errorf("merging environment: %w", err)
	}
	if err := k.Merge(overrides); err != nil {
		return nil, fmt.Errorf("merging overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Keys.Values = keystore.Normalize(cfg.Keys.Values)
	if cfg.Models.Middle == "" {
		cfg.Models.Middle = cfg.Models.Big
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyProfile merges [profiles.<name>] over the root configuration.
func applyProfile(k *koanf.Koanf, name string) error {
	path := "profiles." + name
	if !k.Exists(path) {
		return fmt.Errorf("profile %q not found", name)
	}
	if err := k.Merge(k.Cut(path)); err != nil {
		return fmt.Errorf("applying profile %q: %w", name, err)
	}
	return nil
}

// transformEnv maps MSGBRIDGE_UPSTREAM__BASE_URL to upstream.base_url. The key list
// accepts comma-separated values.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "keys.values" {
		return key, keystore.ParseKeys(value)
	}
	return key, value
}

func legacyEnvValues(environ []string) map[string]any {
	values := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		key, known := legacyEnv[name]
		if !known {
			continue
		}
		switch key {
		case "keys.values":
			values[key] = keystore.ParseKeys(value)
		case "upstream.request_timeout":
			values[key] = legacyTimeout(value)
		case "log.level":
			values[key] = legacyLogLevel(value)
		default:
			values[key] = value
		}
	}
	return values
}

// legacyTimeout reads a bare number as seconds. Anything else is left for the
// duration decoder.
func legacyTimeout(value string) string {
	if _, err := strconv.Atoi(value); err == nil {
		return value + "s"
	}
	return value
}

// legacyLogLevel accepts the WARNING and CRITICAL level names.
func legacyLogLevel(value string) string {
	switch level := strings.ToLower(value); level {
	case "warning":
		return "warn"
	case "critical":
		return "error"
	default:
		return level
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
