package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces twind environment variables.
const envPrefix = "TWIND_"

// Load loads configuration from an optional YAML file and environment
// variables, applies defaults, and validates.
//
// Precedence (highest to lowest):
//  1. Environment variables (TWIND_VECTOR_URL, TWIND_MODEL_CHAT_MODEL, ...)
//  2. YAML config file, if configPath is non-empty and the file exists
//  3. Hardcoded defaults
//
// Environment variables map to config keys by stripping the TWIND_ prefix
// and splitting on the first underscore:
//
//	TWIND_SERVER_PORT          -> server.port
//	TWIND_VECTOR_URL           -> vector.url
//	TWIND_MODEL_CHAT_MODEL     -> model.chat_model
//	TWIND_MODEL_FALLBACKS      -> model.fallbacks
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// TWIND_VECTOR_URL -> vector.url, TWIND_MODEL_CHAT_MODEL -> model.chat_model.
		// Split on the first underscore only: section, then field name.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
