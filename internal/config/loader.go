package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "TRIAGE_"
	envConfigPath = "TRIAGE_CONFIG"
	defaultDotEnv = ".env"
)

type loadOptions struct {
	file    string
	dotEnvs []string
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithFile loads the given YAML file instead of the one named by TRIAGE_CONFIG.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) {
		if path != "" {
			o.file = path
		}
	}
}

// WithDotEnv replaces the default ".env" lookup. Missing files are skipped.
func WithDotEnv(paths ...string) LoadOption {
	return func(o *loadOptions) {
		o.dotEnvs = paths
	}
}

// Load builds a Config by layering defaults, optional file, .env and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) from WithFile or TRIAGE_CONFIG
//  3. .env files, which only fill variables not already set
//  4. env (prefix TRIAGE_)
func Load(_ context.Context, opts ...LoadOption) (*Config, error) {
	o := loadOptions{
		file:    os.Getenv(envConfigPath),
		dotEnvs: []string{defaultDotEnv},
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := New()
	k := koanf.New(".")

	if o.file != "" {
		if err := k.Load(file.Provider(o.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, o.file, err)
		}
	}

	for _, p := range o.dotEnvs {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, p, err)
		}
	}

	// TRIAGE_MODEL_DIR -> model_dir. Underscores are kept to match the flat tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
