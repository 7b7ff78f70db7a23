// Package config loads service configuration by layering defaults, an
// optional YAML file, and environment variables.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// EnvPrefix is the environment variable prefix. KESTREL_SERVER_PORT maps to
// server.port, KESTREL_THRESHOLDS_HIGH_CUT to thresholds.high_cut, and so on.
const EnvPrefix = "KESTREL_"

// Load builds the configuration. Order of precedence (low -> high):
//  1. defaults (domain.DefaultConfig)
//  2. YAML file, when path is non-empty or KESTREL_CONFIG is set
//  3. environment variables with the KESTREL_ prefix
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv("KESTREL_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, domain.WrapError(domain.KindConfiguration, domain.BatchScope, "failed to load config file "+path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		// KESTREL_SERVER_PORT -> server.port; section and key are split on
		// the first underscore, keys keep any remaining underscores.
		parts := strings.SplitN(s, "_", 2)
		return strings.Join(parts, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, domain.WrapError(domain.KindConfiguration, domain.BatchScope, "failed to load environment overrides", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, domain.WrapError(domain.KindConfiguration, domain.BatchScope, "failed to unmarshal configuration", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func Validate(cfg *domain.Config) error {
	if err := cfg.Thresholds.Validate(); err != nil {
		return err
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return domain.NewError(domain.KindConfiguration, domain.BatchScope, "server port out of range")
	}
	if cfg.Model.Path == "" && cfg.Model.URL == "" {
		return domain.NewError(domain.KindConfiguration, domain.BatchScope, "either model.path or model.url must be set")
	}
	if cfg.Model.Path != "" && cfg.Model.URL != "" {
		return domain.NewError(domain.KindConfiguration, domain.BatchScope, "model.path and model.url are mutually exclusive")
	}
	if cfg.Scoring.MaxWorkers < 1 {
		return domain.NewError(domain.KindConfiguration, domain.BatchScope, "scoring.max_workers must be at least 1")
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return domain.NewError(domain.KindConfiguration, domain.BatchScope, "unknown repository driver: "+cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return domain.NewError(domain.KindConfiguration, domain.BatchScope, "unknown cache type: "+cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return domain.NewError(domain.KindConfiguration, domain.BatchScope, "unknown event bus type: "+cfg.EventBus.Type)
	}
	return nil
}
