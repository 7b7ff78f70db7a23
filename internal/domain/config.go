package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" koanf:"server"`

	// Scoring thresholds (High/Medium cut points, rule and anomaly triggers)
	Thresholds Thresholds `json:"thresholds" koanf:"thresholds"`

	// Anomaly model artifact
	Model ModelConfig `json:"model" koanf:"model"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" koanf:"repository"`
	Cache      CacheConfig      `json:"cache" koanf:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" koanf:"eventbus"`

	// Scoring pipeline
	Scoring ScoringConfig `json:"scoring" koanf:"scoring"`

	// Observability
	Logging LoggingConfig `json:"logging" koanf:"logging"`
	Tracing TracingConfig `json:"tracing" koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" koanf:"host"`
	Port         int    `json:"port" koanf:"port"`
	ReadTimeout  int    `json:"readTimeout" koanf:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" koanf:"write_timeout"` // seconds
}

// ModelConfig locates the pre-trained anomaly model. Exactly one of Path or
// URL is used: Path loads a local artifact file, URL points at a remote
// scoring service whose artifact schema is fetched at startup.
type ModelConfig struct {
	Path string `json:"path" koanf:"path"`
	URL  string `json:"url" koanf:"url"`

	// MaxRetries bounds retry attempts for remote scoring calls. Calls are
	// stateless and order-independent, so retries are always safe.
	MaxRetries int `json:"maxRetries" koanf:"max_retries"`
}

// ScoringConfig holds batch pipeline settings.
type ScoringConfig struct {
	// MaxWorkers bounds the parallel per-record scoring pass.
	MaxWorkers int `json:"maxWorkers" koanf:"max_workers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`   // debug, info, warn, error
	Format string `json:"format" koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" koanf:"enabled"`
	ServiceName string `json:"serviceName" koanf:"service_name"`
	Endpoint    string `json:"endpoint" koanf:"endpoint"`
}

// DefaultConfig returns the single-node default configuration: SQLite
// repository, in-memory cache, channel event bus, local model artifact.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Thresholds: DefaultThresholds(),
		Model: ModelConfig{
			Path:       "./model/artifact.json",
			MaxRetries: 3,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			MaxWorkers: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ClusterConfig returns a configuration for multi-node deployments:
// PostgreSQL repository, two-phase Redis cache, NATS event bus.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
