package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Validate  ValidateConfig  `yaml:"validate"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Policy    PolicyConfig    `yaml:"policy"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// RateLimitConfig holds the admission policy constants. The precedence of the
// rules (window reset, then min interval, then quota) is fixed in code.
type RateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int64         `yaml:"max_requests"`
	MinInterval time.Duration `yaml:"min_interval"`
	// SweepThreshold is the table size above which expired entries are
	// purged inline before processing the current request.
	SweepThreshold int `yaml:"sweep_threshold"`
}

type ValidateConfig struct {
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	MaxPromptChars  int `yaml:"max_prompt_chars"`
	MinPromptChars  int `yaml:"min_prompt_chars"`
}

// UpstreamConfig describes the single completion endpoint. The URL is
// deploy-time configuration and is never derived from caller input.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:         time.Minute,
			MaxRequests:    10,
			MinInterval:    2 * time.Second,
			SweepThreshold: 10_000,
		},
		Validate: ValidateConfig{
			MaxPayloadBytes: 50_000,
			MaxPromptChars:  5_000,
			MinPromptChars:  10,
		},
		Upstream: UpstreamConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/okrforge/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			MetricsPort: 9090,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}
