package config

import (
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Stream    StreamConfig    `yaml:"stream"`
	Models    []string        `yaml:"models"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Database  DatabaseConfig  `yaml:"database"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
}

// BackendConfig describes the OAuth-backed API gateway the bridge forwards to.
// It is captured once at startup and never reloaded.
type BackendConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
	AuthDir       string        `yaml:"auth_dir"`
	RequireAuth   bool          `yaml:"require_auth"`
}

type PromptConfig struct {
	OverridePath   string `yaml:"override_path"`
	MaxTokensLimit int    `yaml:"max_tokens_limit"`
}

type StreamConfig struct {
	ChunkSize   int      `yaml:"chunk_size"`
	StopMarkers []string `yaml:"stop_markers"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
	TraceFile   string `yaml:"trace_file"`
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

// RateLimitConfig limits POST /v1/messages per client IP. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int32  `yaml:"max_conns"`
}

// Enabled reports whether the request journal should be written.
func (d DatabaseConfig) Enabled() bool { return d.Host != "" }

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8318,
			ReadTimeout: 30 * time.Second,
			// 0 disables the write deadline; streams are long-lived.
			WriteTimeout:     0,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 15 * time.Second,
			MaxBodyBytes:     32 << 20,
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8319",
			Timeout:       120 * time.Second,
			StreamTimeout: 30 * time.Second,
			AuthDir:       "~/.cli-proxy-api",
			RequireAuth:   true,
		},
		Prompt: PromptConfig{
			OverridePath:   "prompt-config.json",
			MaxTokensLimit: 8192,
		},
		Stream: StreamConfig{
			ChunkSize:   1024,
			StopMarkers: DefaultStopMarkers(),
		},
		Models: DefaultModels(),
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9318,
		},
		Redis: RedisConfig{
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Port:     5432,
			Name:     "bridge",
			User:     "bridge",
			MaxConns: 4,
		},
	}
}

// DefaultStopMarkers are the two spellings of the terminal stream event.
func DefaultStopMarkers() []string {
	return []string{`"type":"message_stop"`, `"type": "message_stop"`}
}
