package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the interviewd server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AI         AIConfig
	Queue      QueueConfig
	Lifecycle  LifecycleConfig
	Evaluation EvaluationConfig
	Notify     NotifyConfig
	Auth       AuthConfig
	Log        LogConfig
	Tracing    TracingConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	MaxConcurrent    int
	RubricFile       string
	OpenAI           OpenAIConfig
	Ollama           OllamaConfig
	Gemini           GeminiConfig
	Vertex           VertexConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type VertexConfig struct {
	Project  string
	Location string
	Model    string
}

// QueueConfig configures RabbitMQ. An empty URL selects the in-process
// worker pool for evaluations and log-only email delivery.
type QueueConfig struct {
	URL             string
	EvaluationQueue string
	EmailQueue      string
}

type LifecycleConfig struct {
	SweepInterval  time.Duration
	SweepBatchSize int
}

type EvaluationConfig struct {
	AutoTrigger bool
	Workers     int
	LockTTL     time.Duration
}

type NotifyConfig struct {
	Timeout time.Duration
}

type AuthConfig struct {
	ActorTokenSecret string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type TracingConfig struct {
	Enabled           bool
	ServiceName       string
	CollectorEndpoint string
}

var validProviders = map[string]bool{
	"openai": true,
	"ollama": true,
	"gemini": true,
	"vertex": true,
	"mock":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("INTERVIEWD_PORT", 8080),
			Env:               envString("INTERVIEWD_ENV", "development"),
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectAttempts: envInt("DATABASE_CONNECT_ATTEMPTS", 5),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			MaxConcurrent:    envInt("AI_MAX_CONCURRENT", 4),
			RubricFile:       os.Getenv("AI_RUBRIC_FILE"),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.0-flash"),
			},
			Vertex: VertexConfig{
				Project:  os.Getenv("VERTEX_PROJECT"),
				Location: envString("VERTEX_LOCATION", "us-central1"),
				Model:    envString("VERTEX_MODEL", "gemini-2.0-flash"),
			},
		},
		Queue: QueueConfig{
			URL:             os.Getenv("AMQP_URL"),
			EvaluationQueue: envString("EVALUATION_QUEUE", "interview_evaluations"),
			EmailQueue:      envString("EMAIL_QUEUE", "emails"),
		},
		Lifecycle: LifecycleConfig{
			SweepInterval:  envDuration("LIFECYCLE_SWEEP_INTERVAL", 30*time.Second),
			SweepBatchSize: envInt("LIFECYCLE_SWEEP_BATCH", 100),
		},
		Evaluation: EvaluationConfig{
			AutoTrigger: envBool("EVALUATION_AUTO_TRIGGER", true),
			Workers:     envInt("EVALUATION_WORKERS", 4),
			LockTTL:     envDuration("EVALUATION_LOCK_TTL", 5*time.Minute),
		},
		Notify: NotifyConfig{
			Timeout: envDuration("NOTIFY_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			ActorTokenSecret: os.Getenv("ACTOR_TOKEN_SECRET"),
		},
		Log: LogConfig{
			Level:      strings.ToLower(envString("LOG_LEVEL", "info")),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 30),
		},
		Tracing: TracingConfig{
			Enabled:           envBool("TRACING_ENABLED", false),
			ServiceName:       envString("TRACING_SERVICE_NAME", "interviewd"),
			CollectorEndpoint: envString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.ActorTokenSecret == "" {
		return fmt.Errorf("ACTOR_TOKEN_SECRET is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, ollama, gemini, vertex, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AI.Provider == "vertex" && c.AI.Vertex.Project == "" {
		return fmt.Errorf("VERTEX_PROJECT is required when AI_PROVIDER is vertex")
	}
	if c.AI.MaxConcurrent <= 0 {
		return fmt.Errorf("AI_MAX_CONCURRENT must be positive, got %d", c.AI.MaxConcurrent)
	}

	if c.Queue.URL != "" && !strings.HasPrefix(c.Queue.URL, "amqp://") && !strings.HasPrefix(c.Queue.URL, "amqps://") {
		return fmt.Errorf("AMQP_URL must start with amqp:// or amqps://, got %q", c.Queue.URL)
	}

	if c.Lifecycle.SweepInterval <= 0 {
		return fmt.Errorf("LIFECYCLE_SWEEP_INTERVAL must be positive")
	}
	if c.Lifecycle.SweepBatchSize <= 0 {
		return fmt.Errorf("LIFECYCLE_SWEEP_BATCH must be positive, got %d", c.Lifecycle.SweepBatchSize)
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
