package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the gridcheck criteria indexer.
// Values come from config.yaml with environment-variable overrides.
// Secrets (database password, embedding API key) must only come from
// environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL with pgvector)
	Database DatabaseConfig `yaml:"database"`

	// Embedding provider configuration (OpenAI-compatible endpoint)
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Indexer batch behavior
	Indexer IndexerConfig `yaml:"indexer"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"gridcheck"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"gridcheck"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// EmbeddingConfig holds the embedding provider endpoint settings.
// The endpoint must be OpenAI-compatible (POST /embeddings).
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model      string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey     string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS" env-default:"1024"`
}

// IndexerConfig holds batch pacing settings for indexing runs.
type IndexerConfig struct {
	// PauseEvery is how many documents are processed between pauses.
	PauseEvery int `yaml:"pause_every" env:"INDEXER_PAUSE_EVERY" env-default:"10"`
	// PauseMillis is the pause duration in milliseconds.
	PauseMillis int `yaml:"pause_millis" env:"INDEXER_PAUSE_MILLIS" env-default:"500"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding base_url is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Indexer.PauseEvery <= 0 {
		return fmt.Errorf("indexer pause_every must be positive, got %d", c.Indexer.PauseEvery)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
