// Package config loads the process configuration once at startup.
// Components receive it by value; there are no ambient singletons.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the file and environment say nothing.
const (
	DefaultDimension    = 1024
	DefaultWorkers      = 4
	DefaultMaxExamples  = 5
	DefaultChunkWindow  = 200
	DefaultChunkOverlap = 40
)

// Postgres holds database connection details.
type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// Airtable holds record-store connection details.
type Airtable struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	BaseID     string `yaml:"base_id"`
	Table      string `yaml:"table"`
	MinDelayMS int    `yaml:"min_delay_ms"`
}

// Drive holds file-store connection details.
type Drive struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Ollama locates the local vision model.
type Ollama struct {
	BaseURL string `yaml:"base_url"`
	Port    int    `yaml:"port"`
	Model   string `yaml:"model"`
}

// OpenAI holds the embedding provider credentials.
type OpenAI struct {
	APIKey     string `yaml:"api_key"`
	EmbedModel string `yaml:"embed_model"`
}

// Config is the full process configuration.
type Config struct {
	Postgres Postgres `yaml:"postgres"`
	Airtable Airtable `yaml:"airtable"`
	Drive    Drive    `yaml:"drive"`
	Ollama   Ollama   `yaml:"ollama"`
	OpenAI   OpenAI   `yaml:"openai"`

	// Dimension is the system-wide embedding vector length.
	Dimension    int `yaml:"dimension"`
	Workers      int `yaml:"workers"`
	MaxExamples  int `yaml:"max_examples"`
	ChunkWindow  int `yaml:"chunk_window"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// Load reads the YAML file at path (optional: an empty path loads pure
// defaults), applies FRAMEGRAPH_* environment overrides, and fills
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Postgres: Postgres{Host: "localhost", Port: "5432", User: "postgres", DBName: "framegraph"},
		Ollama:   Ollama{BaseURL: "http://localhost", Port: 11434, Model: "llama3.2-vision:11b"},
		OpenAI:   OpenAI{EmbedModel: "text-embedding-3-large"},
		Airtable: Airtable{MinDelayMS: 250},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxExamples <= 0 {
		cfg.MaxExamples = DefaultMaxExamples
	}
	if cfg.ChunkWindow <= 0 {
		cfg.ChunkWindow = DefaultChunkWindow
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkWindow {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString("FRAMEGRAPH_POSTGRES_HOST", &cfg.Postgres.Host)
	envString("FRAMEGRAPH_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("FRAMEGRAPH_POSTGRES_USER", &cfg.Postgres.User)
	envString("FRAMEGRAPH_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("FRAMEGRAPH_POSTGRES_DBNAME", &cfg.Postgres.DBName)
	envString("FRAMEGRAPH_AIRTABLE_API_KEY", &cfg.Airtable.APIKey)
	envString("FRAMEGRAPH_AIRTABLE_BASE_ID", &cfg.Airtable.BaseID)
	envString("FRAMEGRAPH_AIRTABLE_TABLE", &cfg.Airtable.Table)
	envString("FRAMEGRAPH_DRIVE_API_KEY", &cfg.Drive.APIKey)
	envString("FRAMEGRAPH_OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	envInt("FRAMEGRAPH_DIMENSION", &cfg.Dimension)
	envInt("FRAMEGRAPH_WORKERS", &cfg.Workers)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}
