package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for PracticeGPT
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthConfig maps bearer tokens to owner ids. Token verification itself
// is an external concern; this boundary only resolves identity.
type AuthConfig struct {
	Tokens map[string]string `mapstructure:"tokens"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// BackendConfig describes one completion backend
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// LLMConfig holds the completion tier configuration
type LLMConfig struct {
	Primary   BackendConfig `mapstructure:"primary"`
	Secondary BackendConfig `mapstructure:"secondary"`
}

// RetrievalConfig holds retrieval configuration. ServiceURL is the
// optional retrieval microservice; empty means in-process search only.
type RetrievalConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TopK       int           `mapstructure:"top_k"`
}

// ChatConfig holds completion parameters
type ChatConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	DeepMaxTokens int `mapstructure:"deep_max_tokens"`
	HistoryLimit  int `mapstructure:"history_limit"`
}

// IngestConfig holds document ingestion configuration. WatchDir, when
// set, is scanned for dropped files which are ingested for WatchOwner.
type IngestConfig struct {
	ChunkSize  int    `mapstructure:"chunk_size"`
	WatchDir   string `mapstructure:"watch_dir"`
	WatchOwner string `mapstructure:"watch_owner"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PRACTICEGPT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./data/practicegpt.db")

	v.SetDefault("llm.primary.base_url", "http://localhost:8000")
	v.SetDefault("llm.primary.model", "gpt-5-mini")
	v.SetDefault("llm.secondary.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.secondary.model", "llama3.2")

	v.SetDefault("retrieval.service_url", "")
	v.SetDefault("retrieval.timeout", 15*time.Second)
	v.SetDefault("retrieval.top_k", 4)

	v.SetDefault("chat.max_tokens", 1000)
	v.SetDefault("chat.deep_max_tokens", 2000)
	v.SetDefault("chat.history_limit", 20)

	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.watch_dir", "")
	v.SetDefault("ingest.watch_owner", "")
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
