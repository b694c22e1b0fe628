// Package config loads DineLytics settings from defaults, a JSON config file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type Config struct {
	Server       ServerConfig
	LLM          LLMConfig
	Ollama       OllamaConfig
	Storage      StorageConfig
	Mongo        MongoConfig
	Schema       SchemaConfig
	Sandbox      SandboxConfig
	Conversation ConversationConfig
	Retrieval    RetrievalConfig
	Log          LogConfig
	API          APIConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// LLMConfig selects the hosted completion model.
type LLMConfig struct {
	Provider    string // openai, anthropic or ollama
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// OllamaConfig is the local Ollama server used for item-name embeddings.
type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
	AutoPull   bool
}

type StorageConfig struct {
	DataDir string
}

type MongoConfig struct {
	URI      string
	Database string
}

type SchemaConfig struct {
	IndexPath string
}

// Sandbox modes.
const (
	SandboxLocal  = "local"
	SandboxDocker = "docker"
)

type SandboxConfig struct {
	Mode        string
	Interpreter string
	Image       string
	Network     string
}

type ConversationConfig struct {
	WindowSize int
}

type RetrievalConfig struct {
	TopK          int
	FallbackLimit int
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4000,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "https://integrate.api.nvidia.com/v1",
			Model:       "meta/llama-3.3-70b-instruct",
			Temperature: 0.2,
			MaxTokens:   2048,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "all-minilm",
			AutoPull:   true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Mongo: MongoConfig{
			Database: "appetit_db",
		},
		Schema: SchemaConfig{
			IndexPath: "schemas/schema.yaml",
		},
		Sandbox: SandboxConfig{
			Mode:        SandboxLocal,
			Interpreter: "python3",
			Image:       "dinelytics-sandbox:latest",
		},
		Conversation: ConversationConfig{
			WindowSize: 10,
		},
		Retrieval: RetrievalConfig{
			TopK:          10,
			FallbackLimit: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/dinelytics/config.json, then applies environment
// variables (DINELYTICS_*, plus the legacy names NVIDIA_API_KEY,
// mongodb_uri and database_name). Secrets are read from the environment
// only.
//
// Load does not require any setting to be present; call Validate before
// starting components that need them.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

var providers = []string{"openai", "anthropic", "ollama"}

// Validate reports every setting that prevents answering questions.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(providers, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of %s", c.LLM.Provider, strings.Join(providers, ", ")))
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("missing LLM API key: set DINELYTICS_LLM_API_KEY (or NVIDIA_API_KEY)"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is empty"))
	}
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("missing MongoDB URI: set DINELYTICS_MONGODB_URI (or mongodb_uri)"))
	}
	if c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo.database is empty"))
	}
	if c.Sandbox.Mode != SandboxLocal && c.Sandbox.Mode != SandboxDocker {
		errs = append(errs, fmt.Errorf("sandbox.mode %q is not %s or %s", c.Sandbox.Mode, SandboxLocal, SandboxDocker))
	}
	if c.Conversation.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("conversation.window_size must be positive, got %d", c.Conversation.WindowSize))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}
