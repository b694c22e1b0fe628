package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key string
	typ keyType
	env string
	// legacyEnv is read when env is unset.
	legacyEnv string
	secret    bool
	apply     func(cfg *Config, v any)
	extract   func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "DINELYTICS_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "DINELYTICS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.provider", typ: kString, env: "DINELYTICS_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "DINELYTICS_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "DINELYTICS_LLM_API_KEY",
		legacyEnv: "NVIDIA_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "DINELYTICS_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "DINELYTICS_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.max_tokens", typ: kInt, env: "DINELYTICS_LLM_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokens },
	},
	{
		key: "ollama.base_url", typ: kString, env: "DINELYTICS_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "DINELYTICS_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.auto_pull", typ: kBool, env: "DINELYTICS_OLLAMA_AUTO_PULL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.AutoPull = v.(bool) },
		extract: func(cfg Config) any { return cfg.Ollama.AutoPull },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DINELYTICS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "mongo.uri", typ: kString, env: "DINELYTICS_MONGODB_URI",
		legacyEnv: "mongodb_uri", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Mongo.URI = v.(string) },
		extract: func(cfg Config) any { return cfg.Mongo.URI },
	},
	{
		key: "mongo.database", typ: kString, env: "DINELYTICS_MONGODB_DATABASE",
		legacyEnv: "database_name",
		apply:   func(cfg *Config, v any) { cfg.Mongo.Database = v.(string) },
		extract: func(cfg Config) any { return cfg.Mongo.Database },
	},
	{
		key: "schema.index_path", typ: kString, env: "DINELYTICS_SCHEMA_INDEX_PATH",
		apply:   func(cfg *Config, v any) { cfg.Schema.IndexPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.IndexPath },
	},
	{
		key: "sandbox.mode", typ: kString, env: "DINELYTICS_SANDBOX_MODE",
		apply:   func(cfg *Config, v any) { cfg.Sandbox.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Sandbox.Mode },
	},
	{
		key: "sandbox.interpreter", typ: kString, env: "DINELYTICS_SANDBOX_INTERPRETER",
		apply:   func(cfg *Config, v any) { cfg.Sandbox.Interpreter = v.(string) },
		extract: func(cfg Config) any { return cfg.Sandbox.Interpreter },
	},
	{
		key: "sandbox.image", typ: kString, env: "DINELYTICS_SANDBOX_IMAGE",
		apply:   func(cfg *Config, v any) { cfg.Sandbox.Image = v.(string) },
		extract: func(cfg Config) any { return cfg.Sandbox.Image },
	},
	{
		key: "sandbox.network", typ: kString, env: "DINELYTICS_SANDBOX_NETWORK",
		apply:   func(cfg *Config, v any) { cfg.Sandbox.Network = v.(string) },
		extract: func(cfg Config) any { return cfg.Sandbox.Network },
	},
	{
		key: "conversation.window_size", typ: kInt, env: "DINELYTICS_CONVERSATION_WINDOW_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Conversation.WindowSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Conversation.WindowSize },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "DINELYTICS_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.fallback_limit", typ: kInt, env: "DINELYTICS_RETRIEVAL_FALLBACK_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.FallbackLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.FallbackLimit },
	},
	{
		key: "log.level", typ: kString, env: "DINELYTICS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "DINELYTICS_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

// envValue returns the value of s.env, falling back to s.legacyEnv.
func (s keySpec) envValue() (name, raw string) {
	if raw := os.Getenv(s.env); raw != "" {
		return s.env, raw
	}
	if s.legacyEnv != "" {
		return s.legacyEnv, os.Getenv(s.legacyEnv)
	}
	return s.env, ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		name, raw := s.envValue()
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
