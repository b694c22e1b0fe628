package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		if s.legacyEnv != "" {
			t.Setenv(s.legacyEnv, "")
		}
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.BaseURL != "https://integrate.api.nvidia.com/v1" {
		t.Errorf("LLM = %+v, want openai-compatible NIM endpoint", cfg.LLM)
	}
	if cfg.LLM.Model != "meta/llama-3.3-70b-instruct" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
	if cfg.Mongo.Database != "appetit_db" {
		t.Errorf("Mongo.Database = %q, want appetit_db", cfg.Mongo.Database)
	}
	if cfg.Conversation.WindowSize != 10 {
		t.Errorf("Conversation.WindowSize = %d, want 10", cfg.Conversation.WindowSize)
	}
	if cfg.Retrieval.TopK != 10 || cfg.Retrieval.FallbackLimit != 20 {
		t.Errorf("Retrieval = %+v, want top_k 10, fallback_limit 20", cfg.Retrieval)
	}
	if cfg.Sandbox.Mode != SandboxLocal || cfg.Sandbox.Interpreter != "python3" {
		t.Errorf("Sandbox = %+v", cfg.Sandbox)
	}
	if !cfg.Ollama.AutoPull {
		t.Error("Ollama.AutoPull = false, want true")
	}
}

// TestFileValues verifies that every value type is read from the JSON file.
func TestFileValues(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
		"server.port": 5000,
		"llm.provider": "anthropic",
		"llm.model": "claude-sonnet-4-5",
		"llm.temperature": "0.5",
		"ollama.auto_pull": "false",
		"storage.data_dir": "/tmp/dinelytics-test",
		"conversation.window_size": "6",
		"sandbox.mode": "docker",
		"llm.api_key": "ignored-from-file"
	}`)
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.5 {
		t.Errorf("LLM.Temperature = %v, want 0.5", cfg.LLM.Temperature)
	}
	if cfg.Ollama.AutoPull {
		t.Error("Ollama.AutoPull = true, want false")
	}
	if cfg.Storage.DataDir != "/tmp/dinelytics-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Conversation.WindowSize != 6 {
		t.Errorf("Conversation.WindowSize = %d, want 6", cfg.Conversation.WindowSize)
	}
	if cfg.Sandbox.Mode != SandboxDocker {
		t.Errorf("Sandbox.Mode = %q", cfg.Sandbox.Mode)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, secrets must not be read from the file", cfg.LLM.APIKey)
	}
}

func TestInvalidInteger(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{"server.port": 4000.5}`)); err == nil {
		t.Error("expected error for non-integer port")
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("DINELYTICS_SERVER_PORT", "4100")
	t.Setenv("DINELYTICS_LLM_API_KEY", "env-key")
	t.Setenv("DINELYTICS_LLM_TEMPERATURE", "0")
	t.Setenv("DINELYTICS_LLM_MODEL", "")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 5000, "llm.model": "file-model"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "env-key")
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("LLM.Temperature = %v, want 0", cfg.LLM.Temperature)
	}
	if cfg.LLM.Model != "file-model" {
		t.Errorf("LLM.Model = %q, empty env must not override", cfg.LLM.Model)
	}
}

// TestLegacyEnv verifies the original deployment's variable names are honoured.
func TestLegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NVIDIA_API_KEY", "nvapi-legacy")
	t.Setenv("mongodb_uri", "mongodb://legacy:27017")
	t.Setenv("database_name", "legacy_db")

	cfg, err := loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "nvapi-legacy" || cfg.Mongo.URI != "mongodb://legacy:27017" || cfg.Mongo.Database != "legacy_db" {
		t.Errorf("cfg = %+v / %+v", cfg.LLM, cfg.Mongo)
	}

	t.Setenv("DINELYTICS_MONGODB_URI", "mongodb://new:27017")
	cfg, _ = loadWith(writeTempConfig(t, `{}`))
	if cfg.Mongo.URI != "mongodb://new:27017" {
		t.Errorf("Mongo.URI = %q, DINELYTICS_ name must win", cfg.Mongo.URI)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "k"
	cfg.Mongo.URI = "mongodb://localhost:27017"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	bad := defaults()
	bad.Sandbox.Mode = "vm"
	bad.Conversation.WindowSize = 0
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"missing LLM API key", "missing MongoDB URI", `sandbox.mode "vm"`, "window_size must be positive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}

	local := defaults()
	local.LLM.Provider = "ollama"
	local.Mongo.URI = "mongodb://localhost:27017"
	if err := local.Validate(); err != nil {
		t.Errorf("ollama provider without API key: %v", err)
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	if err := setKey(b, "conversation.window_size", "4"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "llm.temperature", "0.7"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "conversation.window_size", "four"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKey(b, "ollama.auto_pull", "maybe"); err == nil {
		t.Error("expected error for non-boolean value")
	}
	if err := setKey(b, "llm.api_key", "x"); err == nil || !strings.Contains(err.Error(), "DINELYTICS_LLM_API_KEY") {
		t.Errorf("setKey(secret) = %v, want env var hint", err)
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	cfg, err := loadWith(newFileBackend(b.path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Conversation.WindowSize != 4 || cfg.LLM.Temperature != 0.7 {
		t.Errorf("reloaded window_size %d temperature %v", cfg.Conversation.WindowSize, cfg.LLM.Temperature)
	}
}

func TestUnsetKey(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"conversation.window_size": 4, "server.port": 5000}`)

	if err := unsetKey(b, "conversation.window_size"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	if err := unsetKey(b, "mongo.uri"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := unsetKey(b, "nope"); err == nil {
		t.Error("expected error for unknown key")
	}

	cfg, err := loadWith(newFileBackend(b.path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Conversation.WindowSize != defaults().Conversation.WindowSize {
		t.Errorf("window_size = %d, want default", cfg.Conversation.WindowSize)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("port = %d, want 5000 kept", cfg.Server.Port)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "secret"
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "llm.api_key" || ki.Key == "mongo.uri" || ki.Key == "api.token" {
			t.Errorf("ShowAll exposes secret %s", ki.Key)
		}
	}
	if len(ValidKeys()) != len(ShowAll(cfg)) {
		t.Error("ValidKeys and ShowAll disagree")
	}
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg")
	t.Setenv("XDG_DATA_HOME", "/var/lib")
	if got := FilePath(); got != filepath.Join("/etc/xdg", "dinelytics", "config.json") {
		t.Errorf("FilePath() = %q", got)
	}
	if got := defaultDataDir(); got != filepath.Join("/var/lib", "dinelytics") {
		t.Errorf("defaultDataDir() = %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/diner")
	if got := defaultDataDir(); got != filepath.Join("/home/diner", ".local", "share", "dinelytics") {
		t.Errorf("defaultDataDir() without XDG = %q", got)
	}
}
