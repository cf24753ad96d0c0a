package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimtree/internal/model"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if err := registerDefaults(model.DefaultConfig()); err != nil {
		t.Fatalf("registerDefaults: %v", err)
	}
	bindEnv()
	t.Setenv("CLAIMTREE_LLM_PROVIDER", "ollama")
	t.Setenv("CLAIMTREE_LLM_API_KEY", "secret")
	t.Setenv("CLAIMTREE_CACHE_TTL", "2h")
	t.Setenv("CLAIMTREE_CONCURRENCY_WORKERS", "3")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("Expected provider from env, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "secret" {
		t.Errorf("Expected api key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Cache.TTL != 2*time.Hour {
		t.Errorf("Expected cache ttl 2h, got %v", cfg.Cache.TTL)
	}
	if cfg.Concurrency.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Concurrency.Workers)
	}
	// Untouched keys keep their defaults
	if cfg.Audit.TTL != 6*time.Hour {
		t.Errorf("Expected default audit ttl, got %v", cfg.Audit.TTL)
	}
	if cfg.Output.TreePath != "claimtree.json" {
		t.Errorf("Expected default tree path, got %s", cfg.Output.TreePath)
	}
}

func TestLoadConfig_File(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "llm:\n  provider: anthropic\naudit:\n  backend: sqlite\n  ttl: 30m\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := registerDefaults(model.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.Audit.Backend != "sqlite" || cfg.Audit.TTL != 30*time.Minute {
		t.Errorf("Unexpected config: %+v %+v", cfg.LLM, cfg.Audit)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("Expected default model to survive, got %s", cfg.LLM.Model)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Unexpected cache backend: %s", cfg.Cache.Backend)
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("Expected error when config already exists")
	}
}

func TestClearPattern(t *testing.T) {
	tests := map[string]string{
		"claims":                  "llm_cache:v*:claims:*",
		"llm_cache:v1:*":          "llm_cache:v1:*",
		"llm_cache:v1:claims:abc": "llm_cache:v1:claims:abc",
	}
	for in, want := range tests {
		if got := clearPattern(in); got != want {
			t.Errorf("clearPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(buf.String(), "claimtree ") {
		t.Errorf("Unexpected version output: %q", buf.String())
	}
}

func TestNewServices(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Audit.Backend = "sqlite"
	cfg.Audit.SQLitePath = filepath.Join(t.TempDir(), "audit.db")

	svc, err := newServices(cfg, nil)
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	defer svc.Close()

	if svc.responses == nil {
		t.Error("Expected response cache when enabled")
	}
	if len(svc.closers) != 1 {
		t.Errorf("Expected sqlite store to be closed with services, got %d closers", len(svc.closers))
	}

	cfg.Cache.Backend = "bogus"
	if _, err := newServices(cfg, nil); err == nil {
		t.Error("Expected error for unknown cache backend")
	}
}

func TestNewServices_SharesRedisConnection(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Cache.Backend = "redis"
	cfg.Audit.Backend = "redis"

	svc, err := newServices(cfg, nil)
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	defer svc.Close()

	if len(svc.conns) != 1 {
		t.Errorf("Expected one shared connection, got %d", len(svc.conns))
	}
}
