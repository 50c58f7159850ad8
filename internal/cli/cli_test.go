package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/resubmit/internal/model"
)

func TestParseInputArg(t *testing.T) {
	tests := []struct {
		arg     string
		want    inputArg
		wantErr bool
	}{
		{"alpha=exports/a.csv", inputArg{"alpha", "exports/a.csv"}, false},
		{"exports/beta.json", inputArg{"beta", "exports/beta.json"}, false},
		{"=a.csv", inputArg{}, true},
		{"alpha=", inputArg{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseInputArg(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseInputArg() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseInputArg() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadConfig_Layers(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
scorer:
  kind: heuristic
  timeout: 2s
policy:
  version: p-7
  auto_accept_threshold: 0.9
  review_low: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RESUBMIT_STORE_DIR", "/var/lib/resubmit")

	setDefaults(viper.GetViper(), model.DefaultConfig())
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("RESUBMIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() = %v", err)
	}
	if cfg.Scorer.Kind != "heuristic" || cfg.Scorer.Timeout != 2*time.Second {
		t.Errorf("scorer = %+v", cfg.Scorer)
	}
	if cfg.Policy.Version != "p-7" || cfg.Policy.AutoAcceptThreshold != 0.9 {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	if cfg.Store.Dir != "/var/lib/resubmit" {
		t.Errorf("store.dir = %q, want env override", cfg.Store.Dir)
	}
	if cfg.Cache.MemoryTTL != time.Hour {
		t.Errorf("default memory_ttl lost: %v", cfg.Cache.MemoryTTL)
	}
}

func TestLoadConfig_OpenAIKeyRequired(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("OPENAI_API_KEY", "")

	setDefaults(viper.GetViper(), model.DefaultConfig())
	viper.Set("llm.provider", "openai")
	if _, err := loadConfig(); err == nil {
		t.Error("expected error without OPENAI_API_KEY")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := loadConfig()
	if err != nil || cfg.LLM.APIKey != "sk-test" {
		t.Errorf("loadConfig() = %v, key %q", err, cfg.LLM.APIKey)
	}
}

func TestLoadConfig_AnthropicKeyRequired(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("ANTHROPIC_API_KEY", "")

	setDefaults(viper.GetViper(), model.DefaultConfig())
	viper.Set("llm.provider", "claude")
	if _, err := loadConfig(); err == nil {
		t.Error("expected error without ANTHROPIC_API_KEY")
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	cfg, err := loadConfig()
	if err != nil || cfg.LLM.APIKey != "sk-ant-test" {
		t.Errorf("loadConfig() = %v, key %q", err, cfg.LLM.APIKey)
	}
}

func TestLoadConfig_LLMProxies(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: ollama
  https_proxy: http://proxy.internal:3128
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RESUBMIT_LLM_NO_PROXY", "localhost,.svc.cluster.local")

	setDefaults(viper.GetViper(), model.DefaultConfig())
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("RESUBMIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() = %v", err)
	}
	if cfg.LLM.HTTPSProxy != "http://proxy.internal:3128" {
		t.Errorf("https_proxy = %q", cfg.LLM.HTTPSProxy)
	}
	if cfg.LLM.NoProxy != "localhost,.svc.cluster.local" {
		t.Errorf("no_proxy = %q, want env override", cfg.LLM.NoProxy)
	}
	if cfg.LLM.HTTPProxy != "" {
		t.Errorf("http_proxy = %q, want empty", cfg.LLM.HTTPProxy)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path, err := writeDefaultConfig(dir)
	if err != nil {
		t.Fatalf("writeDefaultConfig() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	if cfg.Store.Backend != "jsonl" || cfg.Scorer.Kind != "hybrid" {
		t.Errorf("config = %+v", cfg)
	}

	if _, err := writeDefaultConfig(dir); err == nil {
		t.Error("expected error overwriting existing config")
	}
}
