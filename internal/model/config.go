package model

import (
	"runtime"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	Input        InputConfig        `yaml:"input" mapstructure:"input"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Policy       DecisionPolicy     `yaml:"policy" mapstructure:"policy"`
	Precedence   PrecedencePolicy   `yaml:"precedence" mapstructure:"precedence"`
	Scorer       ScorerConfig       `yaml:"scorer" mapstructure:"scorer"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
}

// InputConfig locates the domain configuration files
type InputConfig struct {
	MappingDir string `yaml:"mapping_dir" mapstructure:"mapping_dir"` // Directory of per-source mapping sets
	RulesFile  string `yaml:"rules_file" mapstructure:"rules_file"`   // Deterministic ruleset
	AsOf       string `yaml:"as_of,omitempty" mapstructure:"as_of"`   // Rule reference date (YYYY-MM-DD), empty = today
}

// ConcurrencyConfig bounds claim-level parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ScorerConfig selects and tunes the inference scorer
type ScorerConfig struct {
	Kind        string        `yaml:"kind" mapstructure:"kind"`                           // heuristic, llm, hybrid, none
	WeightsFile string        `yaml:"weights_file,omitempty" mapstructure:"weights_file"` // Heuristic weights, empty = built-in
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`                     // Per-claim scoring budget
	LLMWeight   float64       `yaml:"llm_weight" mapstructure:"llm_weight"`               // Hybrid blend weight of the classifier
}

// RateLimitingConfig bounds scorer throughput
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig controls the score cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LLMConfig configures the denial classifier provider
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, or empty
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // Seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Proxies for provider traffic; empty falls back to HTTP(S)_PROXY
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"` // Comma separated hosts, leading dot for suffixes
}

// StoreConfig selects the decision log backend
type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // jsonl, postgres, memory
	Dir     string `yaml:"dir" mapstructure:"dir"`         // jsonl: state directory
	DSN     string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// OutputConfig controls run artifacts and logging
type OutputConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"` // text, json
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	Verbose   bool   `yaml:"verbose" mapstructure:"verbose"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			MappingDir: "configs/mappings",
			RulesFile:  "configs/rules.yaml",
		},
		Concurrency: ConcurrencyConfig{
			Workers: runtime.NumCPU(),
		},
		Policy:     DefaultPolicy(),
		Precedence: DefaultPrecedence(),
		Scorer: ScorerConfig{
			Kind:      "hybrid",
			Timeout:   5 * time.Second,
			LLMWeight: 0.5,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 20,
			BurstSize:         5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".resubmit/cache",
			MemoryTTL: time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		LLM: LLMConfig{
			Model:     "gpt-4o-mini",
			Timeout:   30,
			MaxTokens: 200,
		},
		Store: StoreConfig{
			Backend: "jsonl",
			Dir:     ".resubmit/state",
		},
		Output: OutputConfig{
			Dir:       "resubmit-out",
			LogFormat: "text",
			LogLevel:  "info",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}
