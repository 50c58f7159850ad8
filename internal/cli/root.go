package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/resubmit/internal/logging"
	"github.com/ppiankov/resubmit/internal/model"
)

// Version is set at build time with -ldflags
var Version = "v0.1.0"

var (
	cfgFile   string
	verbose   bool
	logFormat string
	logLevel  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "resubmit",
	Short: "Resubmit - denied claim resubmission eligibility",
	Long: `Resubmit ingests denied-claim exports from several source systems,
reconciles them into one canonical claim, and decides whether each claim
should be resubmitted.

Every decision is appended to a durable log together with the rule
results, the score and its inputs, so it can be explained and replayed.
Resubmit recommends; it never files anything with a payer.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("resubmit %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.resubmit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output.log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("output.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults(viper.GetViper(), model.DefaultConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".resubmit"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// RESUBMIT_STORE_DIR overrides store.dir
	viper.SetEnvPrefix("RESUBMIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key of cfg so environment variables and
// Unmarshal see the full key set
func setDefaults(v *viper.Viper, cfg model.Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	seen := make(map[string]bool)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
			seen[key] = true
		}
	}
	walk("", tree)

	// omitempty keys never reach the tree; without a default their
	// environment variables are invisible to Unmarshal
	for _, key := range []string{"llm.api_key", "llm.base_url", "llm.http_proxy", "llm.https_proxy", "llm.no_proxy"} {
		if !seen[key] {
			v.SetDefault(key, "")
		}
	}
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", model.ErrConfig, err)
	}

	// Provider credentials come from the usual environment variables
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.LLM.APIKey == "" {
			return cfg, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", model.ErrConfig)
		}
	case "anthropic", "claude":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.LLM.APIKey == "" {
			return cfg, fmt.Errorf("%w: ANTHROPIC_API_KEY environment variable not set", model.ErrConfig)
		}
	case "ollama":
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = baseURL
		}
	}
	return cfg, nil
}

// bindFlags binds the command's flags to config keys. Binding happens when
// the command runs so commands sharing a key do not replace each other's
// binding.
func bindFlags(cmd *cobra.Command, bindings map[string]string) error {
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

// setupLogger builds the process logger from the output section
func setupLogger(cfg model.Config) zerolog.Logger {
	level := cfg.Output.LogLevel
	if cfg.Output.Verbose && (level == "" || level == "info") {
		level = "debug"
	}
	return logging.New(os.Stderr, cfg.Output.LogFormat, level)
}
