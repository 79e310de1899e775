package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/agents"
	"github.com/zjrosen/kai/internal/config"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/plugin"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kai",
	Short: "Run cooperating coding agents over a shared directory pipeline",
	Long: `kai runs autonomous agent instances that hand work to each other through
plain directories under <workspace>/Kai/agents.

Each instance is one process started with 'kai start <name>'. It polls its
trigger, claims a work item by moving it, and drives the configured agent
CLI until the item is done.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .kai/config.yaml, then ~/.config/kai/config.yaml)")
	rootCmd.PersistentFlags().StringP("workspace", "w", "",
		"workspace root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"log at debug level")

	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// localConfigPath is the per-project config file.
var localConfigPath = filepath.Join(".kai", config.FileName)

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("poll_interval", defaults.PollInterval)
	viper.SetDefault("retry_interval", defaults.RetryInterval)
	viper.SetDefault("recycler_interval", defaults.RecyclerInterval)
	viper.SetDefault("max_rounds", defaults.MaxRounds)
	viper.SetDefault("progress_notes", defaults.ProgressNotes)
	viper.SetDefault("backend.command", defaults.Backend.Command)
	viper.SetDefault("backend.model", defaults.Backend.Model)
	viper.SetDefault("backend.extra_args", defaults.Backend.ExtraArgs)
	viper.SetDefault("backend.timeout", defaults.Backend.Timeout)
	viper.SetDefault("backend.resume_message", defaults.Backend.ResumeMessage)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	viper.SetDefault("stats.ledger", defaults.Stats.Ledger)

	viper.SetEnvPrefix("KAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .kai/config.yaml (current directory)
		// 2. ~/.config/kai/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			if dir := config.UserConfigDir(); dir != "" {
				viper.AddConfigPath(dir)
			}
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .kai/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if writeErr := config.WriteDefaultConfig(localConfigPath); writeErr == nil {
				viper.SetConfigFile(localConfigPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// workspace resolves the configured workspace root.
func workspace() paths.Workspace {
	return paths.ResolveWorkspace(cfg.Workspace)
}

// validConfig returns the loaded config after validation.
func validConfig() (config.Config, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadRegistry registers the built-in types and every custom type found in
// the workspace, then seals the registry.
func loadRegistry(ws paths.Workspace) (*agent.Registry, error) {
	reg := agent.NewRegistry()
	if err := agents.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	names, err := plugin.Register(reg, ws.CustomAgentsDir())
	if err != nil {
		// Broken plugins are skipped; the rest still load.
		log.Warn(log.CatPlugin, "Some custom agent types were skipped", "error", err)
	}
	if len(names) > 0 {
		log.Info(log.CatPlugin, "Loaded custom agent types", "types", strings.Join(names, ","))
	}
	reg.Seal()
	return reg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
