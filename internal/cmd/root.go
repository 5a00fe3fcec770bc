// Package cmd wires the taskloop command tree. Every command prints
// machine-readable NDJSON events on stdout and exits with the stable code
// contract: 0 success, 1 output or generic failure, 2 agent not installed
// or authentication required, 3 timeout.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskloop/taskloop/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "taskloop",
	Short: "Plan-review-implement pipeline over external AI CLIs",
	Long: `Taskloop coordinates planning, coding, and review CLIs through a
file-based pipeline under .task/. Each stage writes a JSON artifact;
the orchestrator detects the current phase from the artifacts on disk
and invokes the next agent, looping reviews until approval or
escalation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/taskloop/config.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "C", ".", "project root directory")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/taskloop")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TASKLOOP")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TASKLOOP_PIPELINE_MAX_ITERATIONS for pipeline.max_iterations
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()

	// A per-project override layers over the base config
	mergeLocalOverride()
}

// mergeLocalOverride merges .taskloop.local.yaml from the project root
// over the loaded configuration, when present.
func mergeLocalOverride() {
	root := viper.GetString("dir")
	if root == "" {
		root = "."
	}
	local := viper.New()
	local.SetConfigFile(root + "/" + config.LocalOverrideFile)
	local.SetConfigType("yaml")
	if err := local.ReadInConfig(); err != nil {
		return
	}
	_ = viper.MergeConfigMap(local.AllSettings())
}
