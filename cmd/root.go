// Package cmd provides the command-line interface for workpipe with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --workers, etc.) - highest priority
//	2. WORKPIPE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (WORKPIPE_PIPELINE_WORKERS, etc.)
//	4. Configuration files (.workpipe.yml) - lowest priority
//
// Environment Variables:
//
//	WORKPIPE_CONFIG_FILE: Path to custom configuration file
//	WORKPIPE_PIPELINE_WORKERS: Override worker pool size
//	WORKPIPE_PIPELINE_QUEUE_CAPACITY: Override task queue capacity
//	WORKPIPE_LOG_LEVEL: Override log level
//	And so on following the WORKPIPE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/workpipe/internal/config"
	"github.com/conneroisu/workpipe/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "workpipe",
	Short: "A bounded work-dispatch pipeline runner",
	Long: `Workpipe runs batches of tasks through a fixed pool of workers connected
by channels: a task source feeds a bounded (or unbounded) task channel, every
worker drains it, and results stream back through a result channel sized to
the pool.

Key Features:
  • Fixed-size worker pool with channel-only coordination
  • Bounded, synchronous-handoff, or unbounded task queues
  • Backpressure through the result channel
  • Failure isolation: a failing or panicking task never costs another task
  • Watch mode: file changes become checksum tasks

Quick Start:
  workpipe run                    Run a demo batch through the pool
  workpipe run --workers 8        Same, with a wider pool
  workpipe watch ./content        Feed file changes into the pipeline
  workpipe doctor                 Diagnose configuration and environment

Command Aliases (for faster typing):
  run (r), watch (w), doctor (d)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .workpipe.yml, can also use WORKPIPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system with support for multiple
// config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. WORKPIPE_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .workpipe.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("WORKPIPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".workpipe")
	}

	// Enable automatic environment variable binding with WORKPIPE_ prefix
	// Examples: WORKPIPE_PIPELINE_WORKERS, WORKPIPE_LOG_LEVEL
	viper.SetEnvPrefix("WORKPIPE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// If the file doesn't exist Viper falls back to defaults; a missing
	// config is not an error for a CLI run.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// addWorkersFlag registers the pool-size override shared by the commands
// that spin up a dispatcher.
func addWorkersFlag(flags *pflag.FlagSet, p *int) {
	flags.IntVar(p, "workers", 0, "worker pool size (overrides config)")
}

// newLogger builds the CLI logger from the loaded configuration.
func newLogger(cfg *config.Config) *logging.PipeLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
