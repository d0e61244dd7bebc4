package main

import (
	"fmt"
	"os"

	"github.com/aretw0/quartet/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quartet",
	Short: "Quartet is a staged conversational agent engine",
	Long: `Quartet answers chat prompts through a planner, executor, validator
and composer pipeline, streaming stage progress and answer tokens as it goes.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (falls back to $QUARTET_CONFIG, then quartet.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig resolves and loads the configuration for a command run.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(config.ResolvePath(path))
}
