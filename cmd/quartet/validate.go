package main

import (
	"fmt"
	"os"

	"github.com/aretw0/quartet/api"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the API contract",
	Long:  `Loads the configuration file and checks the embedded OpenAPI document for structural problems.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration and API contract are valid.")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	if _, err := api.Validate(cmd.Context()); err != nil {
		return fmt.Errorf("openapi document: %w", err)
	}
	return nil
}
