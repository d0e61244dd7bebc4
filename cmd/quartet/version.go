package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/quartet"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of quartet",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quartet version %s\n", strings.TrimSpace(quartet.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
