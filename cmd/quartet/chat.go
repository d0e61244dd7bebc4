package main

import (
	"fmt"
	"os"

	"github.com/aretw0/quartet"
	"github.com/aretw0/quartet/internal/cli"
	"github.com/aretw0/quartet/internal/presentation/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the engine from the terminal",
	Long: `Starts an interactive chat session against the configured engine.
Type 'exit' or 'quit' to leave. Ctrl-C during a reply cancels just that
reply; at the prompt it ends the session.`,
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		sessionID, _ := cmd.Flags().GetString("session")
		userID, _ := cmd.Flags().GetString("user")
		jsonMode, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		logger := cli.NewLogger(debug)

		var extra []quartet.Option
		if debug {
			extra = append(extra, quartet.WithLifecycleHooks(cli.DebugHooks(logger)))
		}

		engine, store, err := cli.BuildEngine(cfg, logger, extra...)
		if err != nil {
			fmt.Printf("Error initializing quartet: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		chat := &cli.Chat{
			Asker:     engine,
			SessionID: sessionID,
			UserID:    userID,
			JSON:      jsonMode,
		}

		if !jsonMode && term.IsTerminal(int(os.Stdout.Fd())) {
			tui.PrintBanner()
			chat.Renderer = tui.NewRenderer()
			fmt.Printf("Session %s (type 'exit' to quit)\n\n", sessionID)
		}

		if err := chat.Run(cmd.Context()); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("session", "s", "", "Session ID to resume (defaults to a fresh one)")
	chatCmd.Flags().StringP("user", "u", "cli", "User ID attached to the session")
	chatCmd.Flags().Bool("json", false, "Stream events as NDJSON instead of the interactive UI")
}
