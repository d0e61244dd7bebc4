package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/quartet/internal/cli"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, inspect, and remove sessions from the configured store backend.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store := getStore(cmd)
		defer store.Close()

		sessions, err := store.ListSessions(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing sessions: %v\n", err)
			os.Exit(1)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return
		}

		fmt.Println("Sessions:")
		for _, s := range sessions {
			count, err := store.CountMessages(cmd.Context(), s.SessionID)
			if err != nil {
				fmt.Printf("Error counting messages for '%s': %v\n", s.SessionID, err)
				os.Exit(1)
			}
			fmt.Printf("- %s  user=%s  messages=%d  updated=%s\n",
				s.SessionID, s.UserID, count, s.UpdatedAt.Format(time.RFC3339))
		}
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session with its messages and metrics",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID := args[0]
		store := getStore(cmd)
		defer store.Close()

		session, err := store.GetSession(cmd.Context(), sessionID)
		if err != nil {
			fmt.Printf("Error loading session '%s': %v\n", sessionID, err)
			os.Exit(1)
		}
		messages, err := store.Messages(cmd.Context(), sessionID, 0)
		if err != nil {
			fmt.Printf("Error loading messages for '%s': %v\n", sessionID, err)
			os.Exit(1)
		}
		metrics, err := store.SessionMetrics(cmd.Context(), sessionID)
		if err != nil {
			fmt.Printf("Error loading metrics for '%s': %v\n", sessionID, err)
			os.Exit(1)
		}

		view := struct {
			Session  domain.Session        `json:"session"`
			Messages []domain.Message      `json:"messages"`
			Metrics  domain.SessionMetrics `json:"metrics"`
		}{session, messages, metrics}

		// Pretty print JSON
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling session: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(string(data))
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := getStore(cmd)
		defer store.Close()
		hasError := false

		for _, sessionID := range args {
			if err := store.DeleteSession(cmd.Context(), sessionID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", sessionID, err)
				hasError = true
			} else {
				fmt.Printf("Removed session '%s'\n", sessionID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

func getStore(cmd *cobra.Command) ports.Store {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	store, _, err := cli.BuildStore(cfg.Store)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	return store
}
