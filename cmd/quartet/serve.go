package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/quartet"
	"github.com/aretw0/quartet/internal/cli"
	"github.com/aretw0/quartet/internal/logging"
	httpAdapter "github.com/aretw0/quartet/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streaming HTTP server",
	Long:  `Starts the Quartet engine in server mode, exposing the chat API over HTTP with Server-Sent Events.`,
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")

		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		level := logging.ParseLevel(cfg.Logging.Level)
		if debug {
			level = slog.LevelDebug
		}
		logger := logging.New(level)

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

		handler := httpAdapter.NewHandler(engine, store,
			httpAdapter.WithAuthToken(cfg.Server.AuthToken),
			httpAdapter.WithCORS(cfg.Server.CORS),
			httpAdapter.WithLogger(logger),
			httpAdapter.WithVersion(strings.TrimSpace(quartet.Version)),
		)

		srv := &http.Server{
			Addr:    cfg.Server.Addr(),
			Handler: handler,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Quartet Server on %s\n", srv.Addr)
			fmt.Printf("Store backend: %s, LLM provider: %s\n", cfg.Store.Backend, cfg.LLM.Provider)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			// Error when starting HTTP server.
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Asking listener to shut down and shed load.
			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("Quartet Server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Override the configured server port")
}
