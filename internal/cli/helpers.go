// Package cli implements the interactive chat loop and the wiring
// helpers shared by the quartet commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/pkg/domain"
)

// NewLogger configures the application logger. Debug mode writes to
// stderr so the chat flow on stdout stays clean.
func NewLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// DebugHooks returns lifecycle hooks that trace stage and tool activity.
func DebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, e *domain.StageEvent) {
			logger.Debug("stage enter", "stage", e.Stage, "pass", e.Pass)
		},
		OnStageLeave: func(_ context.Context, e *domain.StageEvent) {
			logger.Debug("stage leave", "stage", e.Stage, "pass", e.Pass, "elapsedMs", e.ElapsedMs)
		},
		OnToolCall: func(_ context.Context, e *domain.ToolEvent) {
			logger.Debug("tool call", "tool", e.Tool)
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			logger.Debug("tool return", "tool", e.Tool, "status", e.Status, "latencyMs", e.LatencyMs)
		},
	}
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
