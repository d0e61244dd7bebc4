// Package mcp exposes the engine as a Model Context Protocol server:
// an ask tool that runs the full pipeline, plus history and vitals
// read tools, over stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/quartet"
	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// AskResponse is the structured result of the quartet_ask tool.
type AskResponse struct {
	Answer      string   `json:"answer" jsonschema_description:"The composed answer"`
	Suggestions []string `json:"suggestions" jsonschema_description:"Follow-up suggestions for the next turn"`
	ToolCalls   int      `json:"toolCalls" jsonschema_description:"Number of data queries the run made"`
	TTFTMs      *int64   `json:"ttftMs,omitempty" jsonschema_description:"Milliseconds until the first answer token"`
	TotalMs     int64    `json:"totalMs" jsonschema_description:"Total request milliseconds"`
}

// askArgs mirrors the quartet_ask input schema.
type askArgs struct {
	SessionID string `mapstructure:"session_id"`
	UserID    string `mapstructure:"user_id"`
	Prompt    string `mapstructure:"prompt"`
}

// historyArgs mirrors the quartet_history input schema.
type historyArgs struct {
	SessionID string `mapstructure:"session_id"`
	Limit     int    `mapstructure:"limit"`
}

// Asker runs one chat request to completion, delivering events to the
// sink. The root quartet.Engine satisfies it.
type Asker interface {
	Ask(ctx context.Context, sessionID, userID, prompt string, sink ports.EventSink) error
}

// Server wraps the engine and its store as an MCP server.
type Server struct {
	asker     Asker
	store     ports.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server's logger. MCP stdio transport owns stdout,
// so pass a stderr-backed logger there.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server over the given engine and store.
func NewServer(asker Asker, store ports.Store, opts ...Option) *Server {
	s := &Server{
		asker:  asker,
		store:  store,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("quartet-mcp", strings.TrimSpace(quartet.Version),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and blocks
// until the context is cancelled or the listener fails.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "transport", "sse", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: quartet_ask
	askTool := mcp.NewTool("quartet_ask",
		mcp.WithDescription("Send a prompt through the agent pipeline and return the composed answer with follow-up suggestions."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session ID; reuse it to keep context across calls")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The user prompt")),
		mcp.WithString("user_id", mcp.Description("User attributed to the messages (optional)")),
		mcp.WithOutputSchema[AskResponse](),
	)
	s.mcpServer.AddTool(askTool, mcp.NewStructuredToolHandler(s.handleAsk))

	// TOOL: quartet_history
	historyTool := mcp.NewTool("quartet_history",
		mcp.WithDescription("Get a session's messages, oldest first."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session ID")),
		mcp.WithNumber("limit", mcp.Description("Return only the most recent N messages (default 50)")),
	)
	s.mcpServer.AddTool(historyTool, s.handleHistory)

	// TOOL: quartet_vitals
	s.mcpServer.AddTool(mcp.NewTool("quartet_vitals",
		mcp.WithDescription("Get store-wide totals: sessions, messages, tool calls and average response time."),
	), s.handleVitals)
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (AskResponse, error) {
	var in askArgs
	if err := mapstructure.Decode(args, &in); err != nil {
		return AskResponse{}, fmt.Errorf("failed to decode arguments: %w", err)
	}

	var sink ports.Collector
	if err := s.asker.Ask(ctx, in.SessionID, in.UserID, in.Prompt, &sink); err != nil {
		return AskResponse{}, fmt.Errorf("ask failed: %w", err)
	}

	done, ok := sink.Done()
	if !ok {
		return AskResponse{}, fmt.Errorf("stream ended without a result")
	}

	toolCalls := 0
	for _, ev := range sink.Events() {
		if ev.Type == domain.EventToolCallCompleted {
			toolCalls++
		}
	}

	return AskResponse{
		Answer:      done.FullText,
		Suggestions: done.Suggestions,
		ToolCalls:   toolCalls,
		TTFTMs:      done.Timings.TTFTMs,
		TotalMs:     done.Timings.TotalMs,
	}, nil
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in historyArgs
	if err := mapstructure.Decode(request.GetArguments(), &in); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to decode arguments: %v", err)), nil
	}
	if in.SessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if in.Limit <= 0 {
		in.Limit = 50
	}

	msgs, err := s.store.Messages(ctx, in.SessionID, in.Limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load messages failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(msgs)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleVitals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	totals, err := s.store.Totals(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load totals failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(totals)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: quartet://sessions
	s.mcpServer.AddResource(mcp.NewResource("quartet://sessions", "Conversation Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessions, err := s.store.ListSessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		jsonBytes, _ := json.Marshal(sessions)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "quartet://sessions",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
