package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/internal/presentation/prompt"
	"github.com/aretw0/intake/internal/sanitize"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/aretw0/intake/pkg/schema"
)

// StepResponse is the result of every session tool. Prompt is a plain-text
// rendering of the action for clients that do not interpret it themselves.
type StepResponse struct {
	Step   *domain.Step `json:"step" jsonschema_description:"The session step: resolution, lookup outcome, next action and diff"`
	Prompt string       `json:"prompt" jsonschema_description:"Plain-text rendering of the next action"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type answerArgs struct {
	SessionID string `json:"session_id"`
	Slot      string `json:"slot"`
	Value     string `json:"value"`
}

// Server wraps an IntakeService and exposes it as an MCP Server.
type Server struct {
	service   ports.IntakeService
	model     *schema.Model
	mcpServer *server.MCPServer
	logger    *slog.Logger
	tools     []string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new MCP Server instance. The model is published as a resource.
func NewServer(svc ports.IntakeService, model *schema.Model, opts ...Option) *Server {
	s := &Server{
		service:   svc,
		model:     model,
		mcpServer: server.NewMCPServer("intake-mcp", strings.TrimSpace(intake.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		// Create a timeout context for the graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
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
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Baggage, Sentry-Trace")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

func (s *Server) registerTools() {
	sessionID := mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by start_session"))

	s.addTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start an intake session. Returns the first action, usually a slot to ask."),
		mcp.WithOutputSchema[StepResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.addTool(mcp.NewTool("answer_slot",
		mcp.WithDescription("Submit the user's answer for a slot. Dates are YYYY-MM-DD, booleans yes/no, lists comma separated."),
		sessionID,
		mcp.WithString("slot", mcp.Required(), mcp.Description("Slot name from the ask_slot action")),
		mcp.WithString("value", mcp.Required(), mcp.Description("The user's answer")),
		mcp.WithOutputSchema[StepResponse](),
	), mcp.NewStructuredToolHandler(s.handleAnswer))

	s.addTool(mcp.NewTool("run_lookup",
		mcp.WithDescription("Run the patient record lookup when the next action is lookup."),
		sessionID,
		mcp.WithOutputSchema[StepResponse](),
	), mcp.NewStructuredToolHandler(s.handleLookup))

	s.addTool(mcp.NewTool("skip_lookup",
		mcp.WithDescription("Give up on the patient record lookup after run_lookup failed. The fields it would have filled are then asked from the user."),
		sessionID,
		mcp.WithOutputSchema[StepResponse](),
	), mcp.NewStructuredToolHandler(s.handleSkipLookup))

	s.addTool(mcp.NewTool("next_action",
		mcp.WithDescription("Get the next action of a session without submitting input."),
		sessionID,
		mcp.WithOutputSchema[StepResponse](),
	), mcp.NewStructuredToolHandler(s.handleNext))

	s.addTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the resolved slots, active intent path and lookup outcome of a session."),
		sessionID,
		mcp.WithOutputSchema[domain.DialogueState](),
	), mcp.NewStructuredToolHandler(s.handleGet))

	s.addTool(mcp.NewTool("end_session",
		mcp.WithDescription("Discard a session."),
		sessionID,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := s.service.Delete(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("end session failed: %v", err)), nil
		}
		return mcp.NewToolResultText("session ended"), nil
	})
}

// Handler methods for structured tools

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, _ map[string]any) (StepResponse, error) {
	step, err := s.service.Create(ctx)
	if err != nil {
		return StepResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return respond(step), nil
}

func (s *Server) handleAnswer(ctx context.Context, _ mcp.CallToolRequest, args answerArgs) (StepResponse, error) {
	// Sanitize Input
	clean, err := sanitize.String(args.Value)
	if err != nil {
		s.logger.Warn("MCP answer: Input rejected", "err", err, "size", len(args.Value))
		return StepResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	step, err := s.service.Ingest(ctx, args.SessionID, args.Slot, clean)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			// The message is meant for the user; the model should ask again.
			return StepResponse{}, fmt.Errorf("invalid answer for %s: %s", verr.Slot, verr.Message)
		}
		return StepResponse{}, fmt.Errorf("answer failed: %w", err)
	}
	return respond(step), nil
}

func (s *Server) handleLookup(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (StepResponse, error) {
	step, err := s.service.Lookup(ctx, args.SessionID)
	if err != nil {
		return StepResponse{}, fmt.Errorf("lookup failed: %w", err)
	}
	return respond(step), nil
}

func (s *Server) handleSkipLookup(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (StepResponse, error) {
	step, err := s.service.SkipLookup(ctx, args.SessionID)
	if err != nil {
		return StepResponse{}, fmt.Errorf("skip lookup failed: %w", err)
	}
	return respond(step), nil
}

func (s *Server) handleNext(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (StepResponse, error) {
	step, err := s.service.Next(ctx, args.SessionID)
	if err != nil {
		return StepResponse{}, fmt.Errorf("next failed: %w", err)
	}
	return respond(step), nil
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (domain.DialogueState, error) {
	st, err := s.service.Snapshot(ctx, args.SessionID)
	if err != nil {
		return domain.DialogueState{}, fmt.Errorf("get session failed: %w", err)
	}
	return st, nil
}

func respond(step *domain.Step) StepResponse {
	return StepResponse{Step: step, Prompt: prompt.Describe(step.Action)}
}

func (s *Server) registerResources() {
	// EXPOSE: intake://schema
	s.mcpServer.AddResource(mcp.NewResource("intake://schema", "Intent tree and slot definitions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(Describe(s.model))
		if err != nil {
			return nil, fmt.Errorf("failed to describe schema: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "intake://schema",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
