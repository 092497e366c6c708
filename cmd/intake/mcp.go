package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/intake/internal/cli"
	"github.com/aretw0/intake/pkg/adapters/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol (MCP) server",
		Long: `Starts Intake as an MCP Server so an LLM can drive the intake dialogue as tools:
start_session, answer_slot, run_lookup, next_action, get_session and end_session.
The intent tree is published as the intake://schema resource.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			transport, _ := cmd.Flags().GetString("transport")
			port, _ := cmd.Flags().GetInt("port")

			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)

			app, err := buildApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			srv := mcp.NewServer(app.Service, app.Model, mcp.WithLogger(app.Logger))

			switch transport {
			case "stdio":
				app.Logger.Info("Starting Intake MCP Server (Stdio)")
				return srv.ServeStdio()
			case "sse":
				app.Logger.Info("Starting Intake MCP Server (SSE)", "port", port)
				sigCtx := cli.NewSignalContext(cmd.Context())
				defer sigCtx.Cancel()

				if err := srv.ServeSSE(sigCtx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				app.Logger.Info("MCP Server stopped gracefully")
				return nil
			default:
				return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
			}
		},
	}
	cmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	cmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	return cmd
}
