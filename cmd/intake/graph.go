package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/intake/internal/presentation/graph"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the intent tree visualization",
		Long: `Outputs a Mermaid diagram (graph TD) of the intent tree with branch conditions.
With --session, the session's active path is highlighted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			var overlay *graph.GraphOverlay
			if id, _ := cmd.Flags().GetString("session"); id != "" {
				st, err := app.Service.Snapshot(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("load session %s: %w", id, err)
				}
				overlay = &graph.GraphOverlay{ActivePath: st.ActivePath, CurrentIntent: st.Intent}
			}

			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(app.Model, overlay))
			return nil
		},
	}
	cmd.Flags().String("session", "", "Highlight the active path of this session")
	return cmd
}
