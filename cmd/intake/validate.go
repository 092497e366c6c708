package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/intake/pkg/demo"
	"github.com/aretw0/intake/pkg/schema"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [schema]",
		Short: "Check an intent schema for consistency",
		Long: `Loads the schema and reports every violation at once: unknown types, bad
depends_on references, dependency cycles, branch targets and leaf declarations.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("schema")
			if len(args) > 0 {
				path = args[0]
			}

			var (
				m   *schema.Model
				err error
			)
			if path == "" {
				m, err = demo.Schema()
			} else {
				m, err = schema.LoadFile(path)
			}
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Schema is valid! ✅")
			fmt.Fprintf(out, "  root:    %s\n", m.RootIntent)
			fmt.Fprintf(out, "  intents: %d (%d leaves)\n", len(m.Intents()), len(m.LeafIntents))
			if m.Lookup.KeySlot != "" {
				fmt.Fprintf(out, "  lookup:  %s (%d api fields)\n", m.Lookup.KeySlot, len(m.Lookup.APIFields))
			}
			return nil
		},
	}
}
