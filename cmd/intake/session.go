package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage persistent sessions",
		Long:  `List, inspect, and remove sessions held by the configured session store.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls",
			Short: "List all active sessions",
			Args:  cobra.NoArgs,
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

				ids, err := app.Service.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					fmt.Fprintln(out, "No active sessions found.")
					return nil
				}
				fmt.Fprintln(out, "Active Sessions:")
				for _, id := range ids {
					fmt.Fprintln(out, "- "+id)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "inspect <session-id>",
			Short: "Print the dialogue state of a session as JSON",
			Args:  cobra.ExactArgs(1),
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

				st, err := app.Service.Snapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			},
		},
		&cobra.Command{
			Use:   "rm <session-id>...",
			Short: "Remove sessions",
			Args:  cobra.MinimumNArgs(1),
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

				for _, id := range args {
					if err := app.Service.Delete(cmd.Context(), id); err != nil {
						return fmt.Errorf("remove %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				}
				return nil
			},
		},
	)
	return cmd
}
