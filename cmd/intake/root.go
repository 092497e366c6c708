package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/intake/internal/cli"
	"github.com/aretw0/intake/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intake",
		Short: "Intake is an intent and slot resolution engine for patient intake dialogue",
		Long: `Intake walks a patient through a tree of intents, resolving slots from the
user, from a single record lookup and from computed rules, until a leaf intent is complete.`,
		SilenceUsage: true,
	}

	// Persistent flags (available to all commands)
	root.PersistentFlags().StringP("config", "c", "", "Path to intake.toml")
	root.PersistentFlags().String("schema", "", "Intent schema (YAML or JSON); defaults to the bundled orthopedic schema")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().Bool("debug", false, "Log every lifecycle event")

	root.AddCommand(
		newValidateCmd(),
		newGraphCmd(),
		newChatCmd(),
		newServeCmd(),
		newMCPCmd(),
		newSessionCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("schema") {
		cfg.Server.Schema, _ = cmd.Flags().GetString("schema")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, nil
}

// buildApp wires the application for commands that run dialogue.
func buildApp(cmd *cobra.Command, cfg *config.Config) (*cli.App, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.Build(cmd.Context(), cfg, cli.BuildOptions{
		LogWriter: cmd.ErrOrStderr(),
		Debug:     debug,
	})
}
