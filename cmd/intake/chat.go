package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/cli"
	"github.com/aretw0/intake/internal/presentation/tui"
	"github.com/aretw0/intake/pkg/domain"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive intake session in the terminal",
		Long: `Asks every slot the planner requests on stdin, runs the record lookup when
needed and prints the resolved summary when a leaf intent is complete.
The session is saved to the configured store so it can be resumed or graphed.`,
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

			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			headless, _ := cmd.Flags().GetBool("headless")
			if !cmd.Flags().Changed("headless") {
				headless = !isTerminal(in)
			}

			sigCtx := cli.NewSignalContext(cmd.Context())
			defer sigCtx.Cancel()

			sess, err := openSession(cmd, app)
			if err != nil {
				return err
			}

			r := intake.NewRunner()
			r.Input = in
			r.Output = out
			r.Headless = headless
			if !headless {
				tui.PrintBanner(out, intake.Version)
				printSystemMessage(out, "Session '%s' active.", sess.ID)
				r.Renderer = tui.NewRenderer()
			}

			final, runErr := r.Run(sigCtx, app.Engine, sess)
			if final != nil {
				// The signal context may already be cancelled.
				if err := app.Store.Save(cmd.Context(), final); err != nil {
					app.Logger.Warn("failed to save session", "session_id", final.ID, "err", err)
				}
			}
			if sigCtx.Signal() != nil {
				if !headless {
					printSystemMessage(out, "Interrupted (%v). Resume with --resume %s", sigCtx.Signal(), sess.ID)
				}
				return nil
			}
			return runErr
		},
	}
	cmd.Flags().Bool("headless", false, "Plain prompts without banner or markdown rendering (default when stdin is not a terminal)")
	cmd.Flags().String("resume", "", "Resume a saved session by ID")
	return cmd
}

func openSession(cmd *cobra.Command, app *cli.App) (*domain.Session, error) {
	id, _ := cmd.Flags().GetString("resume")
	if id == "" {
		sess := app.Engine.Start(uuid.NewString())
		app.Logger.Info("Session Created", "session_id", sess.ID)
		return sess, nil
	}
	sess, err := app.Store.Load(cmd.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("no saved session %q", id)
	}
	if err != nil {
		return nil, err
	}
	app.Logger.Info("Session Resumed", "session_id", id, "intent", sess.Current())
	return sess, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
