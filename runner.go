package intake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/intake/internal/presentation/prompt"
	"github.com/aretw0/intake/internal/sanitize"
	"github.com/aretw0/intake/pkg/domain"
)

// Runner drives one session of an Engine over line-oriented IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
}

// ContentRenderer transforms the markdown summary before it is written.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{}
}

// Run asks every slot the planner requests, triggers the lookup when the
// planner requests it and returns the session once a leaf intent is complete
// or the input ends. Typing "exit" or "quit" stops early.
func (r *Runner) Run(ctx context.Context, engine *Engine, sess *domain.Session) (*domain.Session, error) {
	if r.Input == nil {
		return sess, fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return sess, fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(r.Input)
	w := r.Output

	if !r.Headless {
		fmt.Fprintln(w, "--- Intake ---")
	}

	for {
		action, err := engine.NextAction(ctx, sess)
		if err != nil {
			return sess, fmt.Errorf("plan error: %w", err)
		}

		switch action.Kind {
		case domain.ActionComplete:
			if !r.Headless {
				fmt.Fprintln(w, prompt.Describe(action))
			}
			fmt.Fprintln(w, r.render(prompt.Summary(engine.Snapshot(ctx, sess))))
			return sess, nil

		case domain.ActionDescend:
			if !r.Headless {
				fmt.Fprintln(w, prompt.Describe(action))
			}

		case domain.ActionLookup:
			if !r.Headless {
				fmt.Fprintln(w, prompt.Describe(action))
			}
			if err := r.lookup(ctx, engine, sess); err != nil {
				return sess, err
			}

		case domain.ActionAskSlot:
			fmt.Fprint(w, prompt.Question(action), " ")
			if !r.Headless {
				fmt.Fprint(w, "\n> ")
			}
			text, err := lines.ReadString('\n')
			if err != nil && (!errors.Is(err, io.EOF) || text == "") {
				if errors.Is(err, io.EOF) {
					return sess, nil
				}
				return sess, fmt.Errorf("input error: %w", err)
			}
			input, err := sanitize.String(strings.TrimSpace(text))
			if err != nil {
				fmt.Fprintln(w, err)
				continue
			}
			if input == "exit" || input == "quit" {
				fmt.Fprintln(w, "Bye!")
				return sess, nil
			}

			if _, err := engine.Ingest(ctx, sess, action.Slot, input); err != nil {
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintln(w, verr.Message)
					continue
				}
				return sess, fmt.Errorf("ingest error: %w", err)
			}
		}
	}
}

// lookup retries a failed provider once, then continues without the record so
// the fields it would have filled are asked instead.
func (r *Runner) lookup(ctx context.Context, engine *Engine, sess *domain.Session) error {
	_, err := engine.TriggerLookup(ctx, sess)
	var lookupErr *domain.LookupError
	if errors.As(err, &lookupErr) {
		_, err = engine.TriggerLookup(ctx, sess)
	}
	if err == nil {
		return nil
	}
	if !errors.As(err, &lookupErr) && !errors.Is(err, domain.ErrNoProvider) {
		return fmt.Errorf("lookup error: %w", err)
	}
	fmt.Fprintln(r.Output, "Record lookup unavailable, continuing without it.")
	if _, err := engine.SkipLookup(ctx, sess); err != nil {
		return fmt.Errorf("lookup error: %w", err)
	}
	return nil
}

func (r *Runner) render(markdown string) string {
	if r.Renderer == nil {
		return strings.TrimSpace(markdown)
	}
	out, err := r.Renderer(markdown)
	if err != nil {
		return strings.TrimSpace(markdown)
	}
	return strings.TrimSpace(out)
}
