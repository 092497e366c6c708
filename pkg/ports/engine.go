package ports

import (
	"context"

	"github.com/aretw0/intake/pkg/domain"
)

// IntakeService is the session-by-ID API served by the HTTP and MCP adapters.
type IntakeService interface {
	// Create starts a session and returns its first action.
	Create(ctx context.Context) (*domain.Step, error)

	// Ingest resolves a slot from user input and plans the next action.
	Ingest(ctx context.Context, sessionID, slot string, input any) (*domain.Step, error)

	// Lookup runs the record lookup of a session and plans the next action.
	Lookup(ctx context.Context, sessionID string) (*domain.Step, error)

	// SkipLookup abandons the record lookup so record fields are asked from the user.
	SkipLookup(ctx context.Context, sessionID string) (*domain.Step, error)

	// Next plans the next action without new input.
	Next(ctx context.Context, sessionID string) (*domain.Step, error)

	// Snapshot returns a read-only view of the session.
	Snapshot(ctx context.Context, sessionID string) (domain.DialogueState, error)

	// Delete discards a session.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of the stored sessions.
	List(ctx context.Context) ([]string, error)
}
