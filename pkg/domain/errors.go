package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when a session is created under a taken ID.
var ErrSessionExists = errors.New("session already exists")

// ErrRecordNotFound is returned by record providers when no record matches the key.
var ErrRecordNotFound = errors.New("record not found")

var (
	// ErrUnknownSlot is returned when a slot is not defined on the active path.
	ErrUnknownSlot = errors.New("unknown slot")
	// ErrDependencyPending is returned when a slot is ingested before its dependencies.
	ErrDependencyPending = errors.New("slot dependencies are not resolved yet")
	// ErrSlotIrrelevant is returned when a slot is ingested although its dependencies exclude it.
	ErrSlotIrrelevant = errors.New("slot is not relevant for the current answers")
	// ErrNotIngestible is returned when input is supplied for a computed slot.
	ErrNotIngestible = errors.New("slot cannot be set directly")
	// ErrMissingInput is returned when a user slot is resolved without input.
	ErrMissingInput = errors.New("input is required")
	// ErrLookupInFlight is returned when a second lookup is started for the same session.
	ErrLookupInFlight = errors.New("a lookup is already in flight for this session")
	// ErrLookupKeyUnresolved is returned when a lookup is triggered before its key slot is known.
	ErrLookupKeyUnresolved = errors.New("lookup key slot is not resolved")
	// ErrNoProvider is returned when a lookup is triggered on an engine without a record provider.
	ErrNoProvider = errors.New("no record provider configured")
	// ErrNoBranch is returned when no branch of a non-leaf intent matches.
	ErrNoBranch = errors.New("no branch matches")
	// ErrUnknownIntent is returned when a session points at an intent the schema does not define.
	ErrUnknownIntent = errors.New("unknown intent")
)

// ValidationError reports a rejected slot value. The session is left unchanged.
type ValidationError struct {
	Slot    string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("slot %q: %s", e.Slot, e.Message)
}

// LookupError wraps a record provider failure. It is retryable; the engine never retries itself.
type LookupError struct {
	KeySlot string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup by %q failed: %v", e.KeySlot, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Retryable reports that the caller may try the lookup again.
func (e *LookupError) Retryable() bool { return true }
