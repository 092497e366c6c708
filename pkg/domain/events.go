package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventIntentEnter      EventType = "intent_enter"
	EventSlotResolved     EventType = "slot_resolved"
	EventValidationFailed EventType = "validation_failed"
	EventLookup           EventType = "lookup"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// IntentEvent represents a descent into a child intent.
type IntentEvent struct {
	EventBase
	Intent string `json:"intent"`
	Parent string `json:"parent,omitempty"`
}

// SlotEvent represents a resolved or rejected slot.
type SlotEvent struct {
	EventBase
	Intent  string `json:"intent"`
	Slot    string `json:"slot"`
	Source  Source `json:"source"`
	Message string `json:"message,omitempty"`
}

// LookupEvent represents a completed call to the record provider.
type LookupEvent struct {
	EventBase
	KeySlot  string        `json:"key_slot"`
	Found    bool          `json:"found"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnIntentEnter      func(context.Context, *IntentEvent)
	OnSlotResolved     func(context.Context, *SlotEvent)
	OnValidationFailed func(context.Context, *SlotEvent)
	OnLookup           func(context.Context, *LookupEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnIntentEnter:      chain(h.OnIntentEnter, other.OnIntentEnter),
		OnSlotResolved:     chain(h.OnSlotResolved, other.OnSlotResolved),
		OnValidationFailed: chain(h.OnValidationFailed, other.OnValidationFailed),
		OnLookup:           chain(h.OnLookup, other.OnLookup),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
