package domain

// ActionKind enumerates the structured decisions of the planner.
type ActionKind string

const (
	// ActionAskSlot requests the presentation layer to elicit a slot from the user.
	ActionAskSlot ActionKind = "ask_slot"
	// ActionLookup requests the host to trigger the external record lookup.
	ActionLookup ActionKind = "lookup"
	// ActionDescend reports that the session entered a child intent.
	ActionDescend ActionKind = "descend"
	// ActionComplete reports that a leaf intent has every relevant slot resolved.
	ActionComplete ActionKind = "complete"
)

// Action is the next step decided for a session.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Intent is the node the decision was taken at.
	Intent string `json:"intent"`

	// Slot is the slot to ask (AskSlot) or the lookup key slot (Lookup).
	Slot string `json:"slot,omitempty"`

	// Child is the entered intent (Descend).
	Child string `json:"child,omitempty"`

	// Hints for the presentation layer (AskSlot only).
	Type          SlotType `json:"type,omitempty"`
	Description   string   `json:"description,omitempty"`
	AllowedValues []any    `json:"allowed_values,omitempty"`

	// Fallback is set when an api-sourced slot is asked because the lookup could not fill it.
	Fallback bool `json:"fallback,omitempty"`
}

// IsTerminal reports whether the dialogue is complete.
func (a Action) IsTerminal() bool {
	return a.Kind == ActionComplete
}
