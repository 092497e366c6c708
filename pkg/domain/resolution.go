package domain

// Resolution describes the outcome of resolving one slot.
type Resolution struct {
	Slot   string `json:"slot"`
	Value  Value  `json:"value"`
	Source Source `json:"source"`

	// Changed is false when the input repeated the stored value.
	Changed bool `json:"changed"`
	// Deferred is set when a computed slot misses inputs or an api slot awaits the lookup.
	Deferred bool `json:"deferred,omitempty"`
	// Invalidated lists slots dropped because an input or a dependency changed.
	Invalidated []string `json:"invalidated,omitempty"`
}

// LookupResult summarises a completed lookup.
type LookupResult struct {
	KeySlot string `json:"key_slot"`
	Found   bool   `json:"found"`
	// Filled lists the api slots mapped from the record.
	Filled []string `json:"filled,omitempty"`
	// Cached is set when the outcome came from an earlier lookup.
	Cached bool `json:"cached,omitempty"`
	// Abandoned is set when the lookup was skipped and record fields are asked from the user.
	Abandoned bool `json:"abandoned,omitempty"`
}

// Step is what a stored session reports after each operation.
type Step struct {
	SessionID  string        `json:"session_id"`
	Resolution *Resolution   `json:"resolution,omitempty"`
	Lookup     *LookupResult `json:"lookup,omitempty"`
	Action     Action        `json:"action"`
	Diff       *SessionDiff  `json:"diff,omitempty"`
}
