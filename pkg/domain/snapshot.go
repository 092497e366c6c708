package domain

// SlotView is the JSON-friendly view of a resolved slot.
type SlotView struct {
	Value  any      `json:"value"`
	Type   SlotType `json:"type"`
	Source Source   `json:"source"`
	Turn   int      `json:"turn"`
	Intent string   `json:"intent"`
}

// DialogueState is a read-only view of a session for persistence and debugging.
type DialogueState struct {
	SessionID        string              `json:"session_id"`
	Intent           string              `json:"intent"`
	ActivePath       []string            `json:"active_path"`
	Turn             int                 `json:"turn"`
	Slots            map[string]SlotView `json:"slots"`
	PendingLookupKey string              `json:"pending_lookup_key,omitempty"`
	LookupDone       bool                `json:"lookup_done"`
	RecordFound      bool                `json:"record_found"`
	LookupAbandoned  bool                `json:"lookup_abandoned,omitempty"`
	Next             *Action             `json:"next,omitempty"`
	Complete         bool                `json:"complete"`
}
