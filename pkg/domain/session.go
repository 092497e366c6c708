package domain

import "time"

// Record is a raw patient record returned by a record provider, keyed by field name.
type Record map[string]any

// ResolvedSlot holds a slot value together with its provenance.
type ResolvedSlot struct {
	Value  Value  `json:"value"`
	Source Source `json:"source"`
	Turn   int    `json:"turn"`
	// Intent is the node whose definition resolved the slot.
	Intent string `json:"intent"`
}

// LookupOutcome is the cached result of the single external lookup of a session.
type LookupOutcome struct {
	KeySlot string `json:"key_slot"`
	Found   bool   `json:"found"`
	Record  Record `json:"record,omitempty"`
	Turn    int    `json:"turn"`
	// Abandoned is set when the caller gave up on the provider; Found is then false.
	Abandoned bool `json:"abandoned,omitempty"`
}

// Session is the per-conversation dialogue state.
// It is owned by a single writer; the engine never retains it between calls.
type Session struct {
	ID string `json:"id"`

	// ActivePath lists intent names from the root to the current node. It only grows.
	ActivePath []string `json:"active_path"`

	Resolved map[string]ResolvedSlot `json:"resolved"`

	// PendingLookupKey names the key slot of an in-flight lookup, if any.
	PendingLookupKey string `json:"pending_lookup_key,omitempty"`
	// LookupStartedAt is when the in-flight lookup was marked.
	LookupStartedAt time.Time `json:"lookup_started_at,omitzero"`

	Lookup *LookupOutcome `json:"lookup,omitempty"`

	Turn      int       `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a clean session positioned at the root intent.
func NewSession(id, rootIntent string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         id,
		ActivePath: []string{rootIntent},
		Resolved:   make(map[string]ResolvedSlot),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Current returns the name of the intent the session is positioned at.
func (s *Session) Current() string {
	if len(s.ActivePath) == 0 {
		return ""
	}
	return s.ActivePath[len(s.ActivePath)-1]
}

// Get returns the resolved slot by name.
func (s *Session) Get(name string) (ResolvedSlot, bool) {
	r, ok := s.Resolved[name]
	return r, ok
}

// IsResolved reports whether the slot holds a value.
func (s *Session) IsResolved(name string) bool {
	_, ok := s.Resolved[name]
	return ok
}

// Clone returns a deep copy so stores and callers cannot alias each other's state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.ActivePath = append([]string(nil), s.ActivePath...)
	cp.Resolved = make(map[string]ResolvedSlot, len(s.Resolved))
	for k, v := range s.Resolved {
		cp.Resolved[k] = v
	}
	if s.Lookup != nil {
		lk := *s.Lookup
		if s.Lookup.Record != nil {
			lk.Record = make(Record, len(s.Lookup.Record))
			for k, v := range s.Lookup.Record {
				lk.Record[k] = v
			}
		}
		cp.Lookup = &lk
	}
	return &cp
}
