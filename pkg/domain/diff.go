package domain

// SessionDiff represents the changes between two snapshots of a session.
// It is designed to be serialized to JSON for partial updates on the client.
type SessionDiff struct {
	SessionID string `json:"session_id"`

	// Resolved contains added or changed slots. Removed (invalidated) slots map to nil.
	Resolved map[string]*ResolvedSlot `json:"resolved,omitempty"`

	// Entered lists intents appended to the active path.
	Entered []string `json:"entered,omitempty"`

	// LookupCompleted is set when the lookup outcome appeared in this step.
	LookupCompleted *bool `json:"lookup_completed,omitempty"`
}

// Diff calculates the difference between oldSession and newSession.
// If oldSession is nil, it returns a diff representing the entire newSession.
func Diff(oldSession, newSession *Session) *SessionDiff {
	if newSession == nil {
		return nil
	}

	diff := &SessionDiff{SessionID: newSession.ID}

	delta := make(map[string]*ResolvedSlot)
	for k, nv := range newSession.Resolved {
		if oldSession != nil {
			if ov, ok := oldSession.Resolved[k]; ok && ov.Source == nv.Source && ov.Value.Equal(nv.Value) {
				continue
			}
		}
		v := nv
		delta[k] = &v
	}
	if oldSession != nil {
		for k := range oldSession.Resolved {
			if _, ok := newSession.Resolved[k]; !ok {
				delta[k] = nil
			}
		}
	}
	if len(delta) > 0 {
		diff.Resolved = delta
	}

	// ActivePath is append-only.
	oldLen := 0
	if oldSession != nil {
		oldLen = len(oldSession.ActivePath)
	}
	if len(newSession.ActivePath) > oldLen {
		diff.Entered = append([]string(nil), newSession.ActivePath[oldLen:]...)
	}

	if newSession.Lookup != nil && (oldSession == nil || oldSession.Lookup == nil) {
		found := newSession.Lookup.Found
		diff.LookupCompleted = &found
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return len(d.Resolved) == 0 && len(d.Entered) == 0 && d.LookupCompleted == nil
}
