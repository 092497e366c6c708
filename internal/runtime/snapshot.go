package runtime

import (
	"context"

	"github.com/aretw0/intake/pkg/domain"
)

// Snapshot reports the dialogue state. Computed slots are derived again on a
// copy of the session and the next action is previewed; sess is not modified
// and no hooks fire.
func (p *Planner) Snapshot(ctx context.Context, sess *domain.Session) domain.DialogueState {
	cp := sess.Clone()
	quiet := NewPlanner(p.r.quiet())

	for _, s := range quiet.r.visible(cp.ActivePath) {
		if s.def.Source != domain.SourceComputed {
			continue
		}
		delete(cp.Resolved, s.def.Name)
		if rel, _ := relevance(quiet.r.model, cp, s); rel == Relevant {
			_, _ = quiet.r.derive(ctx, cp, s)
		}
	}

	st := domain.DialogueState{
		SessionID:        sess.ID,
		Intent:           sess.Current(),
		ActivePath:       append([]string(nil), sess.ActivePath...),
		Turn:             sess.Turn,
		Slots:            make(map[string]domain.SlotView, len(cp.Resolved)),
		PendingLookupKey: sess.PendingLookupKey,
		LookupDone:       sess.Lookup != nil,
		RecordFound:      sess.Lookup != nil && sess.Lookup.Found,
		LookupAbandoned:  sess.Lookup != nil && sess.Lookup.Abandoned,
	}
	for name, rs := range cp.Resolved {
		st.Slots[name] = domain.SlotView{
			Value:  rs.Value.Interface(),
			Type:   rs.Value.Type(),
			Source: rs.Source,
			Turn:   rs.Turn,
			Intent: rs.Intent,
		}
	}

	if next, err := quiet.NextAction(ctx, cp); err == nil {
		st.Next = &next
		st.Complete = next.IsTerminal()
	}
	return st
}
