package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// Planner decides the next step of a dialogue.
type Planner struct {
	r *Resolver
}

// NewPlanner creates a planner on top of a resolver.
func NewPlanner(r *Resolver) *Planner {
	return &Planner{r: r}
}

// NextAction returns the next step for the session. Computed slots are derived
// and cached record fields are mapped on the way; a Descend has already been
// applied to the session when it is returned.
func (p *Planner) NextAction(ctx context.Context, sess *domain.Session) (domain.Action, error) {
	m := p.r.model
	node, ok := m.Node(sess.Current())
	if !ok {
		return domain.Action{}, fmt.Errorf("%w: %q", domain.ErrUnknownIntent, sess.Current())
	}
	scope := sess.ActivePath

	for _, def := range node.Slots {
		s := scoped{def: def, scope: scope}
		action, done, err := p.planSlot(ctx, sess, s, map[*schema.SlotDef]bool{})
		if err != nil {
			return domain.Action{}, err
		}
		if !done {
			return action, nil
		}
	}

	if node.IsLeaf() {
		return domain.Action{Kind: domain.ActionComplete, Intent: node.Name}, nil
	}
	return p.branch(ctx, sess, node)
}

// planSlot returns done when s needs nothing more from the outside world:
// it is resolved, skipped, or was derived just now.
func (p *Planner) planSlot(ctx context.Context, sess *domain.Session, s scoped, visiting map[*schema.SlotDef]bool) (domain.Action, bool, error) {
	if sess.IsResolved(s.def.Name) {
		return domain.Action{}, true, nil
	}
	if visiting[s.def] {
		return domain.Action{}, false, fmt.Errorf("planning %q revisits itself", s.def.Name)
	}
	visiting[s.def] = true
	defer delete(visiting, s.def)

	for {
		rel, blocker := relevance(p.r.model, sess, s)
		switch rel {
		case Irrelevant:
			return domain.Action{}, true, nil
		case Pending:
			action, done, err := p.planSlot(ctx, sess, blocker, visiting)
			if err != nil || !done {
				return action, false, err
			}
			if !sess.IsResolved(blocker.def.Name) {
				// The dependency settled without a value.
				return domain.Action{}, true, nil
			}
			continue
		}
		break
	}

	switch s.def.Source {
	case domain.SourceUser:
		return askSlot(s, false), false, nil
	case domain.SourceAPI:
		return p.planAPI(ctx, sess, s, visiting)
	case domain.SourceComputed:
		return p.planComputed(ctx, sess, s, visiting)
	}
	return domain.Action{}, false, fmt.Errorf("slot %q has unknown source %q", s.def.Name, s.def.Source)
}

func (p *Planner) planAPI(ctx context.Context, sess *domain.Session, s scoped, visiting map[*schema.SlotDef]bool) (domain.Action, bool, error) {
	if sess.Lookup != nil {
		p.r.ApplyRecord(ctx, sess)
		if sess.IsResolved(s.def.Name) {
			return domain.Action{}, true, nil
		}
		return askSlot(s, true), false, nil
	}
	return p.planLookup(ctx, sess, s.scope, visiting)
}

// planLookup asks for the key slot first, then requests the lookup.
func (p *Planner) planLookup(ctx context.Context, sess *domain.Session, scope []string, visiting map[*schema.SlotDef]bool) (domain.Action, bool, error) {
	keySlot := p.r.model.Lookup.KeySlot
	intent := sess.Current()
	if !sess.IsResolved(keySlot) {
		key, ok := lookup(p.r.model, scope, keySlot)
		if !ok {
			key, ok = p.anywhere(keySlot)
		}
		if !ok {
			return domain.Action{}, false, fmt.Errorf("%w: %q", domain.ErrLookupKeyUnresolved, keySlot)
		}
		if key.def.Source == domain.SourceUser {
			return askSlot(key, false), false, nil
		}
		action, done, err := p.planSlot(ctx, sess, key, visiting)
		if err != nil || !done {
			return action, false, err
		}
		if !sess.IsResolved(keySlot) {
			return domain.Action{}, false, fmt.Errorf("%w: %q", domain.ErrLookupKeyUnresolved, keySlot)
		}
	}
	return domain.Action{Kind: domain.ActionLookup, Intent: intent, Slot: keySlot}, false, nil
}

// anywhere finds the key slot outside the active path.
func (p *Planner) anywhere(name string) (scoped, bool) {
	for _, n := range p.r.model.Intents() {
		if def, ok := n.Slot(name); ok {
			path, _ := p.r.model.PathTo(n.Name)
			return scoped{def: def, scope: path}, true
		}
	}
	return scoped{}, false
}

func (p *Planner) planComputed(ctx context.Context, sess *domain.Session, s scoped, visiting map[*schema.SlotDef]bool) (domain.Action, bool, error) {
	for {
		res, err := p.r.derive(ctx, sess, s)
		if err != nil {
			return domain.Action{}, false, err
		}
		if !res.Deferred {
			return domain.Action{}, true, nil
		}

		_, missing, _ := Compute(s.def, sess, Today(p.r.now()))
		in, ok := lookup(p.r.model, s.scope, missing)
		if !ok {
			return domain.Action{}, true, nil
		}
		action, done, err := p.planSlot(ctx, sess, in, visiting)
		if err != nil || !done {
			return action, false, err
		}
		if !sess.IsResolved(missing) {
			// The input was skipped, so the slot can never be derived.
			return domain.Action{}, true, nil
		}
	}
}

func (p *Planner) branch(ctx context.Context, sess *domain.Session, node *schema.IntentNode) (domain.Action, error) {
	for _, br := range node.Branches {
		if br.RecordFound != nil {
			if sess.Lookup == nil {
				action, _, err := p.planLookup(ctx, sess, sess.ActivePath, map[*schema.SlotDef]bool{})
				return action, err
			}
			if sess.Lookup.Found != *br.RecordFound {
				continue
			}
		}
		if !conditionsHold(sess, br.When) {
			continue
		}
		return p.descend(ctx, sess, node, br.To)
	}
	return domain.Action{}, fmt.Errorf("%w at %q", domain.ErrNoBranch, node.Name)
}

func (p *Planner) descend(ctx context.Context, sess *domain.Session, parent *schema.IntentNode, child string) (domain.Action, error) {
	sess.ActivePath = append(sess.ActivePath, child)
	sess.UpdatedAt = p.r.now().UTC()

	p.r.logger.Debug("intent entered", "session_id", sess.ID, "intent", child, "parent", parent.Name)
	if p.r.hooks.OnIntentEnter != nil {
		p.r.hooks.OnIntentEnter(ctx, &domain.IntentEvent{
			EventBase: domain.EventBase{Timestamp: p.r.now(), Type: domain.EventIntentEnter, SessionID: sess.ID},
			Intent:    child,
			Parent:    parent.Name,
		})
	}
	// Fields of an already cached record apply to the new intent at once.
	p.r.ApplyRecord(ctx, sess)

	return domain.Action{Kind: domain.ActionDescend, Intent: parent.Name, Child: child}, nil
}

func conditionsHold(sess *domain.Session, conds []schema.Condition) bool {
	for _, c := range conds {
		rs, ok := sess.Get(c.Slot)
		if !ok || !rs.Value.Matches(c.Value) {
			return false
		}
	}
	return true
}

func askSlot(s scoped, fallback bool) domain.Action {
	a := domain.Action{
		Kind:        domain.ActionAskSlot,
		Intent:      s.scope[len(s.scope)-1],
		Slot:        s.def.Name,
		Type:        s.def.Type,
		Description: s.def.Description,
		Fallback:    fallback,
	}
	switch r := s.def.Rules.(type) {
	case schema.StringRules:
		for _, v := range r.AllowedValues {
			a.AllowedValues = append(a.AllowedValues, v)
		}
	case schema.BooleanRules:
		for _, v := range r.AllowedValues {
			a.AllowedValues = append(a.AllowedValues, v)
		}
	case schema.IntegerRules:
		for _, v := range r.AllowedValues {
			a.AllowedValues = append(a.AllowedValues, v)
		}
	case schema.ArrayRules:
		for _, v := range r.AllowedValues {
			a.AllowedValues = append(a.AllowedValues, v)
		}
	}
	return a
}
