package runtime

import (
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// Relevance is the state of a slot with respect to its depends_on conditions.
type Relevance int

const (
	// Relevant slots must be resolved before the intent is done.
	Relevant Relevance = iota
	// Irrelevant slots are skipped: a dependency holds another value or is itself skipped.
	Irrelevant
	// Pending slots wait for a dependency to be resolved.
	Pending
)

func (r Relevance) String() string {
	switch r {
	case Relevant:
		return "relevant"
	case Irrelevant:
		return "irrelevant"
	case Pending:
		return "pending"
	}
	return "unknown"
}

// scoped is a slot definition together with the path it is visible from.
type scoped struct {
	def   *schema.SlotDef
	scope []string
}

// lookup resolves name as seen from scope and returns the definition with its own scope.
func lookup(m *schema.Model, scope []string, name string) (scoped, bool) {
	def, owner, ok := m.Resolve(scope, name)
	if !ok {
		return scoped{}, false
	}
	for i, intent := range scope {
		if intent == owner.Name {
			return scoped{def: def, scope: scope[:i+1]}, true
		}
	}
	return scoped{def: def, scope: scope}, true
}

// relevance classifies s against the session. When the result is Pending the
// returned definition is the first unresolved dependency.
func relevance(m *schema.Model, sess *domain.Session, s scoped) (Relevance, scoped) {
	return evaluate(m, sess, s, map[*schema.SlotDef]bool{})
}

func evaluate(m *schema.Model, sess *domain.Session, s scoped, seen map[*schema.SlotDef]bool) (Relevance, scoped) {
	if s.def.Source == domain.SourceComputed && !m.DynamicSlots {
		return Irrelevant, scoped{}
	}
	if seen[s.def] {
		// Acyclic schemas never get here.
		return Irrelevant, scoped{}
	}
	seen[s.def] = true
	defer delete(seen, s.def)

	var blocker scoped
	for _, cond := range s.def.DependsOn {
		dep, ok := lookup(m, s.scope, cond.Slot)
		if !ok {
			return Irrelevant, scoped{}
		}
		if r, ok := sess.Get(cond.Slot); ok {
			if !r.Value.Matches(cond.Value) {
				return Irrelevant, scoped{}
			}
			continue
		}
		rel, _ := evaluate(m, sess, dep, seen)
		if rel == Irrelevant {
			// A skipped dependency never holds the required value.
			return Irrelevant, scoped{}
		}
		if blocker.def == nil {
			blocker = dep
		}
	}
	if blocker.def != nil {
		return Pending, blocker
	}
	return Relevant, scoped{}
}
