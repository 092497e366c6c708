package schema

import (
	"github.com/aretw0/intake/pkg/domain"
)

// LookupConfig configures the external record lookup.
type LookupConfig struct {
	// KeySlot is the slot whose value is the provider query key.
	KeySlot string
	// APIFields is the subset of record fields mapped into api slots.
	APIFields []string
}

// HasField reports whether the field is part of the configured api_fields.
func (c LookupConfig) HasField(name string) bool {
	for _, f := range c.APIFields {
		if f == name {
			return true
		}
	}
	return false
}

// Condition requires a slot to hold a specific value.
type Condition struct {
	Slot  string
	Value any
}

// Branch routes a fully resolved intent to one of its children.
// A branch with no conditions always matches.
type Branch struct {
	To          string
	When        []Condition
	RecordFound *bool
}

// Unconditional reports whether the branch is a default.
func (b Branch) Unconditional() bool {
	return len(b.When) == 0 && b.RecordFound == nil
}

// SlotDef is the definition of a slot at one intent.
type SlotDef struct {
	Name        string
	Source      domain.Source
	Type        domain.SlotType
	Description string

	// Rules holds the validation variant for Type, or nil.
	Rules Rules
	// ErrorMessage overrides generic validation messages when set.
	ErrorMessage string

	// DependsOn conditions are ANDed.
	DependsOn []Condition

	// Compute is set for computed slots.
	Compute ComputeRule
}

// IntentNode is a node of the intent tree.
type IntentNode struct {
	Name     string
	Slots    []*SlotDef
	Children []*IntentNode
	Branches []Branch

	parent    *IntentNode
	slotIndex map[string]*SlotDef
}

// Parent returns the enclosing intent, or nil for the root.
func (n *IntentNode) Parent() *IntentNode { return n.parent }

// IsLeaf reports whether the intent has no children.
func (n *IntentNode) IsLeaf() bool { return len(n.Children) == 0 }

// Slot returns the slot defined on this very node.
func (n *IntentNode) Slot(name string) (*SlotDef, bool) {
	def, ok := n.slotIndex[name]
	return def, ok
}

// Child returns the direct child with the given name.
func (n *IntentNode) Child(name string) (*IntentNode, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Model is the immutable intent tree. It is safe for concurrent use.
type Model struct {
	Root         *IntentNode
	RootIntent   string
	LeafIntents  []string
	Lookup       LookupConfig
	DynamicSlots bool

	nodes map[string]*IntentNode
	order []*IntentNode
}

// Node returns the intent with the given name.
func (m *Model) Node(name string) (*IntentNode, bool) {
	n, ok := m.nodes[name]
	return n, ok
}

// Intents returns every intent in pre-order (declared order).
func (m *Model) Intents() []*IntentNode {
	out := make([]*IntentNode, len(m.order))
	copy(out, m.order)
	return out
}

// Resolve returns the authoritative definition of slot for the last intent of path:
// the nearest definition walking from that intent up to the root.
func (m *Model) Resolve(path []string, slot string) (*SlotDef, *IntentNode, bool) {
	for i := len(path) - 1; i >= 0; i-- {
		n, ok := m.nodes[path[i]]
		if !ok {
			continue
		}
		if def, ok := n.Slot(slot); ok {
			return def, n, true
		}
	}
	return nil, nil, false
}

// PathTo returns the names from the root to the given intent.
func (m *Model) PathTo(name string) ([]string, bool) {
	n, ok := m.nodes[name]
	if !ok {
		return nil, false
	}
	var rev []string
	for ; n != nil; n = n.parent {
		rev = append(rev, n.Name)
	}
	path := make([]string, len(rev))
	for i, v := range rev {
		path[len(rev)-1-i] = v
	}
	return path, true
}

// lookupScope finds the definition visible from n, the same rule as Resolve.
func lookupScope(n *IntentNode, slot string) (*SlotDef, *IntentNode) {
	for ; n != nil; n = n.parent {
		if def, ok := n.slotIndex[slot]; ok {
			return def, n
		}
	}
	return nil, nil
}
