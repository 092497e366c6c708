package dsl

import (
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// IntentBuilder provides a fluent API for configuring an intent.
type IntentBuilder struct {
	raw      schema.RawIntent
	slots    []*SlotBuilder
	children []*IntentBuilder
	builder  *Builder
}

// Name returns the intent name.
func (n *IntentBuilder) Name() string { return n.raw.Name }

// Child adds a child intent. If the child already exists, it returns the existing builder.
func (n *IntentBuilder) Child(name string) *IntentBuilder {
	for _, c := range n.children {
		if c.raw.Name == name {
			return c
		}
	}
	c := &IntentBuilder{raw: schema.RawIntent{Name: name}, builder: n.builder}
	n.children = append(n.children, c)
	return c
}

// Slot adds a slot with an explicit source.
func (n *IntentBuilder) Slot(name string, source domain.Source, typ domain.SlotType) *SlotBuilder {
	s := &SlotBuilder{raw: schema.RawSlot{Name: name, Source: string(source), Type: string(typ)}, intent: n}
	n.slots = append(n.slots, s)
	return s
}

// Ask adds a slot elicited from the user.
func (n *IntentBuilder) Ask(name string, typ domain.SlotType) *SlotBuilder {
	return n.Slot(name, domain.SourceUser, typ)
}

// API adds a slot filled from the record lookup.
func (n *IntentBuilder) API(name string, typ domain.SlotType) *SlotBuilder {
	return n.Slot(name, domain.SourceAPI, typ)
}

// Computed adds a slot derived by rule.
func (n *IntentBuilder) Computed(name string, rule schema.ComputeRule) *SlotBuilder {
	s := n.Slot(name, domain.SourceComputed, rule.Output())
	n.builder.opts = append(n.builder.opts, schema.WithComputeRule(name, rule))
	return s
}

// Branch routes to the child when every condition holds.
func (n *IntentBuilder) Branch(to string, when ...schema.RawCondition) *IntentBuilder {
	n.raw.Branches = append(n.raw.Branches, schema.RawBranch{To: to, When: when})
	return n
}

// BranchOnRecord routes to the child depending on the lookup outcome.
func (n *IntentBuilder) BranchOnRecord(to string, found bool) *IntentBuilder {
	n.raw.Branches = append(n.raw.Branches, schema.RawBranch{To: to, RecordFound: &found})
	return n
}

// Otherwise adds the default branch.
func (n *IntentBuilder) Otherwise(to string) *IntentBuilder {
	return n.Branch(to)
}

func (n *IntentBuilder) compile() schema.RawIntent {
	out := n.raw
	out.Branches = append([]schema.RawBranch(nil), n.raw.Branches...)
	out.Slots = make([]schema.RawSlot, 0, len(n.slots))
	for _, s := range n.slots {
		out.Slots = append(out.Slots, s.raw)
	}
	out.Children = make([]schema.RawIntent, 0, len(n.children))
	for _, c := range n.children {
		out.Children = append(out.Children, c.compile())
	}
	return out
}

// When is a slot == value condition for Branch and DependsOn.
func When(slot string, value any) schema.RawCondition {
	return schema.RawCondition{Slot: slot, Value: value}
}

// SlotBuilder provides a fluent API for configuring a slot.
type SlotBuilder struct {
	raw    schema.RawSlot
	intent *IntentBuilder
}

// Intent returns the intent the slot belongs to.
func (s *SlotBuilder) Intent() *IntentBuilder { return s.intent }

// Describe sets the question text shown to the user.
func (s *SlotBuilder) Describe(text string) *SlotBuilder {
	s.raw.Description = text
	return s
}

// Pattern requires string or date input to match re. msg replaces the generic error when set.
func (s *SlotBuilder) Pattern(re, msg string) *SlotBuilder {
	s.validate("pattern", re)
	if msg != "" {
		s.validate("error_message", msg)
	}
	return s
}

// Range bounds integer values, or dates given as YYYY-MM-DD strings.
func (s *SlotBuilder) Range(min, max any) *SlotBuilder {
	if min != nil {
		s.validate("min", min)
	}
	if max != nil {
		s.validate("max", max)
	}
	return s
}

// Length bounds the length of strings and arrays.
func (s *SlotBuilder) Length(min, max int) *SlotBuilder {
	s.validate("min_length", min)
	s.validate("max_length", max)
	return s
}

// OneOf restricts the slot to the listed values.
func (s *SlotBuilder) OneOf(values ...any) *SlotBuilder {
	s.validate("allowed_values", values)
	return s
}

// Items sets the element type of an array slot.
func (s *SlotBuilder) Items(typ domain.SlotType) *SlotBuilder {
	s.validate("item_type", string(typ))
	return s
}

// Error overrides every generic validation message of the slot.
func (s *SlotBuilder) Error(msg string) *SlotBuilder {
	s.validate("error_message", msg)
	return s
}

// DependsOn makes the slot relevant only when slot holds value. Conditions are ANDed.
func (s *SlotBuilder) DependsOn(slot string, value any) *SlotBuilder {
	s.raw.DependsOn = append(s.raw.DependsOn, When(slot, value))
	return s
}

func (s *SlotBuilder) validate(key string, value any) {
	if s.raw.Validation == nil {
		s.raw.Validation = make(map[string]any)
	}
	s.raw.Validation[key] = value
}
