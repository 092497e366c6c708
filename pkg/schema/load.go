package schema

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	computeRules map[string]ComputeRule
}

// WithComputeRule registers the derivation of every computed slot named slot,
// taking precedence over a compute block declared in the document.
func WithComputeRule(slot string, rule ComputeRule) Option {
	return func(o *loadOptions) {
		o.computeRules[slot] = rule
	}
}

// LoadFile reads, parses and validates a schema document (YAML or JSON).
func LoadFile(path string, opts ...Option) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return LoadBytes(data, opts...)
}

// LoadBytes parses and validates a schema document.
func LoadBytes(data []byte, opts ...Option) (*Model, error) {
	raw, err := Parse(data)
	if err != nil {
		return nil, &SchemaError{Errors: []error{err}}
	}
	return Load(raw, opts...)
}

// Load validates a decoded schema and builds the immutable Model.
// Every violation is reported in a single *SchemaError.
func Load(raw *RawSchema, opts ...Option) (*Model, error) {
	o := &loadOptions{computeRules: make(map[string]ComputeRule)}
	for _, opt := range opts {
		opt(o)
	}

	c := &collector{}
	if raw == nil {
		c.addf("", "schema is empty")
		return nil, c.err()
	}

	m := &Model{
		RootIntent:   raw.RootIntent,
		LeafIntents:  append([]string(nil), raw.LeafIntents...),
		DynamicSlots: true,
		Lookup: LookupConfig{
			KeySlot:   raw.Config.DatabaseLookup.KeySlot,
			APIFields: append([]string(nil), raw.Config.DatabaseLookup.APIFields...),
		},
		nodes: make(map[string]*IntentNode),
	}
	if raw.Config.DynamicSlotHandling != nil {
		m.DynamicSlots = *raw.Config.DynamicSlotHandling
	}

	switch len(raw.Intents) {
	case 0:
		c.addf("", "schema declares no intents")
		return nil, c.err()
	case 1:
	default:
		names := make([]string, len(raw.Intents))
		for i, ri := range raw.Intents {
			names[i] = ri.Name
		}
		c.addf("", "exactly one root intent expected, found %d: %q", len(names), names)
	}

	b := &builder{model: m, c: c, rawBranches: make(map[*IntentNode][]RawBranch)}
	m.Root = b.buildIntent(raw.Intents[0], nil)

	if raw.RootIntent == "" {
		c.addf("", "root_intent is required")
	} else if raw.RootIntent != m.Root.Name {
		c.addf("", "root_intent %q does not match the tree root %q", raw.RootIntent, m.Root.Name)
	}

	owners := make(map[*SlotDef]*IntentNode)
	for _, n := range m.order {
		for _, def := range n.Slots {
			owners[def] = n
			b.checkSlot(n, def, o)
		}
		b.checkBranches(n)
	}

	checkLeaves(m, c)
	checkLookupConfig(m, c)

	if cycle := findCycle(m, owners); cycle != nil {
		c.add(cycle)
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return m, nil
}

type builder struct {
	model       *Model
	c           *collector
	rawBranches map[*IntentNode][]RawBranch
}

func (b *builder) buildIntent(ri RawIntent, parent *IntentNode) *IntentNode {
	n := &IntentNode{
		Name:      ri.Name,
		parent:    parent,
		slotIndex: make(map[string]*SlotDef),
	}
	if ri.Name == "" {
		b.c.addf("", "intent with an empty name")
	}
	if _, dup := b.model.nodes[ri.Name]; dup {
		b.c.addf(ri.Name, "intent name is not unique")
	} else {
		b.model.nodes[ri.Name] = n
	}
	b.model.order = append(b.model.order, n)

	for _, rs := range ri.Slots {
		def := b.buildSlot(n.Name, rs)
		if _, dup := n.slotIndex[def.Name]; dup {
			b.c.addf(slotPath(n.Name, def.Name), "slot is declared twice")
			continue
		}
		n.slotIndex[def.Name] = def
		n.Slots = append(n.Slots, def)
	}

	for _, rc := range ri.Children {
		n.Children = append(n.Children, b.buildIntent(rc, n))
	}
	b.rawBranches[n] = ri.Branches
	return n
}

func (b *builder) buildSlot(intent string, rs RawSlot) *SlotDef {
	path := slotPath(intent, rs.Name)
	def := &SlotDef{
		Name:        rs.Name,
		Source:      domain.Source(rs.Source),
		Type:        domain.SlotType(rs.Type),
		Description: rs.Description,
	}
	if !def.Source.Valid() {
		b.c.addf(path, "unknown source %q (want user, api or computed)", rs.Source)
	}
	if !def.Type.Valid() {
		b.c.addf(path, "unknown type %q (want string, date, boolean, integer or array)", rs.Type)
	}
	for _, rc := range rs.DependsOn {
		def.DependsOn = append(def.DependsOn, Condition{Slot: rc.Slot, Value: rc.Value})
	}

	if rs.Validation != nil && def.Type.Valid() {
		var rv rawValidation
		if err := decodeStrict(rs.Validation, &rv); err != nil {
			b.c.addf(path, "validation: %v", err)
		} else {
			rules, msg, problems := buildRules(def.Type, rv)
			def.Rules = rules
			def.ErrorMessage = msg
			for _, p := range problems {
				b.c.addf(path, "validation: %s", p)
			}
		}
	}

	if rs.Compute != nil {
		var rc rawCompute
		if err := decodeStrict(rs.Compute, &rc); err != nil {
			b.c.addf(path, "compute: %v", err)
		} else if rule, err := buildCompute(rc); err != nil {
			b.c.addf(path, "%v", err)
		} else {
			def.Compute = rule
		}
	}
	return def
}

func (b *builder) checkSlot(n *IntentNode, def *SlotDef, o *loadOptions) {
	path := slotPath(n.Name, def.Name)

	for _, cond := range def.DependsOn {
		if cond.Slot == def.Name {
			// Reported as a cycle.
			continue
		}
		target, _ := lookupScope(n, cond.Slot)
		if target == nil {
			b.c.addf(path, "depends_on %q is not defined on this intent or an ancestor", cond.Slot)
			continue
		}
		if !literalFits(target.Type, cond.Value) {
			b.c.addf(path, "depends_on %q requires %v, not a valid %s value", cond.Slot, cond.Value, target.Type)
		}
	}

	if rule, ok := o.computeRules[def.Name]; ok && def.Source == domain.SourceComputed {
		def.Compute = rule
	}

	switch def.Source {
	case domain.SourceComputed:
		if def.Compute == nil {
			b.c.addf(path, "computed slot has no compute rule")
			return
		}
		if def.Type.Valid() && def.Compute.Output() != def.Type {
			b.c.addf(path, "compute rule yields %s, slot is %s", def.Compute.Output(), def.Type)
		}
		for _, in := range def.Compute.Inputs() {
			if in == def.Name {
				continue
			}
			if target, _ := lookupScope(n, in); target == nil {
				b.c.addf(path, "compute input %q is not defined on this intent or an ancestor", in)
			}
		}
	case domain.SourceAPI:
		if def.Compute != nil {
			b.c.addf(path, "compute is only allowed on computed slots")
		}
		if b.model.Lookup.KeySlot == "" {
			b.c.addf(path, "api slot requires config.database_lookup.key_slot")
		} else if !b.model.Lookup.HasField(def.Name) {
			b.c.addf(path, "api slot is not listed in config.database_lookup.api_fields")
		}
	default:
		if def.Compute != nil {
			b.c.addf(path, "compute is only allowed on computed slots")
		}
	}
}

func (b *builder) checkBranches(n *IntentNode) {
	raw := b.rawBranches[n]
	if n.IsLeaf() {
		if len(raw) > 0 {
			b.c.addf(n.Name, "leaf intent declares branches")
		}
		return
	}
	if len(raw) == 0 {
		if len(n.Children) == 1 {
			n.Branches = []Branch{{To: n.Children[0].Name}}
			return
		}
		b.c.addf(n.Name, "intent has %d children but declares no branches", len(n.Children))
		return
	}

	for i, rb := range raw {
		path := fmt.Sprintf("%s.branches[%d]", n.Name, i)
		if _, ok := n.Child(rb.To); !ok {
			b.c.addf(path, "target %q is not a child of %q", rb.To, n.Name)
		}
		br := Branch{To: rb.To, RecordFound: rb.RecordFound}
		for _, rc := range rb.When {
			if target, _ := lookupScope(n, rc.Slot); target == nil {
				b.c.addf(path, "condition slot %q is not defined on this intent or an ancestor", rc.Slot)
			}
			br.When = append(br.When, Condition{Slot: rc.Slot, Value: rc.Value})
		}
		if rb.RecordFound != nil && b.model.Lookup.KeySlot == "" {
			b.c.addf(path, "record_found requires config.database_lookup.key_slot")
		}
		n.Branches = append(n.Branches, br)
	}
	if !n.Branches[len(n.Branches)-1].Unconditional() {
		b.c.addf(n.Name, "last branch must be unconditional")
	}
}

func checkLeaves(m *Model, c *collector) {
	declared := make(map[string]bool, len(m.LeafIntents))
	for _, name := range m.LeafIntents {
		declared[name] = true
	}
	notLeaf := make(map[string]bool)
	undeclared := make(map[string]bool)
	for name := range declared {
		if n, ok := m.nodes[name]; !ok || !n.IsLeaf() {
			notLeaf[name] = true
		}
	}
	for _, n := range m.order {
		if n.IsLeaf() && !declared[n.Name] {
			undeclared[n.Name] = true
		}
	}
	if len(notLeaf) > 0 || len(undeclared) > 0 {
		c.add(&LeafMismatchError{NotLeaf: sortedKeys(notLeaf), Undeclared: sortedKeys(undeclared)})
	}
}

func checkLookupConfig(m *Model, c *collector) {
	key := m.Lookup.KeySlot
	if key == "" {
		return
	}
	for _, n := range m.order {
		if _, ok := n.Slot(key); ok {
			return
		}
	}
	c.addf("config.database_lookup", "key_slot %q is not defined by any intent", key)
}

// findCycle looks for a cycle over depends_on references and compute inputs,
// each resolved to the definition visible from the referencing intent.
func findCycle(m *Model, owners map[*SlotDef]*IntentNode) *DependencyCycleError {
	edges := make(map[*SlotDef][]*SlotDef)
	var defs []*SlotDef
	for _, n := range m.order {
		for _, def := range n.Slots {
			defs = append(defs, def)
			refs := make([]string, 0, len(def.DependsOn))
			for _, cond := range def.DependsOn {
				refs = append(refs, cond.Slot)
			}
			if def.Source == domain.SourceComputed && def.Compute != nil {
				refs = append(refs, def.Compute.Inputs()...)
			}
			for _, ref := range refs {
				if target, _ := lookupScope(n, ref); target != nil {
					edges[def] = append(edges[def], target)
				}
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[*SlotDef]int)
	var stack []*SlotDef
	var found []*SlotDef

	var visit func(d *SlotDef) bool
	visit = func(d *SlotDef) bool {
		color[d] = grey
		stack = append(stack, d)
		for _, t := range edges[d] {
			switch color[t] {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == t {
						found = append(append(found, stack[i:]...), t)
						return true
					}
				}
			case white:
				if visit(t) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[d] = black
		return false
	}

	for _, d := range defs {
		if color[d] == white && visit(d) {
			cycle := make([]string, len(found))
			for i, f := range found {
				cycle[i] = slotPath(owners[f].Name, f.Name)
			}
			return &DependencyCycleError{Cycle: cycle}
		}
	}
	return nil
}

func slotPath(intent, slot string) string {
	return intent + "." + slot
}

// literalFits reports whether a schema literal could ever match a value of type t.
func literalFits(t domain.SlotType, literal any) bool {
	switch t {
	case domain.TypeBoolean:
		switch l := literal.(type) {
		case bool:
			return true
		case string:
			_, err := strconv.ParseBool(l)
			return err == nil
		}
		return false
	case domain.TypeInteger:
		_, ok := toInt64(literal)
		return ok
	case domain.TypeString:
		_, ok := literal.(string)
		return ok
	case domain.TypeDate:
		s, ok := literal.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(domain.DateLayout, s)
		return err == nil
	}
	return false
}

func compilePattern(p string) (*regexp.Regexp, error) {
	if p == "" {
		return nil, nil
	}
	return regexp.Compile(p)
}
