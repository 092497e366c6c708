package dsl

import (
	"github.com/aretw0/intake/pkg/schema"
)

// Builder manages the schema construction.
type Builder struct {
	root    *IntentBuilder
	lookup  schema.RawLookup
	dynamic *bool
	leaves  []string
	opts    []schema.Option
}

// New creates a schema builder whose intent tree starts at root.
func New(root string) *Builder {
	b := &Builder{}
	b.root = &IntentBuilder{raw: schema.RawIntent{Name: root}, builder: b}
	return b
}

// Root returns the root intent.
func (b *Builder) Root() *IntentBuilder {
	return b.root
}

// Lookup configures the record lookup key slot and the record fields mapped into api slots.
func (b *Builder) Lookup(keySlot string, apiFields ...string) *Builder {
	b.lookup = schema.RawLookup{KeySlot: keySlot, APIFields: apiFields}
	return b
}

// DynamicSlots toggles derivation of computed slots.
func (b *Builder) DynamicSlots(enabled bool) *Builder {
	b.dynamic = &enabled
	return b
}

// Leaves declares the leaf intents explicitly. By default every childless
// intent is declared a leaf.
func (b *Builder) Leaves(names ...string) *Builder {
	b.leaves = names
	return b
}

// Raw returns the document assembled so far.
func (b *Builder) Raw() *schema.RawSchema {
	root := b.root.compile()
	leaves := b.leaves
	if leaves == nil {
		leaves = childless(root, nil)
	}
	return &schema.RawSchema{
		Config: schema.RawConfig{
			DatabaseLookup:      b.lookup,
			DynamicSlotHandling: b.dynamic,
		},
		RootIntent:  root.Name,
		LeafIntents: leaves,
		Intents:     []schema.RawIntent{root},
	}
}

// Build validates the schema and compiles it into a Model.
func (b *Builder) Build(opts ...schema.Option) (*schema.Model, error) {
	return schema.Load(b.Raw(), append(append([]schema.Option(nil), b.opts...), opts...)...)
}

func childless(n schema.RawIntent, acc []string) []string {
	if len(n.Children) == 0 {
		return append(acc, n.Name)
	}
	for _, c := range n.Children {
		acc = childless(c, acc)
	}
	return acc
}
