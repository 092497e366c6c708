package schema

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// RawSchema is the decoded, not yet validated schema document.
// Slices keep the declared order of the document.
type RawSchema struct {
	Config      RawConfig
	RootIntent  string
	LeafIntents []string
	Intents     []RawIntent
}

// RawConfig mirrors the "config" block of a schema document.
type RawConfig struct {
	DatabaseLookup      RawLookup `mapstructure:"database_lookup"`
	DynamicSlotHandling *bool     `mapstructure:"dynamic_slot_handling"`
}

// RawLookup mirrors config.database_lookup.
type RawLookup struct {
	KeySlot   string   `mapstructure:"key_slot"`
	APIFields []string `mapstructure:"api_fields"`
}

// RawIntent is one intent of the document.
type RawIntent struct {
	Name     string
	Slots    []RawSlot
	Children []RawIntent
	Branches []RawBranch
}

// RawSlot is one slot of an intent.
type RawSlot struct {
	Name        string
	Source      string
	Type        string
	Description string
	Validation  map[string]any
	DependsOn   []RawCondition
	Compute     map[string]any
}

// RawCondition is a single slot == value requirement.
type RawCondition struct {
	Slot  string
	Value any
}

// RawBranch routes an intent to a child.
type RawBranch struct {
	To          string
	When        []RawCondition
	RecordFound *bool
}

type intentBody struct {
	Slots    yaml.Node    `yaml:"slots"`
	Children yaml.Node    `yaml:"children"`
	Branches []branchBody `yaml:"branches"`
}

type slotBody struct {
	Source      string         `yaml:"source"`
	Type        string         `yaml:"type"`
	Description string         `yaml:"description"`
	Validation  map[string]any `yaml:"validation"`
	DependsOn   yaml.Node      `yaml:"depends_on"`
	Compute     map[string]any `yaml:"compute"`
}

type branchBody struct {
	To          string    `yaml:"to"`
	When        yaml.Node `yaml:"when"`
	RecordFound *bool     `yaml:"record_found"`
}

// Parse decodes a YAML or JSON schema document.
func Parse(data []byte) (*RawSchema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("parse schema: empty document")
	}
	top := doc.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse schema: top level must be a mapping")
	}

	raw := &RawSchema{}
	err := eachPair(top, func(key string, val *yaml.Node) error {
		switch key {
		case "config":
			var m map[string]any
			if err := val.Decode(&m); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := decodeStrict(m, &raw.Config); err != nil {
				return fmt.Errorf("config: %w", err)
			}
		case "root_intent":
			return val.Decode(&raw.RootIntent)
		case "leaf_intents":
			return val.Decode(&raw.LeafIntents)
		case "intents":
			intents, err := parseIntents(val)
			if err != nil {
				return err
			}
			raw.Intents = intents
		default:
			return fmt.Errorf("unknown top-level key %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return raw, nil
}

func parseIntents(node *yaml.Node) ([]RawIntent, error) {
	var out []RawIntent
	err := eachPair(node, func(name string, val *yaml.Node) error {
		var body intentBody
		if err := val.Decode(&body); err != nil {
			return fmt.Errorf("intent %q: %w", name, err)
		}
		intent := RawIntent{Name: name}

		slots, err := parseSlots(&body.Slots)
		if err != nil {
			return fmt.Errorf("intent %q: %w", name, err)
		}
		intent.Slots = slots

		children, err := parseIntents(&body.Children)
		if err != nil {
			return fmt.Errorf("intent %q: %w", name, err)
		}
		intent.Children = children

		for i, b := range body.Branches {
			when, err := parseConditions(&b.When)
			if err != nil {
				return fmt.Errorf("intent %q branch %d: %w", name, i, err)
			}
			intent.Branches = append(intent.Branches, RawBranch{To: b.To, When: when, RecordFound: b.RecordFound})
		}

		out = append(out, intent)
		return nil
	})
	return out, err
}

func parseSlots(node *yaml.Node) ([]RawSlot, error) {
	var out []RawSlot
	err := eachPair(node, func(name string, val *yaml.Node) error {
		var body slotBody
		if err := val.Decode(&body); err != nil {
			return fmt.Errorf("slot %q: %w", name, err)
		}
		deps, err := parseConditions(&body.DependsOn)
		if err != nil {
			return fmt.Errorf("slot %q depends_on: %w", name, err)
		}
		out = append(out, RawSlot{
			Name:        name,
			Source:      body.Source,
			Type:        body.Type,
			Description: body.Description,
			Validation:  body.Validation,
			DependsOn:   deps,
			Compute:     body.Compute,
		})
		return nil
	})
	return out, err
}

func parseConditions(node *yaml.Node) ([]RawCondition, error) {
	var out []RawCondition
	err := eachPair(node, func(slot string, val *yaml.Node) error {
		var v any
		if err := val.Decode(&v); err != nil {
			return err
		}
		out = append(out, RawCondition{Slot: slot, Value: v})
		return nil
	})
	return out, err
}

// eachPair walks a mapping node in document order. An absent node or a null
// scalar is treated as an empty mapping.
func eachPair(node *yaml.Node, fn func(key string, val *yaml.Node) error) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// decodeStrict maps a generic document fragment onto a typed struct and rejects unknown keys.
func decodeStrict(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
