package mcp

import (
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// IntentView is the published form of an intent.
type IntentView struct {
	Name     string     `json:"name"`
	Parent   string     `json:"parent,omitempty"`
	Slots    []SlotView `json:"slots"`
	Children []string   `json:"children,omitempty"`
	Leaf     bool       `json:"leaf"`
}

// SlotView is the published form of a slot definition.
type SlotView struct {
	Name        string          `json:"name"`
	Source      domain.Source   `json:"source"`
	Type        domain.SlotType `json:"type"`
	Description string          `json:"description,omitempty"`
	DependsOn   map[string]any  `json:"depends_on,omitempty"`
}

// Describe lists the intents of the model in declared order.
func Describe(m *schema.Model) []IntentView {
	var out []IntentView
	for _, n := range m.Intents() {
		v := IntentView{Name: n.Name, Leaf: n.IsLeaf(), Slots: make([]SlotView, 0, len(n.Slots))}
		if p := n.Parent(); p != nil {
			v.Parent = p.Name
		}
		for _, c := range n.Children {
			v.Children = append(v.Children, c.Name)
		}
		for _, def := range n.Slots {
			sv := SlotView{Name: def.Name, Source: def.Source, Type: def.Type, Description: def.Description}
			if len(def.DependsOn) > 0 {
				sv.DependsOn = make(map[string]any, len(def.DependsOn))
				for _, c := range def.DependsOn {
					sv.DependsOn[c.Slot] = c.Value
				}
			}
			v.Slots = append(v.Slots, sv)
		}
		out = append(out, v)
	}
	return out
}
