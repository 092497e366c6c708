package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// GraphOverlay contains dynamic session data to visualize on the graph.
type GraphOverlay struct {
	ActivePath    []string
	CurrentIntent string
}

// GenerateMermaid produces a Mermaid flowchart of the intent tree.
// It applies semantic styling:
// - Root: ((Circle))
// - Leaf: ([Stadium])
// - Intent resolving api slots: [[Subroutine]]
// - Default: [Rectangle]
// Edges carry the branch condition that selects the child; children without
// a branch are drawn dotted. Overlay styles mark the active path.
func GenerateMermaid(m *schema.Model, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range m.Intents() {
		safeID := sanitizeMermaidID(node.Name)

		opener, closer := "[", "]"
		switch {
		case node.Parent() == nil:
			opener, closer = "((", "))"
		case node.IsLeaf():
			opener, closer = "([", "])"
		case hasAPISlots(node):
			opener, closer = "[[", "]]"
		}

		label := node.Name
		if n := len(node.Slots); n > 0 {
			label = fmt.Sprintf("%s <br/> %d slots", node.Name, n)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer)

		routed := make(map[string]bool, len(node.Branches))
		for _, b := range node.Branches {
			routed[b.To] = true
			safeTo := sanitizeMermaidID(b.To)
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(branchLabel(b)), safeTo)
		}
		for _, child := range node.Children {
			if !routed[child.Name] {
				fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, sanitizeMermaidID(child.Name))
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps the highlight readable on light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, name := range overlay.ActivePath {
			if _, ok := m.Node(name); !ok || name == overlay.CurrentIntent {
				continue
			}
			safeID := sanitizeMermaidID(name)
			if !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentIntent != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentIntent))
		}
	}

	return sb.String()
}

func hasAPISlots(n *schema.IntentNode) bool {
	for _, s := range n.Slots {
		if s.Source == domain.SourceAPI {
			return true
		}
	}
	return false
}

func branchLabel(b schema.Branch) string {
	if b.Unconditional() {
		return "otherwise"
	}
	var parts []string
	if b.RecordFound != nil {
		if *b.RecordFound {
			parts = append(parts, "record found")
		} else {
			parts = append(parts, "no record")
		}
	}
	conds := make([]string, 0, len(b.When))
	for _, c := range b.When {
		conds = append(conds, fmt.Sprintf("%s = %v", c.Slot, c.Value))
	}
	sort.Strings(conds)
	return strings.Join(append(parts, conds...), " & ")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
