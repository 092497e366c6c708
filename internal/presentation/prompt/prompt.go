// Package prompt renders planner actions and dialogue state as plain text.
// The engine never produces natural language; this is the fallback wording
// used by the CLI when no NLG service sits in front of it.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/intake/pkg/domain"
)

// Question renders an AskSlot action as a one-line question.
func Question(a domain.Action) string {
	label := a.Description
	if label == "" {
		label = humanize(a.Slot)
	}

	var sb strings.Builder
	sb.WriteString(label)
	switch a.Type {
	case domain.TypeDate:
		sb.WriteString(" (YYYY-MM-DD)")
	case domain.TypeBoolean:
		sb.WriteString(" (yes/no)")
	case domain.TypeArray:
		sb.WriteString(" (comma separated)")
	}
	if len(a.AllowedValues) > 0 && a.Type != domain.TypeBoolean {
		opts := make([]string, len(a.AllowedValues))
		for i, v := range a.AllowedValues {
			opts[i] = fmt.Sprint(v)
		}
		fmt.Fprintf(&sb, " [%s]", strings.Join(opts, " | "))
	}
	if a.Fallback {
		sb.WriteString(" (not found in your record)")
	}
	sb.WriteString("?")
	return sb.String()
}

// Describe renders any action as a short status line.
func Describe(a domain.Action) string {
	switch a.Kind {
	case domain.ActionAskSlot:
		return Question(a)
	case domain.ActionLookup:
		return fmt.Sprintf("Looking up your record by %s...", humanize(a.Slot))
	case domain.ActionDescend:
		return fmt.Sprintf("-> %s", a.Child)
	case domain.ActionComplete:
		return fmt.Sprintf("%s intake complete.", a.Intent)
	}
	return string(a.Kind)
}

// Summary renders the resolved slots of a dialogue as a markdown document.
func Summary(st domain.DialogueState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", st.Intent)
	fmt.Fprintf(&sb, "_%s_\n\n", strings.Join(st.ActivePath, " › "))

	names := make([]string, 0, len(st.Slots))
	for name := range st.Slots {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("| Slot | Value | Source |\n|---|---|---|\n")
	for _, name := range names {
		v := st.Slots[name]
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", humanize(name), formatValue(v.Value), v.Source)
	}
	return sb.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	}
	return strings.ReplaceAll(fmt.Sprint(v), "|", "\\|")
}

func humanize(slot string) string {
	s := strings.ReplaceAll(slot, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
