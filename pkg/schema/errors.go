package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Issue represents a single schema violation.
type Issue struct {
	Path   string // e.g. "Returning Patient.has_reports"
	Reason string
}

func (e *Issue) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// DependencyCycleError reports a cycle among computed inputs and depends_on references.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// LeafMismatchError reports disagreement between leaf_intents and the childless nodes.
type LeafMismatchError struct {
	// NotLeaf lists declared leaf intents that have children or do not exist.
	NotLeaf []string
	// Undeclared lists childless intents missing from leaf_intents.
	Undeclared []string
}

func (e *LeafMismatchError) Error() string {
	var parts []string
	if len(e.NotLeaf) > 0 {
		parts = append(parts, fmt.Sprintf("declared leaf intents that are not childless nodes: %q", e.NotLeaf))
	}
	if len(e.Undeclared) > 0 {
		parts = append(parts, fmt.Sprintf("childless intents missing from leaf_intents: %q", e.Undeclared))
	}
	return "leaf intent mismatch: " + strings.Join(parts, "; ")
}

// SchemaError aggregates every violation found while loading a schema.
// It is fatal: an engine must not be built from an invalid schema.
type SchemaError struct {
	Errors []error
}

func (e *SchemaError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid schema: " + e.Errors[0].Error()
	}
	msg := fmt.Sprintf("invalid schema: %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap exposes the individual violations to errors.Is and errors.As.
func (e *SchemaError) Unwrap() []error {
	return e.Errors
}

// Issues returns all violations if err is a SchemaError. Otherwise returns nil.
func Issues(err error) []error {
	if se, ok := err.(*SchemaError); ok {
		return se.Errors
	}
	return nil
}

type collector struct {
	errs []error
}

func (c *collector) addf(path, format string, args ...any) {
	c.errs = append(c.errs, &Issue{Path: path, Reason: fmt.Sprintf(format, args...)})
}

func (c *collector) add(err error) {
	c.errs = append(c.errs, err)
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return &SchemaError{Errors: c.errs}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
