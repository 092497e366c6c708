package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/intake/internal/presentation/graph"
	"github.com/aretw0/intake/pkg/demo"
)

func TestGenerateMermaid(t *testing.T) {
	m := demo.MustSchema()

	got := graph.GenerateMermaid(m, nil)

	for _, want := range []string{
		"graph TD\n",
		`Patient_with_Unknown_Status(("Patient with Unknown Status <br/>`,
		`Returning_Patient[["Returning Patient <br/>`,
		`Recheck(["Recheck <br/>`,
		`Patient_with_Unknown_Status -- "record found" --> Returning_Patient`,
		`Patient_with_Unknown_Status -- "otherwise" --> New_Patient`,
		`-- "has_reports = true" --> Review_Diagnostics`,
		`-- "recheck_visit_flag = true" --> Recheck`,
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "classDef", "no overlay requested")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	m := demo.MustSchema()

	got := graph.GenerateMermaid(m, &graph.GraphOverlay{
		ActivePath:    []string{"Patient with Unknown Status", "Returning Patient", "Ghost"},
		CurrentIntent: "Returning Patient",
	})

	assert.Contains(t, got, "class Patient_with_Unknown_Status visited;")
	assert.Contains(t, got, "class Returning_Patient current;")
	assert.NotContains(t, got, "class Returning_Patient visited;")
	assert.NotContains(t, got, "Ghost", "unknown intents are not styled")
	assert.Equal(t, 1, strings.Count(got, "classDef current"))
}
