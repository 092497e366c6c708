package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")

	out := buf.String()
	assert.Contains(t, out, "|___|_|")
	assert.Contains(t, out, "v1.2.3")
}

func TestNewRenderer(t *testing.T) {
	render := NewRenderer()

	out, err := render("| Slot | Value |\n|---|---|\n| insurance | HealthPlus |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "HealthPlus")
}
