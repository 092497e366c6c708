package demo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake/pkg/demo"
	"github.com/aretw0/intake/pkg/domain"
)

func TestSchema_ComputedDescriptions(t *testing.T) {
	m := demo.MustSchema()
	recheck, ok := m.Node("Recheck")
	require.True(t, ok)

	tests := map[string]string{
		"last_visit_within_1_year":   "date_of_last_visit ≥ (today − 1 year)",
		"last_visit_within_6_months": "for work comp: date_of_last_visit ≥ (today − 6 months)",
	}
	for name, want := range tests {
		def, ok := recheck.Slot(name)
		require.True(t, ok, name)
		assert.Equal(t, domain.SourceComputed, def.Source, name)
		assert.Equal(t, want, def.Description, name)
		assert.NotNil(t, def.Compute, name)
	}
}

func TestPatients(t *testing.T) {
	patients, err := demo.Patients()
	require.NoError(t, err)
	assert.Len(t, patients, 3)
}
