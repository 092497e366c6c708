package intake_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake"
)

func TestRunner_NewPatient(t *testing.T) {
	eng, _ := newEngine(t)
	answers := strings.Join([]string{
		"Jane Roe",
		"abc", // rejected
		"13345",
		"1999-01-01",
	}, "\n") + "\n"

	var out bytes.Buffer
	r := intake.NewRunner()
	r.Input = strings.NewReader(answers)
	r.Output = &out
	r.Headless = true

	sess, err := r.Run(context.Background(), eng, eng.Start("s1"))
	require.NoError(t, err)

	// The input ran out while New Patient was being filled.
	assert.Equal(t, "New Patient", sess.Current())
	rs, ok := sess.Get("patient_id")
	require.True(t, ok)
	assert.Equal(t, "13345", rs.Value.Interface())
	assert.Contains(t, out.String(), "Insurance provider?")
}

func TestRunner_LookupOutage(t *testing.T) {
	eng, provider := newEngine(t)
	provider.setFail(errors.New("provider down"))
	answers := "Jane Roe\n13345\n2005-06-15\n"

	var out bytes.Buffer
	r := intake.NewRunner()
	r.Input = strings.NewReader(answers)
	r.Output = &out
	r.Headless = true

	sess, err := r.Run(context.Background(), eng, eng.Start("s1"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, provider.calls.Load(), "one retry")
	assert.Contains(t, out.String(), "Record lookup unavailable")
	require.NotNil(t, sess.Lookup)
	assert.True(t, sess.Lookup.Abandoned)
	assert.Equal(t, "New Patient", sess.Current())
	assert.Contains(t, out.String(), "Insurance provider?")
}

func TestRunner_Exit(t *testing.T) {
	eng, _ := newEngine(t)
	var out bytes.Buffer
	r := intake.NewRunner()
	r.Input = strings.NewReader("quit\n")
	r.Output = &out

	sess, err := r.Run(context.Background(), eng, eng.Start("s1"))
	require.NoError(t, err)
	assert.Empty(t, sess.Resolved)
	assert.Contains(t, out.String(), "Bye!")
}

func TestRunner_Complete(t *testing.T) {
	eng, _ := newEngine(t)
	answers := strings.Join([]string{
		"Jane Roe", "13345", "2005-06-15",
		"follow up", "no", "yes",
		"4", "yes", "yes", "Left",
	}, "\n") + "\n"

	var out bytes.Buffer
	r := &intake.Runner{
		Input:    strings.NewReader(answers),
		Output:   &out,
		Renderer: func(md string) (string, error) { return "RENDERED\n" + md, nil },
	}
	sess, err := r.Run(context.Background(), eng, eng.Start("s1"))
	require.NoError(t, err)
	assert.Equal(t, "Recheck", sess.Current())
	assert.Contains(t, out.String(), "-> Returning Patient")
	assert.Contains(t, out.String(), "RENDERED")
	assert.Contains(t, out.String(), "| Insurance | HealthPlus | api |")
}

func TestRunner_RequiresIO(t *testing.T) {
	eng, _ := newEngine(t)
	_, err := intake.NewRunner().Run(context.Background(), eng, eng.Start("s1"))
	assert.Error(t, err)
}
