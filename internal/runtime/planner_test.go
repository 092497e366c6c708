package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake/internal/runtime"
	"github.com/aretw0/intake/pkg/demo"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

const root = "Patient with Unknown Status"

type fixture struct {
	t        *testing.T
	ctx      context.Context
	resolver *runtime.Resolver
	planner  *runtime.Planner
	sess     *domain.Session
}

func newFixture(t *testing.T, m *schema.Model, today string, opts ...runtime.Option) *fixture {
	t.Helper()
	now, err := time.Parse(domain.DateLayout, today)
	require.NoError(t, err)
	opts = append([]runtime.Option{runtime.WithClock(func() time.Time { return now.Add(10 * time.Hour) })}, opts...)
	r := runtime.NewResolver(m, opts...)
	return &fixture{
		t:        t,
		ctx:      context.Background(),
		resolver: r,
		planner:  runtime.NewPlanner(r),
		sess:     domain.NewSession("s1", m.RootIntent),
	}
}

func (f *fixture) next() domain.Action {
	f.t.Helper()
	a, err := f.planner.NextAction(f.ctx, f.sess)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) answer(slot string, input any) domain.Resolution {
	f.t.Helper()
	res, err := f.resolver.Resolve(f.ctx, f.sess, slot, input)
	require.NoError(f.t, err, "slot %s", slot)
	return res
}

func (f *fixture) lookup(rec domain.Record, lookupErr error) (domain.LookupResult, error) {
	f.t.Helper()
	_, err := f.resolver.BeginLookup(f.sess)
	require.NoError(f.t, err)
	return f.resolver.CompleteLookup(f.ctx, f.sess, rec, lookupErr)
}

func (f *fixture) value(slot string) any {
	f.t.Helper()
	rs, ok := f.sess.Get(slot)
	require.True(f.t, ok, "slot %s is not resolved", slot)
	return rs.Value.Interface()
}

func patient(t *testing.T, dob string) domain.Record {
	t.Helper()
	patients, err := demo.Patients()
	require.NoError(t, err)
	rec, ok := patients[dob]
	require.True(t, ok)
	return rec
}

// identify answers the root intent and stops at the lookup.
func (f *fixture) identify(dob string) {
	f.t.Helper()
	assert.Equal(f.t, "patient_name", f.next().Slot)
	f.answer("patient_name", "Jane Roe")
	assert.Equal(f.t, "patient_id", f.next().Slot)
	f.answer("patient_id", "13345")
	assert.Equal(f.t, "patient_dob", f.next().Slot)
	f.answer("patient_dob", dob)

	a := f.next()
	require.Equal(f.t, domain.ActionLookup, a.Kind)
	assert.Equal(f.t, "patient_dob", a.Slot)
}

func TestPlanner_ReturningPatient(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("2005-06-15")

	res, err := f.lookup(patient(t, "2005-06-15"), nil)
	require.NoError(t, err)
	assert.True(t, res.Found)

	a := f.next()
	assert.Equal(t, domain.Action{Kind: domain.ActionDescend, Intent: root, Child: "Returning Patient"}, a)

	// One batch mapped every api field of the record.
	assert.Equal(t, "HealthPlus", f.value("insurance"))
	assert.Equal(t, "male", f.value("gender"))
	assert.Equal(t, "2025-03-15", f.value("date_of_last_visit"))
	rs, _ := f.sess.Get("insurance")
	assert.Equal(t, domain.SourceAPI, rs.Source)
	assert.Equal(t, "Returning Patient", rs.Intent)

	// The user answer for the key slot is kept.
	dob, _ := f.sess.Get("patient_dob")
	assert.Equal(t, domain.SourceUser, dob.Source)

	a = f.next()
	assert.Equal(t, domain.ActionAskSlot, a.Kind)
	assert.Equal(t, "reason_for_visit", a.Slot)
	assert.False(t, a.Fallback)

	f.answer("reason_for_visit", "follow up")
	a = f.next()
	assert.Equal(t, "has_reports", a.Slot)
	assert.Equal(t, []any{true, false}, a.AllowedValues)
	f.answer("has_reports", false)
	f.answer("recheck_visit_flag", true)

	a = f.next()
	assert.Equal(t, domain.Action{Kind: domain.ActionDescend, Intent: "Returning Patient", Child: "Recheck"}, a)
	assert.Equal(t, []string{root, "Returning Patient", "Recheck"}, f.sess.ActivePath)

	a = f.next()
	assert.Equal(t, "pain_intensity", a.Slot)
	assert.Equal(t, domain.TypeInteger, a.Type)

	_, err = f.resolver.Resolve(f.ctx, f.sess, "pain_intensity", 11)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Pain intensity must be 1–10.", verr.Message)

	f.answer("pain_intensity", 4)
	f.answer("same_body_part", "yes")
	f.answer("no_new_injury", true)
	f.answer("side_of_body", "Left")

	a = f.next()
	assert.Equal(t, domain.Action{Kind: domain.ActionComplete, Intent: "Recheck"}, a)
	assert.True(t, a.IsTerminal())

	assert.Equal(t, true, f.value("last_visit_within_1_year"))
	assert.Equal(t, true, f.value("last_visit_within_6_months"))
	rs, _ = f.sess.Get("last_visit_within_1_year")
	assert.Equal(t, domain.SourceComputed, rs.Source)
}

func TestPlanner_NewPatient(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("1999-01-01")

	res, err := f.lookup(nil, domain.ErrRecordNotFound)
	require.NoError(t, err, "not found is an outcome")
	assert.False(t, res.Found)
	require.NotNil(t, f.sess.Lookup)
	assert.False(t, f.sess.Lookup.Found)

	a := f.next()
	assert.Equal(t, "New Patient", a.Child)

	a = f.next()
	assert.Equal(t, domain.ActionAskSlot, a.Kind)
	assert.Equal(t, "insurance", a.Slot)
	assert.Equal(t, "Insurance provider", a.Description)

	_, err = f.resolver.Resolve(f.ctx, f.sess, "symptom_duration", "forever")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Duration must be like '2 weeks', '1 month', etc.", verr.Message)
}

func TestPlanner_BranchPriority(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("2000-01-10")
	_, err := f.lookup(patient(t, "2000-01-10"), nil)
	require.NoError(t, err)
	f.next()

	f.answer("reason_for_visit", "results")
	f.answer("has_reports", true)
	f.answer("recheck_visit_flag", true)

	a := f.next()
	assert.Equal(t, "Review Diagnostics", a.Child, "the first matching branch wins")
}

func TestPlanner_DefaultBranch(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("2000-01-10")
	_, err := f.lookup(patient(t, "2000-01-10"), nil)
	require.NoError(t, err)
	f.next()

	f.answer("reason_for_visit", "shot")
	f.answer("has_reports", false)
	f.answer("recheck_visit_flag", false)

	assert.Equal(t, "Injections", f.next().Child)
	assert.Equal(t, domain.ActionComplete, f.next().Kind)
}

func TestPlanner_DependencySkip(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("1990-11-28")
	_, err := f.lookup(patient(t, "1990-11-28"), nil)
	require.NoError(t, err)
	f.next()
	f.answer("reason_for_visit", "results")
	f.answer("has_reports", true)
	f.answer("recheck_visit_flag", false)
	require.Equal(t, "Review Diagnostics", f.next().Child)

	_, err = f.resolver.Resolve(f.ctx, f.sess, "outside_facility_name", "City Imaging")
	assert.ErrorIs(t, err, domain.ErrDependencyPending)

	f.answer("test_type", []any{"MRI"})
	f.answer("test_date", "2025-05-01")
	f.answer("report_uploaded", true)
	f.answer("diagnostics_done_at_SPOC", true)

	rel, err := f.resolver.Relevance(f.sess, "outside_facility_name")
	require.NoError(t, err)
	assert.Equal(t, runtime.Irrelevant, rel)

	_, err = f.resolver.Resolve(f.ctx, f.sess, "outside_facility_name", "City Imaging")
	assert.ErrorIs(t, err, domain.ErrSlotIrrelevant)

	a := f.next()
	assert.Equal(t, "side_of_body", a.Slot, "outside_facility_name is skipped")
}

func TestPlanner_DependencyAskedWhenMatching(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("1990-11-28")
	_, err := f.lookup(patient(t, "1990-11-28"), nil)
	require.NoError(t, err)
	f.next()
	f.answer("reason_for_visit", "results")
	f.answer("has_reports", true)
	f.answer("recheck_visit_flag", false)
	f.next()

	f.answer("test_type", "MRI")
	f.answer("test_date", "2025-05-01")
	f.answer("report_uploaded", true)
	f.answer("diagnostics_done_at_SPOC", false)

	assert.Equal(t, "outside_facility_name", f.next().Slot)
}

func TestPlanner_FallbackToUser(t *testing.T) {
	rec := patient(t, "2005-06-15")
	partial := domain.Record{}
	for k, v := range rec {
		if k != "gender" {
			partial[k] = v
		}
	}

	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("2005-06-15")
	_, err := f.lookup(partial, nil)
	require.NoError(t, err)
	f.next()

	a := f.next()
	assert.Equal(t, domain.ActionAskSlot, a.Kind)
	assert.Equal(t, "gender", a.Slot)
	assert.True(t, a.Fallback)

	res := f.answer("gender", "female")
	assert.Equal(t, domain.SourceUser, res.Source)
	assert.Equal(t, "reason_for_visit", f.next().Slot)
}

func TestPlanner_ComputedBoundary(t *testing.T) {
	tests := []struct {
		today string
		want  bool
	}{
		{"2026-03-15", true},  // 365 days after the last visit
		{"2026-03-16", false}, // 366 days
	}
	for _, tt := range tests {
		t.Run(tt.today, func(t *testing.T) {
			f := newFixture(t, demo.MustSchema(), tt.today)
			f.identify("2005-06-15")
			_, err := f.lookup(patient(t, "2005-06-15"), nil)
			require.NoError(t, err)
			f.next()
			f.answer("reason_for_visit", "recheck")
			f.answer("has_reports", false)
			f.answer("recheck_visit_flag", true)
			f.next()

			res, err := f.resolver.Resolve(f.ctx, f.sess, "last_visit_within_1_year", nil)
			require.NoError(t, err)
			b, _ := res.Value.Bool()
			assert.Equal(t, tt.want, b)

			res, err = f.resolver.Resolve(f.ctx, f.sess, "last_visit_within_6_months", nil)
			require.NoError(t, err)
			b, _ = res.Value.Bool()
			assert.False(t, b)
		})
	}
}

func TestPlanner_DynamicSlotsDisabled(t *testing.T) {
	doc := `
config:
  dynamic_slot_handling: false
root_intent: A
leaf_intents: [A]
intents:
  A:
    slots:
      flag: {source: user, type: boolean}
      negated:
        source: computed
        type: boolean
        compute: {rule: not, input: flag}
`
	m, err := schema.LoadBytes([]byte(doc))
	require.NoError(t, err)

	f := newFixture(t, m, "2025-06-01")
	f.answer("flag", true)
	assert.Equal(t, domain.ActionComplete, f.next().Kind)
	assert.False(t, f.sess.IsResolved("negated"))

	_, err = f.resolver.Resolve(f.ctx, f.sess, "negated", nil)
	assert.ErrorIs(t, err, domain.ErrSlotIrrelevant)
}

func TestPlanner_PendingDependencyPlannedFirst(t *testing.T) {
	doc := `
root_intent: A
leaf_intents: [A]
intents:
  A:
    slots:
      details:
        source: user
        type: string
        depends_on: {injured: true}
      injured: {source: user, type: boolean}
`
	m, err := schema.LoadBytes([]byte(doc))
	require.NoError(t, err)

	f := newFixture(t, m, "2025-06-01")
	assert.Equal(t, "injured", f.next().Slot)
	f.answer("injured", true)
	assert.Equal(t, "details", f.next().Slot)
}

func TestPlanner_SkippedDependencyCascades(t *testing.T) {
	doc := `
root_intent: A
leaf_intents: [A]
intents:
  A:
    slots:
      injured: {source: user, type: boolean}
      surgery:
        source: user
        type: boolean
        depends_on: {injured: true}
      surgeon:
        source: user
        type: string
        depends_on: {surgery: true}
`
	m, err := schema.LoadBytes([]byte(doc))
	require.NoError(t, err)

	f := newFixture(t, m, "2025-06-01")
	f.answer("injured", false)

	rel, err := f.resolver.Relevance(f.sess, "surgeon")
	require.NoError(t, err)
	assert.Equal(t, runtime.Irrelevant, rel)
	assert.Equal(t, domain.ActionComplete, f.next().Kind)
}

func TestPlanner_ComputedWaitsForInput(t *testing.T) {
	doc := `
root_intent: A
leaf_intents: [A]
intents:
  A:
    slots:
      recent:
        source: computed
        type: boolean
        compute: {rule: within, input: visited, days: 30}
      visited: {source: user, type: date}
`
	m, err := schema.LoadBytes([]byte(doc))
	require.NoError(t, err)

	f := newFixture(t, m, "2025-06-01")
	res, err := f.resolver.Resolve(f.ctx, f.sess, "recent", nil)
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	assert.Equal(t, "visited", f.next().Slot, "the input of a computed slot is asked first")
	f.answer("visited", "2025-05-20")
	assert.Equal(t, domain.ActionComplete, f.next().Kind)
	assert.Equal(t, true, f.value("recent"))
}

func TestPlanner_UnknownIntent(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.sess.ActivePath = []string{"Nowhere"}
	_, err := f.planner.NextAction(f.ctx, f.sess)
	assert.True(t, errors.Is(err, domain.ErrUnknownIntent))
}

func TestPlanner_Snapshot(t *testing.T) {
	f := newFixture(t, demo.MustSchema(), "2025-06-01")
	f.identify("2005-06-15")
	_, err := f.lookup(patient(t, "2005-06-15"), nil)
	require.NoError(t, err)

	before := f.sess.Clone()
	st := f.planner.Snapshot(f.ctx, f.sess)

	assert.Equal(t, before, f.sess, "snapshot leaves the session untouched")
	assert.Equal(t, root, st.Intent)
	assert.True(t, st.LookupDone)
	assert.True(t, st.RecordFound)
	require.NotNil(t, st.Next)
	assert.Equal(t, domain.ActionDescend, st.Next.Kind)
	assert.Equal(t, "2005-06-15", st.Slots["patient_dob"].Value)
	assert.False(t, st.Complete)
}
