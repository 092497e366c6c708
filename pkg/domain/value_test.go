package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Matches(t *testing.T) {
	dob := DateValue(time.Date(2005, 6, 15, 13, 30, 0, 0, time.FixedZone("X", 3600)))

	tests := []struct {
		name    string
		value   Value
		literal any
		want    bool
	}{
		{"bool", BoolValue(true), true, true},
		{"bool from string", BoolValue(false), "false", true},
		{"bool mismatch", BoolValue(true), false, false},
		{"int", IntValue(4), 4, true},
		{"int from float", IntValue(4), 4.0, true},
		{"int from fraction", IntValue(4), 4.5, false},
		{"int from json number", IntValue(7), json.Number("7"), true},
		{"string", StringValue("Left"), "Left", true},
		{"string is case sensitive", StringValue("Left"), "left", false},
		{"string against int", StringValue("4"), 4, false},
		{"date", dob, "2005-06-15", true},
		{"date bad literal", dob, "15/06/2005", false},
		{"array never matches", ArrayValue(StringValue("a")), "a", false},
		{"zero never matches", Value{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Matches(tt.literal))
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	d := DateValue(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))
	got, ok := d.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got, "time of day dropped")
	assert.Equal(t, "2024-02-29", d.String())

	_, ok = d.Str()
	assert.False(t, ok)

	arr := ArrayValue(StringValue("knee"), StringValue("hip"))
	items, ok := arr.Items()
	require.True(t, ok)
	items[0] = StringValue("mutated")
	assert.Equal(t, "knee, hip", arr.String(), "Items returns a copy")
	assert.Equal(t, []any{"knee", "hip"}, arr.Interface())

	assert.True(t, Value{}.IsZero())
	assert.Nil(t, Value{}.Interface())
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, IntValue(1).Equal(IntValue(1)))
	assert.False(t, IntValue(1).Equal(StringValue("1")))
	assert.True(t, ArrayValue(BoolValue(true)).Equal(ArrayValue(BoolValue(true))))
	assert.False(t, ArrayValue(BoolValue(true)).Equal(ArrayValue(BoolValue(true), BoolValue(false))))
}

func TestSession_JSONRoundTrip(t *testing.T) {
	sess := NewSession("s1", "Root")
	sess.ActivePath = append(sess.ActivePath, "Child")
	sess.Resolved["dob"] = ResolvedSlot{Value: DateValue(time.Date(2005, 6, 15, 0, 0, 0, 0, time.UTC)), Source: SourceUser, Turn: 1, Intent: "Root"}
	sess.Resolved["pain"] = ResolvedSlot{Value: IntValue(4), Source: SourceUser, Turn: 2, Intent: "Child"}
	sess.Resolved["parts"] = ResolvedSlot{Value: ArrayValue(StringValue("knee"), StringValue("hip")), Source: SourceAPI, Turn: 2, Intent: "Child"}
	sess.Resolved["flag"] = ResolvedSlot{Value: BoolValue(false), Source: SourceComputed, Turn: 2, Intent: "Child"}
	sess.Lookup = &LookupOutcome{KeySlot: "dob", Found: true, Record: Record{"insurance": "HealthPlus"}, Turn: 2}
	sess.Turn = 2

	data, err := json.Marshal(sess)
	require.NoError(t, err)

	var back Session
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, sess.ActivePath, back.ActivePath)
	assert.Equal(t, sess.Turn, back.Turn)
	assert.Equal(t, sess.Lookup, back.Lookup)
	require.Len(t, back.Resolved, len(sess.Resolved))
	for k, want := range sess.Resolved {
		got := back.Resolved[k]
		assert.True(t, want.Value.Equal(got.Value), "slot %s", k)
		assert.Equal(t, want.Source, got.Source)
		assert.Equal(t, want.Intent, got.Intent)
	}
}

func TestValue_UnmarshalUnknownType(t *testing.T) {
	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"type":"float","value":1.5}`), &v))
}

func TestSession_Clone(t *testing.T) {
	sess := NewSession("s1", "Root")
	sess.Resolved["a"] = ResolvedSlot{Value: StringValue("x")}
	sess.Lookup = &LookupOutcome{Record: Record{"k": "v"}}

	cp := sess.Clone()
	cp.ActivePath = append(cp.ActivePath, "Child")
	cp.Resolved["b"] = ResolvedSlot{Value: StringValue("y")}
	cp.Lookup.Record["k"] = "changed"

	assert.Equal(t, "Root", sess.Current())
	assert.Equal(t, "Child", cp.Current())
	assert.False(t, sess.IsResolved("b"))
	assert.Equal(t, "v", sess.Lookup.Record["k"])
	assert.Nil(t, (*Session)(nil).Clone())
}
