package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of date slots.
const DateLayout = "2006-01-02"

// SlotType identifies the variant held by a Value.
type SlotType string

const (
	TypeString  SlotType = "string"
	TypeDate    SlotType = "date"
	TypeBoolean SlotType = "boolean"
	TypeInteger SlotType = "integer"
	TypeArray   SlotType = "array"
)

// Valid reports whether t is one of the supported slot types.
func (t SlotType) Valid() bool {
	switch t {
	case TypeString, TypeDate, TypeBoolean, TypeInteger, TypeArray:
		return true
	}
	return false
}

// Source is the origin of a slot value.
type Source string

const (
	SourceUser     Source = "user"
	SourceAPI      Source = "api"
	SourceComputed Source = "computed"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceUser, SourceAPI, SourceComputed:
		return true
	}
	return false
}

// Value is a typed slot value. The zero Value is unset.
type Value struct {
	kind  SlotType
	str   string
	date  time.Time
	flag  bool
	num   int64
	items []Value
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: TypeString, str: s} }

// DateValue wraps a calendar date. The time of day is dropped.
func DateValue(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: TypeDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: TypeBoolean, flag: b} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: TypeInteger, num: i} }

// ArrayValue wraps a sequence of values.
func ArrayValue(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: TypeArray, items: cp}
}

// Type returns the variant tag, or "" for the zero Value.
func (v Value) Type() SlotType { return v.kind }

// IsZero reports whether the value is unset.
func (v Value) IsZero() bool { return v.kind == "" }

func (v Value) Str() (string, bool) { return v.str, v.kind == TypeString }

func (v Value) Date() (time.Time, bool) { return v.date, v.kind == TypeDate }

func (v Value) Bool() (bool, bool) { return v.flag, v.kind == TypeBoolean }

func (v Value) Int() (int64, bool) { return v.num, v.kind == TypeInteger }

// Items returns a copy of the array elements.
func (v Value) Items() ([]Value, bool) {
	if v.kind != TypeArray {
		return nil, false
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp, true
}

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case TypeString:
		return v.str == o.str
	case TypeDate:
		return v.date.Equal(o.date)
	case TypeBoolean:
		return v.flag == o.flag
	case TypeInteger:
		return v.num == o.num
	case TypeArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
	}
	return true
}

// Interface returns the JSON-friendly native form (dates as YYYY-MM-DD).
func (v Value) Interface() any {
	switch v.kind {
	case TypeString:
		return v.str
	case TypeDate:
		return v.date.Format(DateLayout)
	case TypeBoolean:
		return v.flag
	case TypeInteger:
		return v.num
	case TypeArray:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case TypeString:
		return v.str
	case TypeDate:
		return v.date.Format(DateLayout)
	case TypeBoolean:
		return strconv.FormatBool(v.flag)
	case TypeInteger:
		return strconv.FormatInt(v.num, 10)
	case TypeArray:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.String()
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// Matches compares the value with a literal taken from a schema document
// (depends_on requirements, branch conditions). Literals decode as bool,
// int, float64 or string depending on the source format.
func (v Value) Matches(literal any) bool {
	switch v.kind {
	case TypeBoolean:
		switch l := literal.(type) {
		case bool:
			return v.flag == l
		case string:
			b, err := strconv.ParseBool(l)
			return err == nil && b == v.flag
		}
	case TypeInteger:
		n, ok := literalInt(literal)
		return ok && n == v.num
	case TypeString:
		s, ok := literal.(string)
		return ok && s == v.str
	case TypeDate:
		s, ok := literal.(string)
		if !ok {
			return false
		}
		d, err := time.Parse(DateLayout, s)
		return err == nil && d.Equal(v.date)
	}
	return false
}

func literalInt(literal any) (int64, bool) {
	switch n := literal.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

type valueJSON struct {
	Type  SlotType        `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value with its type tag so stores can round-trip it.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == "" {
		return []byte("null"), nil
	}
	var payload any = v.Interface()
	if v.kind == TypeArray {
		payload = v.items
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.kind, Value: raw})
}

// UnmarshalJSON decodes a value written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var env valueJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	decoded, err := decodeTyped(env.Type, env.Value)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func decodeTyped(t SlotType, raw json.RawMessage) (Value, error) {
	switch t {
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case TypeDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			return Value{}, err
		}
		return DateValue(d), nil
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case TypeInteger:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return IntValue(n), nil
	case TypeArray:
		var items []Value
		if err := json.Unmarshal(raw, &items); err != nil {
			return Value{}, err
		}
		return ArrayValue(items...), nil
	}
	return Value{}, fmt.Errorf("unknown value type %q", t)
}
