package schema

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// Rules is the validation variant attached to a slot. The concrete type always
// matches the slot type: StringRules, DateRules, BooleanRules, IntegerRules or ArrayRules.
type Rules interface {
	SlotType() domain.SlotType
}

// StringRules validates string slots.
type StringRules struct {
	Pattern       *regexp.Regexp
	MinLength     *int
	MaxLength     *int
	AllowedValues []string
}

func (StringRules) SlotType() domain.SlotType { return domain.TypeString }

// DateRules validates date slots. Pattern applies to the textual form.
type DateRules struct {
	Pattern *regexp.Regexp
	Min     *time.Time
	Max     *time.Time
}

func (DateRules) SlotType() domain.SlotType { return domain.TypeDate }

// BooleanRules validates boolean slots.
type BooleanRules struct {
	AllowedValues []bool
}

func (BooleanRules) SlotType() domain.SlotType { return domain.TypeBoolean }

// IntegerRules validates integer slots.
type IntegerRules struct {
	Min           *int64
	Max           *int64
	AllowedValues []int64
}

func (IntegerRules) SlotType() domain.SlotType { return domain.TypeInteger }

// ArrayRules validates array slots. Elements are coerced to ItemType.
type ArrayRules struct {
	ItemType      domain.SlotType
	MinLength     *int
	MaxLength     *int
	AllowedValues []string
}

func (ArrayRules) SlotType() domain.SlotType { return domain.TypeArray }

// rawValidation is the "validation" block of a slot as written in a document.
type rawValidation struct {
	Pattern       string `mapstructure:"pattern"`
	Min           any    `mapstructure:"min"`
	Max           any    `mapstructure:"max"`
	MinLength     *int   `mapstructure:"min_length"`
	MaxLength     *int   `mapstructure:"max_length"`
	AllowedValues []any  `mapstructure:"allowed_values"`
	ItemType      string `mapstructure:"item_type"`
	ErrorMessage  string `mapstructure:"error_message"`
}

// buildRules turns a validation block into the rules variant for t.
// Constraints that do not apply to t are reported as problems.
func buildRules(t domain.SlotType, rv rawValidation) (Rules, string, []string) {
	var problems []string
	reject := func(set bool, name string) {
		if set {
			problems = append(problems, fmt.Sprintf("%s does not apply to %s slots", name, t))
		}
	}

	pattern, err := compilePattern(rv.Pattern)
	if err != nil {
		problems = append(problems, fmt.Sprintf("pattern does not compile: %v", err))
	}
	if rv.MinLength != nil && *rv.MinLength < 0 {
		problems = append(problems, "min_length must not be negative")
	}
	if rv.MinLength != nil && rv.MaxLength != nil && *rv.MinLength > *rv.MaxLength {
		problems = append(problems, fmt.Sprintf("min_length %d exceeds max_length %d", *rv.MinLength, *rv.MaxLength))
	}
	if t != domain.TypeArray {
		reject(rv.ItemType != "", "item_type")
	}

	var rules Rules
	switch t {
	case domain.TypeString:
		reject(rv.Min != nil || rv.Max != nil, "min/max")
		allowed, bad := stringsOf(rv.AllowedValues)
		if bad {
			problems = append(problems, "allowed_values must be strings")
		}
		r := StringRules{Pattern: pattern, MinLength: rv.MinLength, MaxLength: rv.MaxLength, AllowedValues: allowed}
		if r.Pattern != nil || r.MinLength != nil || r.MaxLength != nil || len(r.AllowedValues) > 0 {
			rules = r
		}

	case domain.TypeDate:
		reject(rv.MinLength != nil || rv.MaxLength != nil, "min_length/max_length")
		reject(len(rv.AllowedValues) > 0, "allowed_values")
		r := DateRules{Pattern: pattern}
		var ok bool
		if r.Min, ok = dateBound(rv.Min); !ok {
			problems = append(problems, fmt.Sprintf("min %v is not a %s date", rv.Min, domain.DateLayout))
		}
		if r.Max, ok = dateBound(rv.Max); !ok {
			problems = append(problems, fmt.Sprintf("max %v is not a %s date", rv.Max, domain.DateLayout))
		}
		if r.Min != nil && r.Max != nil && r.Min.After(*r.Max) {
			problems = append(problems, "min is after max")
		}
		if r.Pattern != nil || r.Min != nil || r.Max != nil {
			rules = r
		}

	case domain.TypeBoolean:
		reject(rv.Pattern != "", "pattern")
		reject(rv.Min != nil || rv.Max != nil, "min/max")
		reject(rv.MinLength != nil || rv.MaxLength != nil, "min_length/max_length")
		var r BooleanRules
		for _, v := range rv.AllowedValues {
			b, ok := v.(bool)
			if !ok {
				problems = append(problems, "allowed_values must be booleans")
				break
			}
			r.AllowedValues = append(r.AllowedValues, b)
		}
		if len(r.AllowedValues) > 0 {
			rules = r
		}

	case domain.TypeInteger:
		reject(rv.Pattern != "", "pattern")
		reject(rv.MinLength != nil || rv.MaxLength != nil, "min_length/max_length")
		var r IntegerRules
		var ok bool
		if r.Min, ok = intBound(rv.Min); !ok {
			problems = append(problems, fmt.Sprintf("min %v is not an integer", rv.Min))
		}
		if r.Max, ok = intBound(rv.Max); !ok {
			problems = append(problems, fmt.Sprintf("max %v is not an integer", rv.Max))
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			problems = append(problems, fmt.Sprintf("min %d exceeds max %d", *r.Min, *r.Max))
		}
		for _, v := range rv.AllowedValues {
			n, ok := toInt64(v)
			if !ok {
				problems = append(problems, "allowed_values must be integers")
				break
			}
			r.AllowedValues = append(r.AllowedValues, n)
		}
		if r.Min != nil || r.Max != nil || len(r.AllowedValues) > 0 {
			rules = r
		}

	case domain.TypeArray:
		reject(rv.Pattern != "", "pattern")
		reject(rv.Min != nil || rv.Max != nil, "min/max")
		r := ArrayRules{ItemType: domain.TypeString, MinLength: rv.MinLength, MaxLength: rv.MaxLength}
		if rv.ItemType != "" {
			r.ItemType = domain.SlotType(rv.ItemType)
			if !r.ItemType.Valid() || r.ItemType == domain.TypeArray {
				problems = append(problems, fmt.Sprintf("item_type %q is not a scalar type", rv.ItemType))
			}
		}
		allowed, bad := stringsOf(rv.AllowedValues)
		if bad {
			problems = append(problems, "allowed_values must be strings")
		}
		r.AllowedValues = allowed
		rules = r
	}
	return rules, rv.ErrorMessage, problems
}

func stringsOf(vs []any) ([]string, bool) {
	var out []string
	for _, v := range vs {
		s, ok := v.(string)
		if !ok {
			return out, true
		}
		out = append(out, s)
	}
	return out, false
}

func dateBound(v any) (*time.Time, bool) {
	if v == nil {
		return nil, true
	}
	switch t := v.(type) {
	case time.Time:
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d, true
	case string:
		d, err := time.Parse(domain.DateLayout, t)
		if err != nil {
			return nil, false
		}
		return &d, true
	}
	return nil, false
}

func intBound(v any) (*int64, bool) {
	if v == nil {
		return nil, true
	}
	n, ok := toInt64(v)
	if !ok {
		return nil, false
	}
	return &n, true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
