package runtime

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// Validate coerces raw input to the slot type and applies the slot rules.
// Checks run in a fixed order: pattern, bounds, length, allowed values, then
// element type for arrays. A declared error_message replaces the generic one.
func Validate(def *schema.SlotDef, raw any) (domain.Value, error) {
	v, msg := validate(def, raw)
	if msg == "" {
		return v, nil
	}
	if def.ErrorMessage != "" {
		msg = def.ErrorMessage
	}
	return domain.Value{}, &domain.ValidationError{Slot: def.Name, Message: msg, Value: raw}
}

func validate(def *schema.SlotDef, raw any) (domain.Value, string) {
	if raw == nil {
		return domain.Value{}, "a value is required"
	}
	switch def.Type {
	case domain.TypeString:
		r, _ := def.Rules.(schema.StringRules)
		return validateString(r, raw)
	case domain.TypeDate:
		r, _ := def.Rules.(schema.DateRules)
		return validateDate(r, raw)
	case domain.TypeBoolean:
		r, _ := def.Rules.(schema.BooleanRules)
		return validateBool(r, raw)
	case domain.TypeInteger:
		r, _ := def.Rules.(schema.IntegerRules)
		return validateInt(r, raw)
	case domain.TypeArray:
		r, ok := def.Rules.(schema.ArrayRules)
		if !ok {
			r.ItemType = domain.TypeString
		}
		return validateArray(r, raw)
	}
	return domain.Value{}, fmt.Sprintf("unsupported slot type %q", def.Type)
}

func validateString(r schema.StringRules, raw any) (domain.Value, string) {
	s, ok := raw.(string)
	if !ok {
		return domain.Value{}, "must be text"
	}
	s = strings.TrimSpace(s)
	if r.Pattern != nil && !r.Pattern.MatchString(s) {
		return domain.Value{}, fmt.Sprintf("must match %s", r.Pattern)
	}
	if msg := checkLength(len([]rune(s)), r.MinLength, r.MaxLength, "characters"); msg != "" {
		return domain.Value{}, msg
	}
	if len(r.AllowedValues) > 0 && !contains(r.AllowedValues, s) {
		return domain.Value{}, fmt.Sprintf("must be one of %s", strings.Join(r.AllowedValues, ", "))
	}
	return domain.StringValue(s), ""
}

func validateDate(r schema.DateRules, raw any) (domain.Value, string) {
	var d time.Time
	switch t := raw.(type) {
	case time.Time:
		d = t
		if r.Pattern != nil && !r.Pattern.MatchString(t.Format(domain.DateLayout)) {
			return domain.Value{}, fmt.Sprintf("must match %s", r.Pattern)
		}
	case string:
		s := strings.TrimSpace(t)
		if r.Pattern != nil && !r.Pattern.MatchString(s) {
			return domain.Value{}, fmt.Sprintf("must match %s", r.Pattern)
		}
		parsed, err := time.Parse(domain.DateLayout, s)
		if err != nil {
			return domain.Value{}, "must be a date in YYYY-MM-DD format"
		}
		d = parsed
	default:
		return domain.Value{}, "must be a date in YYYY-MM-DD format"
	}
	v := domain.DateValue(d)
	day, _ := v.Date()
	if r.Min != nil && day.Before(*r.Min) {
		return domain.Value{}, fmt.Sprintf("must not be before %s", r.Min.Format(domain.DateLayout))
	}
	if r.Max != nil && day.After(*r.Max) {
		return domain.Value{}, fmt.Sprintf("must not be after %s", r.Max.Format(domain.DateLayout))
	}
	return v, ""
}

func validateBool(r schema.BooleanRules, raw any) (domain.Value, string) {
	b, ok := coerceBool(raw)
	if !ok {
		return domain.Value{}, "must be yes or no"
	}
	if len(r.AllowedValues) > 0 {
		allowed := false
		for _, a := range r.AllowedValues {
			allowed = allowed || a == b
		}
		if !allowed {
			return domain.Value{}, fmt.Sprintf("must be one of %v", r.AllowedValues)
		}
	}
	return domain.BoolValue(b), ""
}

func validateInt(r schema.IntegerRules, raw any) (domain.Value, string) {
	n, ok := coerceInt(raw)
	if !ok {
		return domain.Value{}, "must be a whole number"
	}
	if r.Min != nil && n < *r.Min {
		return domain.Value{}, fmt.Sprintf("must be at least %d", *r.Min)
	}
	if r.Max != nil && n > *r.Max {
		return domain.Value{}, fmt.Sprintf("must be at most %d", *r.Max)
	}
	if len(r.AllowedValues) > 0 {
		allowed := false
		for _, a := range r.AllowedValues {
			allowed = allowed || a == n
		}
		if !allowed {
			return domain.Value{}, fmt.Sprintf("must be one of %v", r.AllowedValues)
		}
	}
	return domain.IntValue(n), ""
}

func validateArray(r schema.ArrayRules, raw any) (domain.Value, string) {
	var elems []any
	switch t := raw.(type) {
	case []any:
		elems = t
	case []string:
		for _, s := range t {
			elems = append(elems, s)
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				elems = append(elems, part)
			}
		}
	default:
		return domain.Value{}, "must be a list"
	}

	if msg := checkLength(len(elems), r.MinLength, r.MaxLength, "items"); msg != "" {
		return domain.Value{}, msg
	}

	items := make([]domain.Value, 0, len(elems))
	for i, e := range elems {
		if len(r.AllowedValues) > 0 {
			s, ok := e.(string)
			if !ok || !contains(r.AllowedValues, strings.TrimSpace(s)) {
				return domain.Value{}, fmt.Sprintf("item %d must be one of %s", i+1, strings.Join(r.AllowedValues, ", "))
			}
		}
		item, msg := validate(&schema.SlotDef{Type: r.ItemType}, e)
		if msg != "" {
			return domain.Value{}, fmt.Sprintf("item %d %s", i+1, msg)
		}
		items = append(items, item)
	}
	return domain.ArrayValue(items...), ""
}

func checkLength(n int, min, max *int, unit string) string {
	if min != nil && n < *min {
		return fmt.Sprintf("must have at least %d %s", *min, unit)
	}
	if max != nil && n > *max {
		return fmt.Sprintf("must have at most %d %s", *max, unit)
	}
	return ""
}

func coerceBool(raw any) (bool, bool) {
	switch t := raw.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}

func coerceInt(raw any) (int64, bool) {
	switch t := raw.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
		if t == math.Trunc(t) && t >= math.MinInt64 && t < math.MaxInt64 {
			return int64(t), true
		}
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
