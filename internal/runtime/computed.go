package runtime

import (
	"fmt"
	"time"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// Compute derives a computed slot from the session. While an input is
// unresolved the slot is deferred and missing names that input.
func Compute(def *schema.SlotDef, sess *domain.Session, today time.Time) (v domain.Value, missing string, err error) {
	if def.Compute == nil {
		return domain.Value{}, "", fmt.Errorf("slot %q has no compute rule", def.Name)
	}
	inputs := make(map[string]domain.Value, len(def.Compute.Inputs()))
	for _, name := range def.Compute.Inputs() {
		r, ok := sess.Get(name)
		if !ok {
			return domain.Value{}, name, nil
		}
		inputs[name] = r.Value
	}
	v, err = def.Compute.Eval(inputs, today)
	if err != nil {
		return domain.Value{}, "", fmt.Errorf("compute %q: %w", def.Name, err)
	}
	if v.Type() != def.Type {
		return domain.Value{}, "", fmt.Errorf("compute %q: rule produced %s, want %s", def.Name, v.Type(), def.Type)
	}
	return v, "", nil
}

// Today truncates t to the UTC calendar day used by date rules.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
