// Package schema provides the validated, immutable model of an intake intent tree.
//
// A schema is a tree of intents. Every intent declares an ordered set of slots;
// every slot declares where its value comes from (user, api, computed), its type
// (string, date, boolean, integer, array), optional validation rules, optional
// depends_on conditions and, for computed slots, an executable derivation rule.
//
// Basic usage:
//
//	model, err := schema.LoadFile("intake.yaml")
//	if err != nil {
//	    // *schema.SchemaError: the process must not serve sessions.
//	}
//
//	def, owner, ok := model.Resolve([]string{"Patient with Unknown Status"}, "patient_id")
//
// Documents are YAML or JSON. Both are read through gopkg.in/yaml.v3 so that the
// declared order of slots and children is preserved.
//
// Validation rules are a tagged union: StringRules, DateRules, BooleanRules,
// IntegerRules and ArrayRules. Each slot carries at most one variant, matching
// its type.
//
// Load fails with a *SchemaError (aggregating every problem found) when a
// depends_on reference is out of scope, the computed/dependency graph has a
// cycle (*DependencyCycleError), or the declared leaf intents disagree with the
// tree (*LeafMismatchError). The returned Model is read-only and safe to share
// across goroutines.
package schema
