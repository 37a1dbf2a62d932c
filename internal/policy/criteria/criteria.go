// Package criteria implements the value-set matching rules shared by the
// labels and annotations policies: one operator applied to a configured
// set of values, evaluated against the values present on a resource.
package criteria

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amit7itz/goset"
)

// Operator selects how the configured values are matched against the
// values found on the resource.
type Operator string

const (
	// ContainsAnyOf requires at least one configured value to be present.
	ContainsAnyOf Operator = "containsAnyOf"

	// ContainsAllOf requires every configured value to be present.
	ContainsAllOf Operator = "containsAllOf"

	// ContainsNoneOf forbids every configured value.
	ContainsNoneOf Operator = "containsNoneOf"
)

// Rule is one matching rule: an operator and its value set.
type Rule struct {
	Operator Operator `json:"operator"`
	Values   []string `json:"values"`
}

// Validate rejects rules that can never be evaluated meaningfully.
func (r Rule) Validate() error {
	switch r.Operator {
	case ContainsAnyOf, ContainsAllOf, ContainsNoneOf:
	default:
		return fmt.Errorf("unknown operator %q", r.Operator)
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("operator %q requires at least one value", r.Operator)
	}
	return nil
}

// Evaluate reports whether the present values satisfy the rule. A nil
// return means satisfied; otherwise the error carries a user-facing
// explanation naming the offending values.
func (r Rule) Evaluate(present *goset.Set[string]) error {
	configured := goset.FromSlice(r.Values)

	switch r.Operator {
	case ContainsAnyOf:
		if configured.Intersection(present).IsEmpty() {
			return fmt.Errorf("must contain at least one of: %s", sortedList(configured))
		}
	case ContainsAllOf:
		missing := configured.Difference(present)
		if !missing.IsEmpty() {
			return fmt.Errorf("missing required values: %s", sortedList(missing))
		}
	case ContainsNoneOf:
		forbidden := configured.Intersection(present)
		if !forbidden.IsEmpty() {
			return fmt.Errorf("contains forbidden values: %s", sortedList(forbidden))
		}
	default:
		return fmt.Errorf("unknown operator %q", r.Operator)
	}
	return nil
}

func sortedList(set *goset.Set[string]) string {
	values := set.Items()
	sort.Strings(values)
	return strings.Join(values, ", ")
}
