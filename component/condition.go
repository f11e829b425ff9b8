package component

import (
	"fmt"

	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// Condition is a named precondition over one component's live state,
// used by the gating layer as an additional check beyond "is it running".
//
// Evaluate receives the target component's handle and must be a pure
// inspection with no side effects. The manager recovers panics raised
// during evaluation and treats them as a failed check, so a buggy
// condition can never crash a gated caller.
type Condition struct {
	// Name is the unique key the gating layer refers to.
	Name string

	// Component is the name of the single component this condition inspects.
	Component string

	// Message is the static human-readable explanation returned when the
	// condition does not hold.
	Message string

	// Evaluate reports whether the condition currently holds.
	Evaluate func(handle any) bool
}

// Validate checks that the condition descriptor is fully populated.
func (c Condition) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Condition", "Validate", "name check")
	}
	if c.Component == "" {
		return errors.WrapInvalid(
			fmt.Errorf("condition %q names no component", c.Name),
			"Condition", "Validate", "component check")
	}
	if c.Evaluate == nil {
		return errors.WrapInvalid(
			fmt.Errorf("condition %q has no evaluate function", c.Name),
			"Condition", "Validate", "evaluate check")
	}
	return nil
}
