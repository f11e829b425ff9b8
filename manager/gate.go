package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// PreconditionError reports why a gated operation was refused: either a
// named condition failed or one or more required components were not
// running. It unwraps to errors.ErrPreconditionNotMet so callers can
// classify it without inspecting fields.
type PreconditionError struct {
	// Condition is the name of the failing condition, empty when the
	// failure was a missing component.
	Condition string

	// Message is the condition's failure explanation, or a summary of the
	// missing components.
	Message string

	// Missing lists required components that were not running.
	Missing []string
}

// Error implements the error interface
func (e *PreconditionError) Error() string {
	if e.Condition != "" {
		return fmt.Sprintf("precondition not met: condition %q failed: %s", e.Condition, e.Message)
	}
	return fmt.Sprintf("precondition not met: components not running: %s", strings.Join(e.Missing, ", "))
}

// Unwrap returns the sentinel precondition error.
func (e *PreconditionError) Unwrap() error {
	return errors.ErrPreconditionNotMet
}

// Guard is a reusable precondition check over a set of required components
// and optional named conditions. Callers build one per operation and call
// Check before doing real work; the guard has no side effects of its own.
type Guard struct {
	m          *Manager
	components []string
	conditions []string
}

// Guard builds a guard requiring the named components to be running and
// the named conditions to hold.
func (m *Manager) Guard(components []string, conditions ...string) *Guard {
	return &Guard{
		m:          m,
		components: append([]string(nil), components...),
		conditions: append([]string(nil), conditions...),
	}
}

// Check evaluates the guard. Conditions are evaluated first, in order,
// and the first failure short-circuits with that condition's message;
// only then is the component-running check made. Unknown component or
// condition names remain fatal lookup errors, not precondition failures.
func (g *Guard) Check() error {
	for _, name := range g.conditions {
		ok, message, err := g.m.EvaluateCondition(name)
		if err != nil {
			return err
		}
		if !ok {
			return &PreconditionError{Condition: name, Message: message}
		}
	}

	var missing []string
	for _, name := range g.components {
		running, err := g.m.IsRunning(name)
		if err != nil {
			return err
		}
		if !running {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &PreconditionError{
			Message: fmt.Sprintf("%d component(s) not running", len(missing)),
			Missing: missing,
		}
	}

	return nil
}

// Gate wraps an operation so it only runs once the guard passes. The
// wrapped function is never invoked when a precondition fails; the
// structured precondition error is returned instead.
func (m *Manager) Gate(
	fn func(ctx context.Context) error, components []string, conditions ...string,
) func(ctx context.Context) error {
	guard := m.Guard(components, conditions...)
	return func(ctx context.Context) error {
		if err := guard.Check(); err != nil {
			return err
		}
		return fn(ctx)
	}
}
