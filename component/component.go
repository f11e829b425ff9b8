// Package component defines the lifecycle contract that every daemon
// subsystem satisfies, plus the named condition descriptor used by the
// gating layer.
//
// A component is an independently startable and stoppable unit with a
// unique name and a static list of dependency names. The manager package
// owns the running flag for every component; implementations never track
// whether they are running themselves.
package component

import "context"

// Component is the contract the manager requires from every subsystem.
//
// Start and Stop are blocking and must be safe to cancel through the
// context. Handle returns the live object the component exposes once
// running and nil otherwise; the manager never constructs or reaches into
// a handle, it only hands it to callers by reference. Status returns a
// small key/value snapshot of runtime health, nil when there is nothing
// to report.
type Component interface {
	Name() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Handle() any
	Status() map[string]any
}

// Base carries the static identity of a component: its unique name and
// the names of the components it depends on. Concrete components embed
// Base and implement Start, Stop and Handle.
type Base struct {
	name      string
	dependsOn []string
}

// NewBase creates the identity for a component. The dependency list is
// evaluated once at registration and never changes afterwards.
func NewBase(name string, dependsOn ...string) Base {
	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	return Base{name: name, dependsOn: deps}
}

// Name returns the component's unique name.
func (b Base) Name() string {
	return b.name
}

// DependsOn returns the names of the components this component requires.
// The returned slice is a copy; callers may not mutate the dependency set.
func (b Base) DependsOn() []string {
	deps := make([]string, len(b.dependsOn))
	copy(deps, b.dependsOn)
	return deps
}

// Status returns no report by default. Components with runtime health to
// expose override this.
func (b Base) Status() map[string]any {
	return nil
}
