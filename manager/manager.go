// Package manager drives dependency-ordered startup and shutdown of daemon
// components and exposes the query surface the rest of the process uses to
// ask whether components are running and to fetch their live handles.
//
// The manager holds a fixed, closed set of components for the process
// lifetime. Dependency stages are computed once at construction; Start
// brings each stage up concurrently and waits for the whole stage before
// moving on, Stop does the same in reverse so nothing is stopped while a
// dependent is still running.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lbryio/lbry-sdk-sub001/component"
	"github.com/lbryio/lbry-sdk-sub001/errors"
	"github.com/lbryio/lbry-sdk-sub001/metric"
)

// registered tracks one component and the state the manager owns for it.
// The running flag is written only by the start/stop drivers, never by the
// component itself, and only ever by one in-flight call per component.
type registered struct {
	comp    component.Component
	deps    []string // effective dependency set after skip pruning
	running atomic.Bool

	mu      sync.Mutex
	lastErr error
}

func (r *registered) setLastErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// LastError returns the last start/stop error recorded for the component.
func (r *registered) lastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Manager schedules component startup and shutdown and answers runtime
// queries about the registered set. It is safe for concurrent use.
type Manager struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	components map[string]*registered
	conditions map[string]component.Condition
	skipped    map[string]struct{}
	stages     [][]string // forward start order, computed at construction

	startMu sync.Mutex
	stopMu  sync.Mutex

	startedOnce sync.Once
	started     chan struct{}
}

type options struct {
	logger     *slog.Logger
	metrics    *metric.Metrics
	skip       []string
	overrides  []component.Component
	conditions []component.Condition
}

// Option configures a Manager at construction.
type Option func(*options)

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector for scheduler instrumentation.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSkip excludes the named components from this manager instance.
// Dependencies on a skipped name are pruned from every remaining
// component's effective dependency set; dependents that care must check
// Has at start time and degrade gracefully.
func WithSkip(names ...string) Option {
	return func(o *options) {
		o.skip = append(o.skip, names...)
	}
}

// WithOverride substitutes a different implementation for a component of
// the same name. Every override must match a registered default name or
// construction fails.
func WithOverride(comps ...component.Component) Option {
	return func(o *options) {
		o.overrides = append(o.overrides, comps...)
	}
}

// WithConditions registers named preconditions for the gating layer.
func WithConditions(conds ...component.Condition) Option {
	return func(o *options) {
		o.conditions = append(o.conditions, conds...)
	}
}

// New builds a manager over the given default component set. Overrides are
// applied first, then skipped components are dropped, then dependency
// stages are computed. Unknown override names, duplicate component names
// and cyclic or unsatisfiable dependency graphs are all construction-time
// fatal errors: the process must not come up on a broken graph.
func New(components []component.Component, opts ...Option) (*Manager, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	overrides := make(map[string]component.Component, len(o.overrides))
	for _, comp := range o.overrides {
		overrides[comp.Name()] = comp
	}

	skipped := make(map[string]struct{}, len(o.skip))
	for _, name := range o.skip {
		skipped[name] = struct{}{}
	}

	m := &Manager{
		logger:     o.logger.With("service", "manager"),
		metrics:    o.metrics,
		components: make(map[string]*registered, len(components)),
		conditions: make(map[string]component.Condition, len(o.conditions)),
		skipped:    skipped,
		started:    make(chan struct{}),
	}

	for _, comp := range components {
		name := comp.Name()
		if override, ok := overrides[name]; ok {
			comp = override
			delete(overrides, name)
		}
		if _, isSkipped := skipped[name]; isSkipped {
			continue
		}
		if _, exists := m.components[name]; exists {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %q", errors.ErrDuplicateComponent, name),
				"Manager", "New", "component registration")
		}
		m.components[name] = &registered{
			comp: comp,
			deps: pruneDeps(comp.DependsOn(), skipped),
		}
	}

	// Every override must have matched a known default component name.
	if len(overrides) > 0 {
		unknown := make([]string, 0, len(overrides))
		for name := range overrides {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrUnknownOverride, unknown),
			"Manager", "New", "override check")
	}

	for _, cond := range o.conditions {
		if err := cond.Validate(); err != nil {
			return nil, err
		}
		if _, exists := m.conditions[cond.Name]; exists {
			return nil, errors.WrapFatal(
				fmt.Errorf("condition %q already registered", cond.Name),
				"Manager", "New", "condition registration")
		}
		m.conditions[cond.Name] = cond
	}

	stages, err := sortComponents(m.components, false)
	if err != nil {
		return nil, err
	}
	m.stages = stages

	return m, nil
}

// pruneDeps drops dependencies on intentionally skipped components. The
// depending component sees the dependency as absent rather than failing
// the whole graph.
func pruneDeps(deps []string, skipped map[string]struct{}) []string {
	kept := make([]string, 0, len(deps))
	for _, dep := range deps {
		if _, isSkipped := skipped[dep]; !isSkipped {
			kept = append(kept, dep)
		}
	}
	return kept
}

// Has reports whether the named component is registered. It never errors;
// skip-tolerant dependents use it to degrade gracefully.
func (m *Manager) Has(name string) bool {
	_, ok := m.components[name]
	return ok
}

// Component returns the registered component instance by name.
func (m *Manager) Component(name string) (component.Component, error) {
	reg, ok := m.components[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownComponent, name),
			"Manager", "Component", "component lookup")
	}
	return reg.comp, nil
}

// Handle returns the live handle of the named component, regardless of
// running state; callers that care must check running separately. An
// unknown name is a fatal lookup error, never a nil result, so typos are
// caught immediately.
func (m *Manager) Handle(name string) (any, error) {
	reg, ok := m.components[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownComponent, name),
			"Manager", "Handle", "component lookup")
	}
	return reg.comp.Handle(), nil
}

// IsRunning reports whether the named component is currently running.
func (m *Manager) IsRunning(name string) (bool, error) {
	reg, ok := m.components[name]
	if !ok {
		return false, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownComponent, name),
			"Manager", "IsRunning", "component lookup")
	}
	return reg.running.Load(), nil
}

// AllRunning reports whether every named component is registered and
// running. An unknown name errors rather than reading as "not running".
func (m *Manager) AllRunning(names ...string) (bool, error) {
	all := true
	for _, name := range names {
		running, err := m.IsRunning(name)
		if err != nil {
			return false, err
		}
		if !running {
			all = false
		}
	}
	return all, nil
}

// ComponentStatus returns a snapshot of every registered component's
// running flag. The map is not transactional; interleaving with a
// concurrent start or stop is expected and fine.
func (m *Manager) ComponentStatus() map[string]bool {
	status := make(map[string]bool, len(m.components))
	for name, reg := range m.components {
		status[name] = reg.running.Load()
	}
	return status
}

// Report collects the Status snapshot of every running component.
// Components that report nothing are omitted.
func (m *Manager) Report() map[string]map[string]any {
	reports := make(map[string]map[string]any)
	for name, reg := range m.components {
		if !reg.running.Load() {
			continue
		}
		if status := reg.comp.Status(); len(status) > 0 {
			reports[name] = status
		}
	}
	return reports
}

// LastError returns the most recent start/stop error recorded for the
// named component, nil if it has none.
func (m *Manager) LastError(name string) (error, error) {
	reg, ok := m.components[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownComponent, name),
			"Manager", "LastError", "component lookup")
	}
	return reg.lastError(), nil
}

// Started returns a channel closed after the first successful Start has
// brought every stage up. Safe to wait on from many readers.
func (m *Manager) Started() <-chan struct{} {
	return m.started
}

// WaitForStart blocks until the manager is fully started or the context
// is cancelled.
func (m *Manager) WaitForStart(ctx context.Context) error {
	select {
	case <-m.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EvaluateCondition evaluates the named condition against its target
// component's live handle. Unknown condition names are fatal; a panic
// inside the evaluate function is recovered, logged, and reported as a
// failed check so a buggy condition never crashes the caller.
func (m *Manager) EvaluateCondition(name string) (ok bool, message string, err error) {
	cond, exists := m.conditions[name]
	if !exists {
		return false, "", errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownCondition, name),
			"Manager", "EvaluateCondition", "condition lookup")
	}

	handle, err := m.Handle(cond.Component)
	if err != nil {
		return false, "", err
	}

	ok, panicked := m.evaluate(cond, handle)
	if panicked {
		return false, "condition evaluation failed", nil
	}
	if !ok {
		return false, cond.Message, nil
	}
	return true, "", nil
}

func (m *Manager) evaluate(cond component.Condition, handle any) (ok, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Condition evaluation panicked",
				"condition", cond.Name,
				"component", cond.Component,
				"panic", r)
			ok = false
			panicked = true
		}
	}()
	return cond.Evaluate(handle), false
}
