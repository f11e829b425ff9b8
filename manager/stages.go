package manager

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// sortComponents produces the dependency-respecting execution stages for
// the registered set. Stage 0 holds every component with no dependencies;
// stage k holds every not-yet-staged component whose full dependency set
// is satisfied by the union of earlier stages. Components within a stage
// have no dependency relationship to each other, so the drivers run them
// concurrently.
//
// Names within a stage are sorted so staging is deterministic for a given
// input; ordering inside a stage has no semantic effect, it only makes
// logs and tests reproducible. With reverse set, the stage order is
// flipped (components keep their relative order inside each stage), which
// is how shutdown guarantees nothing stops before its dependents.
//
// A pass that stages nothing while components remain means the remaining
// set is cyclic or depends on names that will never be staged. That is a
// construction-time fatal error identifying the stuck components.
func sortComponents(components map[string]*registered, reverse bool) ([][]string, error) {
	staged := make(map[string]struct{}, len(components))
	remaining := make(map[string]*registered, len(components))
	for name, reg := range components {
		remaining[name] = reg
	}

	var stages [][]string
	for len(remaining) > 0 {
		var stage []string
		for name, reg := range remaining {
			if depsSatisfied(reg.deps, staged) {
				stage = append(stage, name)
			}
		}

		if len(stage) == 0 {
			return nil, stuckComponentsError(remaining, staged)
		}

		sort.Strings(stage)
		for _, name := range stage {
			staged[name] = struct{}{}
			delete(remaining, name)
		}
		stages = append(stages, stage)
	}

	if reverse {
		for i, j := 0, len(stages)-1; i < j; i, j = i+1, j-1 {
			stages[i], stages[j] = stages[j], stages[i]
		}
	}
	return stages, nil
}

func depsSatisfied(deps []string, staged map[string]struct{}) bool {
	for _, dep := range deps {
		if _, ok := staged[dep]; !ok {
			return false
		}
	}
	return true
}

// stuckComponentsError names every unstageable component along with the
// dependencies still blocking it, so a cycle or a typo in a dependency
// name is diagnosable from the error alone.
func stuckComponentsError(remaining map[string]*registered, staged map[string]struct{}) error {
	stuck := make([]string, 0, len(remaining))
	for name, reg := range remaining {
		var missing []string
		for _, dep := range reg.deps {
			if _, ok := staged[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		sort.Strings(missing)
		stuck = append(stuck, fmt.Sprintf("%s (waiting on: %s)", name, strings.Join(missing, ", ")))
	}
	sort.Strings(stuck)

	return errors.WrapFatal(
		fmt.Errorf("%w: %s", errors.ErrDependencyCycle, strings.Join(stuck, "; ")),
		"Manager", "sortComponents", "dependency staging")
}

// Stages returns a copy of the computed execution stages, in shutdown
// order when reverse is set. Calling it twice always yields the same
// staging; the graph is fixed after construction.
func (m *Manager) Stages(reverse bool) [][]string {
	stages := make([][]string, len(m.stages))
	for i, stage := range m.stages {
		idx := i
		if reverse {
			idx = len(m.stages) - 1 - i
		}
		stages[idx] = append([]string(nil), stage...)
	}
	return stages
}
