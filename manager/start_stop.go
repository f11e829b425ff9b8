package manager

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// Label values reported to the metrics collector.
const (
	metricDirectionStart = "start"
	metricDirectionStop  = "stop"
	metricStatusOK       = "ok"
	metricStatusFailed   = "failed"
)

// Start brings every stage up in forward order. Components within a stage
// start concurrently and the driver waits at a fan-out/fan-in barrier
// until the whole stage has finished before moving to the next one.
// Components already running are skipped, so calling Start on a started
// manager is a no-op.
//
// A component failure surfaces from the stage barrier with the component
// name attached and is not retried; sibling starts in the same stage are
// cancelled but each sibling's own state stays individually correct (a
// cancelled or failed start leaves that component not running). After the
// last stage completes the process-wide readiness channel is closed.
func (m *Manager) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	for i, stage := range m.stages {
		stageStart := time.Now()

		g, gctx := errgroup.WithContext(ctx)
		for _, name := range stage {
			reg := m.components[name]
			if reg.running.Load() {
				continue
			}
			g.Go(func() error {
				return m.startComponent(gctx, name, reg)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if m.metrics != nil {
			m.metrics.ObserveStage(metricDirectionStart, time.Since(stageStart))
		}
		m.logger.Debug("Stage started", "stage", i, "components", stage)
	}

	m.startedOnce.Do(func() { close(m.started) })
	m.logger.Info("All components started", "stages", len(m.stages))
	return nil
}

func (m *Manager) startComponent(ctx context.Context, name string, reg *registered) error {
	m.logger.Info("Starting component", "component", name)

	if err := reg.comp.Start(ctx); err != nil {
		reg.setLastErr(err)
		if m.metrics != nil {
			m.metrics.RecordStart(name, metricStatusFailed)
		}

		// Cancellation is not a component failure; callers racing
		// startup against shutdown need to tell the two apart.
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn("Component start cancelled", "component", name)
			return err
		}

		m.logger.Error("Component failed to start", "component", name, "error", err)
		return errors.Wrap(err, name, "Start", "component start")
	}

	reg.running.Store(true)
	reg.setLastErr(nil)
	if m.metrics != nil {
		m.metrics.RecordStart(name, metricStatusOK)
		m.metrics.SetComponentUp(name, true)
	}
	m.logger.Info("Component started", "component", name)
	return nil
}

// Stop tears the registered set down stage by stage in reverse order:
// no component is stopped while anything that depends on it is still
// marked running. Components within a stage stop concurrently. Unlike
// Start, a failed stop does not abort the remaining stages; every stop
// error is collected and the joined error returned at the end, because a
// half-stopped daemon is worse than a noisy one.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	var errs []error
	var errsMu sync.Mutex
	stages := m.Stages(true)
	for i, stage := range stages {
		select {
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return stderrors.Join(errs...)
		default:
		}

		stageStart := time.Now()

		// Every failing stop in the stage is collected; an errgroup
		// would keep only the first.
		var wg sync.WaitGroup
		for _, name := range stage {
			reg := m.components[name]
			if !reg.running.Load() {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.stopComponent(ctx, name, reg); err != nil {
					errsMu.Lock()
					errs = append(errs, err)
					errsMu.Unlock()
				}
			}()
		}
		wg.Wait()

		if m.metrics != nil {
			m.metrics.ObserveStage(metricDirectionStop, time.Since(stageStart))
		}
		m.logger.Debug("Stage stopped", "stage", i, "components", stage)
	}

	return stderrors.Join(errs...)
}

// stopComponent clears the running flag unconditionally, in a deferred
// block: a stop that fails or is cancelled must not leave the component
// stuck "running" and block every future shutdown.
func (m *Manager) stopComponent(ctx context.Context, name string, reg *registered) error {
	m.logger.Info("Stopping component", "component", name)

	defer func() {
		reg.running.Store(false)
		if m.metrics != nil {
			m.metrics.SetComponentUp(name, false)
		}
	}()

	if err := reg.comp.Stop(ctx); err != nil {
		reg.setLastErr(err)
		if m.metrics != nil {
			m.metrics.RecordStop(name, metricStatusFailed)
		}

		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn("Component stop cancelled", "component", name)
			return err
		}

		m.logger.Error("Component failed to stop", "component", name, "error", err)
		return errors.Wrap(err, name, "Stop", "component stop")
	}

	if m.metrics != nil {
		m.metrics.RecordStop(name, metricStatusOK)
	}
	m.logger.Info("Component stopped", "component", name)
	return nil
}
