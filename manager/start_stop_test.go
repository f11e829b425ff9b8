package manager

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbryio/lbry-sdk-sub001/component"
	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// orderRecorder tracks the order lifecycle calls happen in across
// components, for asserting stage sequencing.
type orderRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *orderRecorder) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *orderRecorder) index(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

func TestStart(t *testing.T) {
	t.Run("starts dependencies before dependents", func(t *testing.T) {
		rec := &orderRecorder{}
		mk := func(name string, deps ...string) *fakeComponent {
			comp := newFakeComponent(name, deps...)
			comp.startFn = func(context.Context) error {
				rec.record(name)
				return nil
			}
			return comp
		}

		m, err := New([]component.Component{
			mk("a"), mk("b", "a"), mk("c", "a"), mk("d", "b", "c"),
		})
		require.NoError(t, err)
		require.NoError(t, m.Start(context.Background()))

		assert.Less(t, rec.index("a"), rec.index("b"))
		assert.Less(t, rec.index("a"), rec.index("c"))
		assert.Less(t, rec.index("b"), rec.index("d"))
		assert.Less(t, rec.index("c"), rec.index("d"))
	})

	t.Run("components in one stage run concurrently", func(t *testing.T) {
		barrier := make(chan struct{})
		var arrived sync.WaitGroup
		arrived.Add(2)

		mk := func(name string) *fakeComponent {
			comp := newFakeComponent(name)
			comp.startFn = func(ctx context.Context) error {
				arrived.Done()
				select {
				case <-barrier:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return comp
		}

		m, err := New([]component.Component{mk("a"), mk("b")})
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- m.Start(context.Background()) }()

		// Both starts must be in flight at once; a serial driver would
		// deadlock here.
		waitDone := make(chan struct{})
		go func() { arrived.Wait(); close(waitDone) }()
		select {
		case <-waitDone:
		case <-time.After(2 * time.Second):
			t.Fatal("stage members did not start concurrently")
		}

		close(barrier)
		require.NoError(t, <-done)
	})

	t.Run("second start skips running components", func(t *testing.T) {
		comp := newFakeComponent("a")
		m, err := New([]component.Component{comp})
		require.NoError(t, err)

		require.NoError(t, m.Start(context.Background()))
		require.NoError(t, m.Start(context.Background()))
		assert.Equal(t, 1, comp.starts())
	})

	t.Run("failure carries the component name and stops later stages", func(t *testing.T) {
		boom := stderrors.New("dial refused")
		failing := newFakeComponent("flaky")
		failing.startFn = func(context.Context) error { return boom }
		dependent := newFakeComponent("dependent", "flaky")

		m, err := New([]component.Component{failing, dependent})
		require.NoError(t, err)

		err = m.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "flaky.Start")
		assert.Equal(t, 0, dependent.starts())

		running, qerr := m.IsRunning("flaky")
		require.NoError(t, qerr)
		assert.False(t, running)
	})

	t.Run("earlier stage survivors keep running after a later stage failure", func(t *testing.T) {
		boom := stderrors.New("dial refused")
		base := newFakeComponent("base")
		failing := newFakeComponent("failing", "base")
		failing.startFn = func(context.Context) error { return boom }

		m, err := New([]component.Component{base, failing})
		require.NoError(t, err)

		err = m.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)

		running, qerr := m.IsRunning("base")
		require.NoError(t, qerr)
		assert.True(t, running, "base started before the failing stage and must stay running")

		running, qerr = m.IsRunning("failing")
		require.NoError(t, qerr)
		assert.False(t, running)

		// The survivor is still stoppable through the normal driver.
		require.NoError(t, m.Stop(context.Background()))
		assert.Equal(t, 1, base.stops())
	})

	t.Run("failure is not retried by the driver", func(t *testing.T) {
		calls := 0
		failing := newFakeComponent("flaky")
		failing.startFn = func(context.Context) error {
			calls++
			return stderrors.New("still broken")
		}

		m, err := New([]component.Component{failing})
		require.NoError(t, err)

		require.Error(t, m.Start(context.Background()))
		assert.Equal(t, 1, calls)
	})

	t.Run("failure records the last error", func(t *testing.T) {
		boom := stderrors.New("dial refused")
		failing := newFakeComponent("flaky")
		failing.startFn = func(context.Context) error { return boom }

		m, err := New([]component.Component{failing})
		require.NoError(t, err)
		require.Error(t, m.Start(context.Background()))

		lastErr, qerr := m.LastError("flaky")
		require.NoError(t, qerr)
		assert.ErrorIs(t, lastErr, boom)
	})

	t.Run("sibling cancelled by a failing start stays not running", func(t *testing.T) {
		boom := stderrors.New("broken")
		failing := newFakeComponent("failing")
		failing.startFn = func(context.Context) error { return boom }

		slow := newFakeComponent("slow")
		slow.startFn = func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}

		m, err := New([]component.Component{failing, slow})
		require.NoError(t, err)
		require.Error(t, m.Start(context.Background()))

		for _, name := range []string{"failing", "slow"} {
			running, qerr := m.IsRunning(name)
			require.NoError(t, qerr)
			assert.False(t, running, name)
		}
	})

	t.Run("cancellation propagates unwrapped", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		comp := newFakeComponent("a")
		comp.startFn = func(ctx context.Context) error { return ctx.Err() }

		m, err := New([]component.Component{comp})
		require.NoError(t, err)

		err = m.Start(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		var classified *errors.ClassifiedError
		assert.False(t, stderrors.As(err, &classified))
	})

	t.Run("readiness channel closes after full start", func(t *testing.T) {
		m, err := New([]component.Component{newFakeComponent("a")})
		require.NoError(t, err)

		select {
		case <-m.Started():
			t.Fatal("started channel closed before Start")
		default:
		}

		require.NoError(t, m.Start(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, m.WaitForStart(ctx))
	})

	t.Run("WaitForStart honors context", func(t *testing.T) {
		m, err := New([]component.Component{newFakeComponent("a")})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, m.WaitForStart(ctx), context.DeadlineExceeded)
	})
}

func TestStop(t *testing.T) {
	t.Run("stops dependents before dependencies", func(t *testing.T) {
		rec := &orderRecorder{}
		mk := func(name string, deps ...string) *fakeComponent {
			comp := newFakeComponent(name, deps...)
			comp.stopFn = func(context.Context) error {
				rec.record(name)
				return nil
			}
			return comp
		}

		m, err := New([]component.Component{
			mk("a"), mk("b", "a"), mk("c", "b"),
		})
		require.NoError(t, err)
		require.NoError(t, m.Start(context.Background()))
		require.NoError(t, m.Stop(context.Background()))

		assert.Less(t, rec.index("c"), rec.index("b"))
		assert.Less(t, rec.index("b"), rec.index("a"))
	})

	t.Run("skips components that never started", func(t *testing.T) {
		comp := newFakeComponent("a")
		m, err := New([]component.Component{comp})
		require.NoError(t, err)

		require.NoError(t, m.Stop(context.Background()))
		assert.Equal(t, 0, comp.stops())
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		comp := newFakeComponent("a")
		m, err := New([]component.Component{comp})
		require.NoError(t, err)

		require.NoError(t, m.Start(context.Background()))
		require.NoError(t, m.Stop(context.Background()))
		require.NoError(t, m.Stop(context.Background()))
		assert.Equal(t, 1, comp.stops())
	})

	t.Run("failed stop still clears the running flag", func(t *testing.T) {
		boom := stderrors.New("flush failed")
		comp := newFakeComponent("a")
		comp.stopFn = func(context.Context) error { return boom }

		m, err := New([]component.Component{comp})
		require.NoError(t, err)
		require.NoError(t, m.Start(context.Background()))

		err = m.Stop(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)

		running, qerr := m.IsRunning("a")
		require.NoError(t, qerr)
		assert.False(t, running)
	})

	t.Run("cancelled stop still clears the running flag", func(t *testing.T) {
		comp := newFakeComponent("a")
		comp.stopFn = func(ctx context.Context) error { return context.Canceled }

		m, err := New([]component.Component{comp})
		require.NoError(t, err)
		require.NoError(t, m.Start(context.Background()))

		err = m.Stop(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)

		running, qerr := m.IsRunning("a")
		require.NoError(t, qerr)
		assert.False(t, running)
	})

	t.Run("every failing stop in a stage is reported", func(t *testing.T) {
		boomA := stderrors.New("a flush failed")
		boomB := stderrors.New("b flush failed")

		a := newFakeComponent("a")
		a.stopFn = func(context.Context) error { return boomA }
		b := newFakeComponent("b")
		b.stopFn = func(context.Context) error { return boomB }

		m, err := New([]component.Component{a, b})
		require.NoError(t, err)
		require.NoError(t, m.Start(context.Background()))

		err = m.Stop(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boomA)
		assert.ErrorIs(t, err, boomB)
	})

	t.Run("one failed stage does not abort the rest", func(t *testing.T) {
		boom := stderrors.New("flush failed")
		base := newFakeComponent("base")
		failing := newFakeComponent("failing", "base")
		failing.stopFn = func(context.Context) error { return boom }

		m, err := New([]component.Component{base, failing})
		require.NoError(t, err)
		require.NoError(t, m.Start(context.Background()))

		err = m.Stop(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, base.stops(), "base must still be stopped after the failing stage")
	})

	t.Run("restart after stop starts components again", func(t *testing.T) {
		comp := newFakeComponent("a")
		m, err := New([]component.Component{comp})
		require.NoError(t, err)

		require.NoError(t, m.Start(context.Background()))
		require.NoError(t, m.Stop(context.Background()))
		require.NoError(t, m.Start(context.Background()))
		assert.Equal(t, 2, comp.starts())
	})
}
