package store

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbryio/lbry-sdk-sub001/bus"
	"github.com/lbryio/lbry-sdk-sub001/config"
	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// mapResolver is a canned component.Resolver for tests.
type mapResolver map[string]any

func (m mapResolver) Has(name string) bool {
	_, ok := m[name]
	return ok
}

func (m mapResolver) Handle(name string) (any, error) {
	handle, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownComponent, name)
	}
	return handle, nil
}

func testConfig() config.StoreConfig {
	return config.StoreConfig{Bucket: "test-bucket"}
}

func TestNew(t *testing.T) {
	s := New(testConfig(), mapResolver{}, slog.Default())
	assert.Equal(t, ComponentName, s.Name())
	assert.Equal(t, []string{bus.ComponentName}, s.DependsOn())
	assert.Nil(t, s.Handle())
}

func TestStartFailures(t *testing.T) {
	t.Run("missing bus registration", func(t *testing.T) {
		s := New(testConfig(), mapResolver{}, slog.Default())
		err := s.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrUnknownComponent)
	})

	t.Run("wrong handle type", func(t *testing.T) {
		s := New(testConfig(), mapResolver{bus.ComponentName: "not a client"}, slog.Default())
		err := s.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNoConnection)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("nil bus handle", func(t *testing.T) {
		s := New(testConfig(), mapResolver{bus.ComponentName: nil}, slog.Default())
		err := s.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNoConnection)
	})
}

func TestAccessBeforeStart(t *testing.T) {
	s := New(testConfig(), mapResolver{}, slog.Default())

	err := s.Put(context.Background(), "key", []byte("value"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotStarted)

	_, err = s.Get(context.Background(), "key")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestStatus(t *testing.T) {
	s := New(testConfig(), mapResolver{}, slog.Default())
	assert.Equal(t, map[string]any{
		"bucket": "test-bucket",
		"bound":  false,
	}, s.Status())
}

func TestStopWithoutStart(t *testing.T) {
	s := New(testConfig(), mapResolver{}, slog.Default())
	assert.NoError(t, s.Stop(context.Background()))
	assert.Nil(t, s.Handle())
}

// fakeBucket satisfies jetstream.KeyValue for binding tests; no method
// is ever called on it.
type fakeBucket struct {
	jetstream.KeyValue
}

// TestHandleDuringStop reads the handle and status continuously while a
// concurrent Stop releases the bucket binding; run under the race
// detector this covers the guarded kv field.
func TestHandleDuringStop(t *testing.T) {
	s := New(testConfig(), mapResolver{}, slog.Default())
	s.kv = fakeBucket{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for s.Handle() != nil {
			_ = s.Status()
		}
	}()

	require.NoError(t, s.Stop(context.Background()))
	<-done
	assert.Nil(t, s.Handle())
	assert.False(t, s.Status()["bound"].(bool))
}
