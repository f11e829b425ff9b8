package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbryio/lbry-sdk-sub001/errors"
)

func TestNewClient(t *testing.T) {
	t.Run("requires a url", func(t *testing.T) {
		_, err := NewClient("")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("applies options", func(t *testing.T) {
		c, err := NewClient("nats://127.0.0.1:4222",
			WithName("daemon"),
			WithConnectWait(time.Second),
			WithMaxReconnects(3),
		)
		require.NoError(t, err)
		assert.Equal(t, "nats://127.0.0.1:4222", c.URL())
	})

	t.Run("rejects invalid option values", func(t *testing.T) {
		_, err := NewClient("nats://127.0.0.1:4222", WithConnectWait(-time.Second))
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})
}

func TestDisconnectedClient(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	t.Run("not connected", func(t *testing.T) {
		assert.False(t, c.IsConnected())
		assert.Zero(t, c.RTT())
	})

	t.Run("publish fails with no connection", func(t *testing.T) {
		err := c.Publish("subject", []byte("data"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNoConnection)
		assert.True(t, errors.IsTransient(err))
	})

	t.Run("jetstream unavailable", func(t *testing.T) {
		_, err := c.JetStream()
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNoConnection)
	})

	t.Run("key value unavailable", func(t *testing.T) {
		_, err := c.KeyValue(context.Background(), "bucket")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNoConnection)
	})

	t.Run("close without connect is a no-op", func(t *testing.T) {
		assert.NoError(t, c.Close(context.Background()))
	})
}

func TestClosedClient(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))

	t.Run("publish refused", func(t *testing.T) {
		err := c.Publish("subject", []byte("data"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrShuttingDown)
		assert.True(t, errors.IsTransient(err))
	})

	t.Run("jetstream refused", func(t *testing.T) {
		_, err := c.JetStream()
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrShuttingDown)
	})

	t.Run("reconnect refused", func(t *testing.T) {
		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrShuttingDown)
	})
}

func TestConnectCancellation(t *testing.T) {
	// Reserved TEST-NET address, the dial cannot complete.
	c, err := NewClient("nats://192.0.2.1:4222", WithConnectWait(30*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = c.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
