// Package natsclient wraps a NATS connection with the lifecycle shape
// the daemon components expect: context-aware connect, status
// reporting, and access to JetStream and key/value buckets.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// Client manages a single NATS connection and its JetStream context.
type Client struct {
	url string

	name          string
	connectWait   time.Duration
	reconnectWait time.Duration
	maxReconnects int
	drainTimeout  time.Duration

	onDisconnect func(error)
	onReconnect  func()

	mu     sync.RWMutex
	conn   *nats.Conn
	js     jetstream.JetStream
	closed bool
}

// Option configures a Client.
type Option func(*Client) error

// WithName sets the client name advertised to the server.
func WithName(name string) Option {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// WithConnectWait sets the dial timeout for a single connect attempt.
func WithConnectWait(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("connect wait must be positive, got %v", d)
		}
		c.connectWait = d
		return nil
	}
}

// WithMaxReconnects sets how many times the underlying connection tries
// to re-establish itself after a drop. Negative means forever.
func WithMaxReconnects(n int) Option {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithDisconnectHandler registers a callback invoked when the
// connection drops unexpectedly.
func WithDisconnectHandler(fn func(error)) Option {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// WithReconnectHandler registers a callback invoked when a dropped
// connection comes back.
func WithReconnectHandler(fn func()) Option {
	return func(c *Client) error {
		c.onReconnect = fn
		return nil
	}
}

// NewClient creates a client for the given server URL. The connection
// is not established until Connect is called.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: server url", errors.ErrMissingConfig),
			"Client", "NewClient", "url check")
	}

	c := &Client{
		url:           url,
		connectWait:   5 * time.Second,
		reconnectWait: 2 * time.Second,
		maxReconnects: -1,
		drainTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	return c, nil
}

// URL returns the configured server URL.
func (c *Client) URL() string {
	return c.url
}

// Connect dials the server and initializes JetStream. It returns the
// context error unwrapped if ctx expires before the dial completes.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return errors.WrapTransient(errors.ErrShuttingDown, "Client", "Connect", "client check")
	}

	opts := []nats.Option{
		nats.Timeout(c.connectWait),
		nats.ReconnectWait(c.reconnectWait),
		nats.MaxReconnects(c.maxReconnects),
		nats.DrainTimeout(c.drainTimeout),
	}
	if c.name != "" {
		opts = append(opts, nats.Name(c.name))
	}
	if c.onDisconnect != nil {
		opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.onDisconnect(err)
		}))
	}
	if c.onReconnect != nil {
		opts = append(opts, nats.ReconnectHandler(func(_ *nats.Conn) {
			c.onReconnect()
		}))
	}

	done := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			done <- err
			return
		}
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			done <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.js = js
		c.mu.Unlock()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			if stderrors.Is(err, nats.ErrTimeout) {
				err = fmt.Errorf("%w: %v", errors.ErrConnectionTimeout, err)
			}
			return errors.WrapTransient(err, "Client", "Connect", "server dial")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the connection, letting in-flight messages flush before
// the sockets go away. Safe to call on a client that never connected;
// once closed, the client refuses further use.
func (c *Client) Close(_ context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.closed = true
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "Client", "Close", "connection drain")
	}
	return nil
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// RTT returns the measured round trip time to the server, or zero when
// the connection is down.
func (c *Client) RTT() time.Duration {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0
	}
	rtt, err := conn.RTT()
	if err != nil {
		return 0
	}
	return rtt
}

// Publish sends a message on the given subject. A connection that was
// up and dropped reports the loss distinctly from one never dialed.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()

	if closed {
		return errors.WrapTransient(errors.ErrShuttingDown, "Client", "Publish", "client check")
	}
	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Publish", "connection check")
	}
	if !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrConnectionLost, "Client", "Publish", "connection check")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "message publish")
	}
	return nil
}

// JetStream returns the JetStream context, or an error when the client
// is not connected.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errors.WrapTransient(errors.ErrShuttingDown, "Client", "JetStream", "client check")
	}
	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "JetStream", "connection check")
	}
	return c.js, nil
}

// KeyValue opens the named key/value bucket, creating it if it does not
// exist yet.
func (c *Client) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Client", "KeyValue", fmt.Sprintf("bucket %s open", bucket))
	}
	return kv, nil
}
