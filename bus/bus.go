// Package bus provides the messaging component. It owns the NATS
// connection every other connected component builds on.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lbryio/lbry-sdk-sub001/component"
	"github.com/lbryio/lbry-sdk-sub001/config"
	"github.com/lbryio/lbry-sdk-sub001/errors"
	"github.com/lbryio/lbry-sdk-sub001/natsclient"
	"github.com/lbryio/lbry-sdk-sub001/pkg/retry"
)

// ComponentName is the registered name of the bus component.
const ComponentName = "bus"

// ConditionConnected is the condition name gated callers use to require
// a live bus connection.
const ConditionConnected = "bus-connected"

// Bus connects to NATS on start and exposes the client as its handle.
// The client field is guarded: Handle and Status stay callable while a
// concurrent Stop tears the connection down.
type Bus struct {
	component.Base

	cfg    config.NATSConfig
	logger *slog.Logger
	retry  retry.Config

	mu     sync.RWMutex
	client *natsclient.Client
}

// New creates the bus component. The connection is dialed in Start.
func New(cfg config.NATSConfig, logger *slog.Logger) *Bus {
	return &Bus{
		Base:   component.NewBase(ComponentName),
		cfg:    cfg,
		logger: logger.With("component", ComponentName),
		retry:  retry.DefaultConfig(),
	}
}

// Start dials the configured server, retrying with backoff until the
// connection is up or ctx is cancelled.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.RLock()
	started := b.client != nil
	b.mu.RUnlock()
	if started {
		return errors.WrapFatal(errors.ErrAlreadyStarted, ComponentName, "Start", "client check")
	}

	client, err := natsclient.NewClient(b.cfg.URL,
		natsclient.WithName("daemon"),
		natsclient.WithConnectWait(time.Duration(b.cfg.ConnectTimeout)*time.Second),
		natsclient.WithMaxReconnects(b.cfg.MaxReconnects),
		natsclient.WithDisconnectHandler(func(err error) {
			b.logger.Warn("Bus connection lost", "error", err)
		}),
		natsclient.WithReconnectHandler(func() {
			b.logger.Info("Bus connection restored")
		}),
	)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, b.retry, func() error {
		if dialErr := client.Connect(ctx); dialErr != nil {
			b.logger.Warn("Bus connect attempt failed", "url", b.cfg.URL, "error", dialErr)
			return dialErr
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.logger.Info("Bus connected", "url", b.cfg.URL)
	return nil
}

// Stop drains and closes the connection.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close(ctx)
}

// Handle returns the live NATS client, nil before Start.
func (b *Bus) Handle() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.client == nil {
		return nil
	}
	return b.client
}

// Status reports connection state for the query surface.
func (b *Bus) Status() map[string]any {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()

	if client == nil {
		return map[string]any{"connected": false}
	}
	return map[string]any{
		"connected": client.IsConnected(),
		"url":       client.URL(),
		"rtt_ms":    client.RTT().Milliseconds(),
	}
}

// ConnectedCondition describes the "bus-connected" check used to gate
// operations that publish to the bus.
func ConnectedCondition() component.Condition {
	return component.Condition{
		Name:      ConditionConnected,
		Component: ComponentName,
		Message:   "NATS connection is not established",
		Evaluate: func(handle any) bool {
			client, ok := handle.(*natsclient.Client)
			return ok && client.IsConnected()
		},
	}
}
