// Package store provides the key/value state component, backed by a
// JetStream bucket on the bus connection.
package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/lbryio/lbry-sdk-sub001/bus"
	"github.com/lbryio/lbry-sdk-sub001/component"
	"github.com/lbryio/lbry-sdk-sub001/config"
	"github.com/lbryio/lbry-sdk-sub001/errors"
	"github.com/lbryio/lbry-sdk-sub001/natsclient"
	"github.com/lbryio/lbry-sdk-sub001/pkg/retry"
)

// ComponentName is the registered name of the store component.
const ComponentName = "store"

// Store opens a JetStream key/value bucket on start. It depends on the
// bus component and resolves the shared client through the resolver at
// start time, after the bus stage has completed.
type Store struct {
	component.Base

	cfg      config.StoreConfig
	logger   *slog.Logger
	resolver component.Resolver

	mu sync.RWMutex
	kv jetstream.KeyValue
}

// New creates the store component.
func New(cfg config.StoreConfig, resolver component.Resolver, logger *slog.Logger) *Store {
	return &Store{
		Base:     component.NewBase(ComponentName, bus.ComponentName),
		cfg:      cfg,
		logger:   logger.With("component", ComponentName),
		resolver: resolver,
	}
}

// Start binds the configured bucket, creating it on first run.
func (s *Store) Start(ctx context.Context) error {
	handle, err := s.resolver.Handle(bus.ComponentName)
	if err != nil {
		return err
	}
	client, ok := handle.(*natsclient.Client)
	if !ok || client == nil {
		return errors.WrapFatal(errors.ErrNoConnection, ComponentName, "Start", "bus handle resolve")
	}

	var kv jetstream.KeyValue
	err = retry.Do(ctx, retry.Quick(), func() error {
		bound, kvErr := client.KeyValue(ctx, s.cfg.Bucket)
		if kvErr != nil {
			return kvErr
		}
		kv = bound
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.kv = kv
	s.mu.Unlock()

	s.logger.Info("Store bucket bound", "bucket", s.cfg.Bucket)
	return nil
}

// Stop releases the bucket binding. The connection itself belongs to the
// bus component and is closed there.
func (s *Store) Stop(_ context.Context) error {
	s.mu.Lock()
	s.kv = nil
	s.mu.Unlock()
	return nil
}

// bucket returns the bound bucket, nil before Start.
func (s *Store) bucket() jetstream.KeyValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kv
}

// Handle returns the bound bucket, nil before Start.
func (s *Store) Handle() any {
	kv := s.bucket()
	if kv == nil {
		return nil
	}
	return kv
}

// Status reports the bucket binding for the query surface.
func (s *Store) Status() map[string]any {
	return map[string]any{
		"bucket": s.cfg.Bucket,
		"bound":  s.bucket() != nil,
	}
}

// Put writes a value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	kv := s.bucket()
	if kv == nil {
		return errors.WrapTransient(errors.ErrNotStarted, ComponentName, "Put", "bucket check")
	}
	if _, err := kv.Put(ctx, key, value); err != nil {
		return errors.WrapTransient(err, ComponentName, "Put", "key write")
	}
	return nil
}

// Get reads the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	kv := s.bucket()
	if kv == nil {
		return nil, errors.WrapTransient(errors.ErrNotStarted, ComponentName, "Get", "bucket check")
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		return nil, errors.WrapTransient(err, ComponentName, "Get", "key read")
	}
	return entry.Value(), nil
}
