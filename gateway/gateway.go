// Package gateway provides the HTTP API component. It exposes the
// scheduler's query surface, a gated publish endpoint, health and
// metrics, and a websocket status stream.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lbryio/lbry-sdk-sub001/bus"
	"github.com/lbryio/lbry-sdk-sub001/component"
	"github.com/lbryio/lbry-sdk-sub001/config"
	"github.com/lbryio/lbry-sdk-sub001/errors"
	"github.com/lbryio/lbry-sdk-sub001/metric"
	"github.com/lbryio/lbry-sdk-sub001/store"
)

// ComponentName is the registered name of the gateway component.
const ComponentName = "gateway"

// Scheduler is the slice of the component manager the gateway consumes.
type Scheduler interface {
	Has(name string) bool
	Handle(name string) (any, error)
	IsRunning(name string) (bool, error)
	ComponentStatus() map[string]bool
	Report() map[string]map[string]any
	LastError(name string) (error, error)
	Gate(fn func(ctx context.Context) error, components []string, conditions ...string) func(ctx context.Context) error
}

// Gateway serves the daemon HTTP API. It depends on the bus and the
// store, but tolerates the store being disabled: publish history is
// simply not recorded when the store component is absent.
//
// The server field is guarded: Handle stays callable while a
// concurrent Stop shuts the server down.
type Gateway struct {
	component.Base

	cfg     config.GatewayConfig
	logger  *slog.Logger
	sched   Scheduler
	metrics *metric.MetricsRegistry
	limiter *rate.Limiter

	mu     sync.RWMutex
	server *http.Server
	addr   atomic.Value // string, actual listen address

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// New creates the gateway component. The server starts listening in
// Start.
func New(cfg config.GatewayConfig, sched Scheduler, metrics *metric.MetricsRegistry, logger *slog.Logger) *Gateway {
	return &Gateway{
		Base:    component.NewBase(ComponentName, bus.ComponentName, store.ComponentName),
		cfg:     cfg,
		logger:  logger.With("component", ComponentName),
		sched:   sched,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// Start binds the listen address and begins serving. The bind happens
// synchronously so a port conflict fails the start instead of
// surfacing later as a dead endpoint.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.RLock()
	started := g.server != nil
	g.mu.RUnlock()
	if started {
		return errors.WrapFatal(errors.ErrAlreadyStarted, ComponentName, "Start", "server check")
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	listener, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, ComponentName, "Start", "listener bind")
	}
	g.addr.Store(listener.Addr().String())

	server := &http.Server{
		Handler:           g.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErrs := make(chan error, 1)

	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			serveErrs <- serveErr
		}
		close(serveErrs)
	}()

	// Give an immediate Serve failure a moment to surface.
	select {
	case serveErr, ok := <-serveErrs:
		if ok && serveErr != nil {
			return errors.WrapFatal(serveErr, ComponentName, "Start", "http serve")
		}
	case <-ctx.Done():
		_ = server.Close()
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}

	g.mu.Lock()
	g.server = server
	g.mu.Unlock()

	g.logger.Info("Gateway listening", "addr", g.addr.Load())
	return nil
}

// Stop shuts the server down gracefully, letting in-flight requests
// finish until ctx expires.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server := g.server
	g.server = nil
	g.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, ComponentName, "Stop", "server shutdown")
	}
	return nil
}

// Handle returns the running HTTP server, nil before Start.
func (g *Gateway) Handle() any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.server == nil {
		return nil
	}
	return g.server
}

// Status reports request counters for the query surface.
func (g *Gateway) Status() map[string]any {
	addr, _ := g.addr.Load().(string)
	return map[string]any{
		"addr":            addr,
		"requests_total":  g.requestsTotal.Load(),
		"requests_failed": g.requestsFailed.Load(),
	}
}

// Addr returns the bound listen address, empty before Start. Tests use
// it when the configured port is 0.
func (g *Gateway) Addr() string {
	addr, _ := g.addr.Load().(string)
	return addr
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", g.handleStatus)
	mux.HandleFunc("GET /v1/components/{name}", g.handleComponent)
	mux.HandleFunc("GET /v1/health", g.handleHealth)
	mux.HandleFunc("POST /v1/publish", g.handlePublish)
	mux.HandleFunc("GET /v1/status/ws", g.handleStatusStream)
	if g.metrics != nil {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}
}
