// Package main implements the daemon entry point. It assembles the
// component set, wires it into the dependency scheduler, starts every
// stage in order and shuts the set down in reverse on SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/lbryio/lbry-sdk-sub001/bus"
	"github.com/lbryio/lbry-sdk-sub001/component"
	"github.com/lbryio/lbry-sdk-sub001/config"
	"github.com/lbryio/lbry-sdk-sub001/gateway"
	"github.com/lbryio/lbry-sdk-sub001/manager"
	"github.com/lbryio/lbry-sdk-sub001/metric"
	"github.com/lbryio/lbry-sdk-sub001/store"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "daemon"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	logger.Info("Starting daemon",
		"config_path", cliCfg.ConfigPath,
		"disabled", cfg.Disabled)

	m, err := buildManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}

	return runWithSignalHandling(m, logger, time.Duration(cfg.ShutdownTimeout)*time.Second)
}

// loadConfig merges the config file, defaults and CLI overrides.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cliCfg.ConfigPath != "" {
		cfg, err = config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if cliCfg.LogLevel != "" {
		cfg.LogLevel = cliCfg.LogLevel
	}
	cfg.Disabled = append(cfg.Disabled, cliCfg.disabledComponents()...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildManager assembles the default component set and the scheduler
// over it. Components are constructed before the manager exists, so
// they receive a schedulerRef that is bound to the manager right after
// construction; nothing dereferences it before its own start stage.
func buildManager(cfg *config.Config, logger *slog.Logger) (*manager.Manager, error) {
	metricsRegistry := metric.NewMetricsRegistry()
	ref := &schedulerRef{}

	components := []component.Component{
		bus.New(cfg.NATS, logger),
		store.New(cfg.Store, ref, logger),
		gateway.New(cfg.Gateway, ref, metricsRegistry, logger),
	}

	m, err := manager.New(components,
		manager.WithLogger(logger),
		manager.WithMetrics(metricsRegistry.CoreMetrics()),
		manager.WithSkip(cfg.Disabled...),
		manager.WithConditions(bus.ConnectedCondition()),
	)
	if err != nil {
		return nil, err
	}
	ref.bind(m)
	return m, nil
}

// schedulerRef breaks the construction cycle between the components and
// the manager that schedules them. It satisfies component.Resolver and
// gateway.Scheduler by delegating to the manager bound after New.
type schedulerRef struct {
	m *manager.Manager
}

func (s *schedulerRef) bind(m *manager.Manager) { s.m = m }

func (s *schedulerRef) Has(name string) bool { return s.m.Has(name) }

func (s *schedulerRef) Handle(name string) (any, error) { return s.m.Handle(name) }

func (s *schedulerRef) IsRunning(name string) (bool, error) { return s.m.IsRunning(name) }

func (s *schedulerRef) ComponentStatus() map[string]bool { return s.m.ComponentStatus() }

func (s *schedulerRef) Report() map[string]map[string]any { return s.m.Report() }

func (s *schedulerRef) LastError(name string) (error, error) { return s.m.LastError(name) }

func (s *schedulerRef) Gate(fn func(ctx context.Context) error, components []string, conditions ...string) func(ctx context.Context) error {
	return s.m.Gate(fn, components, conditions...)
}

// runWithSignalHandling starts every stage and blocks until a shutdown
// signal arrives, then stops the set in reverse under a deadline.
func runWithSignalHandling(m *manager.Manager, logger *slog.Logger, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := m.Start(signalCtx); err != nil {
		// Best effort teardown of whatever did come up.
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if stopErr := m.Stop(stopCtx); stopErr != nil {
			logger.Error("Teardown after failed start reported errors", "error", stopErr)
		}
		return fmt.Errorf("start components: %w", err)
	}
	logger.Info("Daemon started")

	<-signalCtx.Done()
	logger.Info("Received shutdown signal")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := m.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop components: %w", err)
	}
	logger.Info("Daemon stopped cleanly")
	return nil
}
