package config

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager owns the live configuration of a running controller. Every
// successful load replaces the whole value; readers get copies, so a
// half-applied reload is never observed. It implements Provider.
type Manager struct {
	logger    *zap.Logger
	path      string
	validator *Validator
	env       *EnvLoader

	// reloadDelay lets a burst of writes settle before the file is re-read.
	reloadDelay time.Duration
	watcher     *fileWatcher

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)
}

// NewManager creates a manager for path and loads it once. A missing file
// yields the defaults.
func NewManager(logger *zap.Logger, path string) (*Manager, error) {
	m := &Manager{
		logger:      logger.Named("config"),
		path:        path,
		validator:   NewValidator(),
		env:         NewEnvLoader(EnvPrefix),
		reloadDelay: 500 * time.Millisecond,
	}
	if err := m.Load(); err != nil {
		return nil, fmt.Errorf("initial config load failed: %w", err)
	}
	return m, nil
}

// Path returns the file backing this manager.
func (m *Manager) Path() string {
	return m.path
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Load re-reads the file, applies environment overrides and validates the
// result. On any failure the configuration in effect is kept.
func (m *Manager) Load() error {
	cfg, found, err := readFile(m.path)
	if err != nil {
		return err
	}
	if !found {
		m.logger.Info("Config file not found, using defaults", zap.String("path", m.path))
	}
	if err := m.env.Load(cfg); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := m.apply(cfg); err != nil {
		return err
	}

	m.logger.Info("Configuration loaded",
		zap.String("ip_address", cfg.Plug.IPAddress),
		zap.Int("outlet_index", cfg.Plug.OutletIndex),
		zap.Int("battery_threshold", cfg.Automation.BatteryThreshold),
		zap.Strings("monitored_processes", cfg.Automation.MonitoredProcesses),
		zap.Duration("poll_interval", cfg.Automation.PollInterval),
	)
	return nil
}

// Update changes a copy of the configuration, applies it and writes it to
// the file. An invalid result is rejected without touching either.
func (m *Manager) Update(mutate func(*Config)) error {
	cfg := m.Get()
	mutate(cfg)
	if err := m.apply(cfg); err != nil {
		return err
	}
	return m.Save()
}

// Save writes the current configuration to the file.
func (m *Manager) Save() error {
	if err := SaveConfig(m.Get(), m.path); err != nil {
		return err
	}
	m.logger.Info("Configuration saved", zap.String("path", m.path))
	return nil
}

// OnChange registers fn to receive a copy of every configuration applied
// from now on. Callbacks run in registration order on the goroutine that
// applied the change, so consecutive reloads are seen in order.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) apply(cfg *Config) error {
	if err := m.validator.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	m.mu.Lock()
	m.current = cfg
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg.Clone())
	}
	return nil
}

// StartWatcher starts hot-reloading the file on change. A reload that fails
// validation keeps the previous configuration.
func (m *Manager) StartWatcher() error {
	if m.watcher != nil {
		return fmt.Errorf("config watcher already running")
	}
	w, err := watchFile(m.logger, m.path, m.reloadDelay, func() {
		if err := m.Load(); err != nil {
			m.logger.Error("Failed to hot-reload configuration", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	m.watcher = w
	return nil
}

// StopWatcher stops the file watcher.
func (m *Manager) StopWatcher() {
	if m.watcher != nil {
		m.watcher.stop()
		m.watcher = nil
	}
}
