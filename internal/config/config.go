// Package config loads, validates, persists and hot-reloads the controller
// settings. Consumers read immutable snapshots through Provider.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shizukutanaka/smartplug/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// SMARTPLUG_PLUG_IP_ADDRESS=10.0.0.80.
const EnvPrefix = "SMARTPLUG"

// Config is the complete controller configuration.
type Config struct {
	Plug       PlugConfig       `yaml:"plug"`
	Automation AutomationConfig `yaml:"automation"`
	Display    DisplayConfig    `yaml:"display"`
	Logging    logging.Config   `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// PlugConfig addresses the power strip and bounds every device call.
type PlugConfig struct {
	IPAddress        string        `yaml:"ip_address"`
	OutletIndex      int           `yaml:"outlet_index"`
	Port             int           `yaml:"port"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	// MaxRequestsPerSecond paces requests sent to the strip.
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second"`
}

// AutomationConfig drives the polling decision loop.
type AutomationConfig struct {
	BatteryThreshold   int           `yaml:"battery_threshold"`
	MonitoredProcesses []string      `yaml:"monitored_processes"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	StartOnLaunch      bool          `yaml:"start_on_launch"`
}

// DisplayConfig controls the info refresh feeding the front-end.
type DisplayConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// MetricsConfig controls the optional loopback metrics endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfig returns the configuration used when no file exists. Missing
// keys in a file keep these values.
func DefaultConfig() *Config {
	return &Config{
		Plug: PlugConfig{
			IPAddress:            "10.0.0.67",
			OutletIndex:          0,
			Port:                 9999,
			DiscoveryTimeout:     5 * time.Second,
			CommandTimeout:       5 * time.Second,
			SettleDelay:          500 * time.Millisecond,
			MaxRequestsPerSecond: 4,
		},
		Automation: AutomationConfig{
			BatteryThreshold:   20,
			MonitoredProcesses: []string{"chrome.exe", "notepad.exe"},
			PollInterval:       10 * time.Second,
		},
		Display: DisplayConfig{
			RefreshInterval: time.Second,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Automation.MonitoredProcesses = append([]string(nil), c.Automation.MonitoredProcesses...)
	return &out
}

// Provider hands out configuration snapshots. Every call returns a copy the
// caller may keep for the duration of one operation.
type Provider interface {
	Get() *Config
}

// Static is a Provider over a fixed configuration.
type Static struct {
	cfg *Config
}

// NewStatic wraps cfg. The value is copied.
func NewStatic(cfg *Config) *Static {
	return &Static{cfg: cfg.Clone()}
}

// Get returns a copy of the wrapped configuration.
func (s *Static) Get() *Config {
	return s.cfg.Clone()
}

// Load reads path on top of the defaults without env overrides or watching.
// Useful for one-shot commands.
func Load(path string) (*Config, error) {
	cfg, _, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// readFile decodes path over DefaultConfig. A missing file is not an error;
// found reports whether it existed.
func readFile(path string) (cfg *Config, found bool, err error) {
	cfg = DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, true, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return cfg, true, nil
}

// SaveConfig writes cfg to path atomically.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temporary config file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}
	return nil
}
