package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validator enforces the rules that keep the controller's inputs sane.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs a full validation of the provided Config struct.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.validatePlug(&cfg.Plug); err != nil {
		return fmt.Errorf("plug config: %w", err)
	}
	if err := v.validateAutomation(&cfg.Automation); err != nil {
		return fmt.Errorf("automation config: %w", err)
	}
	if cfg.Display.RefreshInterval < 100*time.Millisecond {
		return errors.New("display config: refresh_interval must be at least 100ms")
	}
	if err := v.validateLogging(cfg); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := v.validateListenAddress(cfg.Metrics.ListenAddr); err != nil {
			return fmt.Errorf("metrics listen_addr: %w", err)
		}
	}
	return nil
}

func (v *Validator) validatePlug(cfg *PlugConfig) error {
	if strings.TrimSpace(cfg.IPAddress) == "" {
		return errors.New("ip_address is required")
	}
	if cfg.OutletIndex < 0 {
		return errors.New("outlet_index cannot be negative")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.DiscoveryTimeout <= 0 {
		return errors.New("discovery_timeout must be positive")
	}
	if cfg.CommandTimeout <= 0 {
		return errors.New("command_timeout must be positive")
	}
	if cfg.SettleDelay < 0 {
		return errors.New("settle_delay cannot be negative")
	}
	if cfg.MaxRequestsPerSecond <= 0 {
		return errors.New("max_requests_per_second must be positive")
	}
	return nil
}

func (v *Validator) validateAutomation(cfg *AutomationConfig) error {
	if cfg.BatteryThreshold < 1 || cfg.BatteryThreshold > 100 {
		return fmt.Errorf("battery_threshold must be between 1 and 100, got %d", cfg.BatteryThreshold)
	}
	if cfg.PollInterval < time.Second {
		return errors.New("poll_interval must be at least 1s")
	}
	for _, name := range cfg.MonitoredProcesses {
		if strings.TrimSpace(name) == "" {
			return errors.New("monitored_processes cannot contain empty names")
		}
	}
	return nil
}

func (v *Validator) validateLogging(cfg *Config) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	validFormats := []string{"json", "console"}
	if !contains(validFormats, cfg.Logging.Format) {
		return fmt.Errorf("invalid log format: %s", cfg.Logging.Format)
	}
	return nil
}

// validateListenAddress checks if a string is a valid network listen address.
func (v *Validator) validateListenAddress(addr string) error {
	if addr == "" {
		return errors.New("address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address format: %s", addr)
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
