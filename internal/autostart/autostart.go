// Package autostart registers the controller to launch at user login: a
// Run key on Windows, a LaunchAgent on macOS and an XDG autostart entry
// elsewhere.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// AppName is the registry value and desktop entry name.
	AppName = "SmartPlugController"
	// Label is the macOS LaunchAgent label.
	Label = "com.smartplug.controller"
)

// Manager toggles launch-at-login registration.
type Manager interface {
	Enable() error
	Disable() error
	Enabled() (bool, error)
}

// Command returns the command line registered for login: this executable
// with the start subcommand.
func Command() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return []string{exe, "start"}, nil
}

// New returns the Manager for the running platform.
func New(logger *zap.Logger) (Manager, error) {
	args, err := Command()
	if err != nil {
		return nil, err
	}
	return newPlatform(logger.Named("autostart"), args)
}

// fileManager registers by writing a single file, as LaunchAgents and XDG
// autostart both do.
type fileManager struct {
	logger *zap.Logger
	path   string
	render func() ([]byte, error)
}

func (m *fileManager) Enable() error {
	data, err := m.render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create autostart directory: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write autostart entry: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install autostart entry: %w", err)
	}
	m.logger.Info("Autostart enabled", zap.String("path", m.path))
	return nil
}

func (m *fileManager) Disable() error {
	err := os.Remove(m.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove autostart entry: %w", err)
	}
	m.logger.Info("Autostart disabled", zap.String("path", m.path))
	return nil
}

func (m *fileManager) Enabled() (bool, error) {
	_, err := os.Stat(m.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// quoteArgs joins args into a single command line, quoting those with
// spaces.
func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
