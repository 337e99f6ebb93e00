//go:build windows

package autostart

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/registry"
)

const runKey = `Software\Microsoft\Windows\CurrentVersion\Run`

type runKeyManager struct {
	logger  *zap.Logger
	command string
}

func newPlatform(logger *zap.Logger, args []string) (Manager, error) {
	return &runKeyManager{logger: logger, command: quoteArgs(args)}, nil
}

func (m *runKeyManager) Enable() error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open run key: %w", err)
	}
	defer key.Close()

	if err := key.SetStringValue(AppName, m.command); err != nil {
		return fmt.Errorf("set run value: %w", err)
	}
	m.logger.Info("Autostart enabled", zap.String("command", m.command))
	return nil
}

func (m *runKeyManager) Disable() error {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open run key: %w", err)
	}
	defer key.Close()

	if err := key.DeleteValue(AppName); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete run value: %w", err)
	}
	m.logger.Info("Autostart disabled")
	return nil
}

func (m *runKeyManager) Enabled() (bool, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open run key: %w", err)
	}
	defer key.Close()

	_, _, err = key.GetStringValue(AppName)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, registry.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
