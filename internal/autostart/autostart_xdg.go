//go:build !windows && !darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

func newPlatform(logger *zap.Logger, args []string) (Manager, error) {
	dir, err := xdgAutostartDir()
	if err != nil {
		return nil, err
	}
	return newXDG(logger, dir, args), nil
}

func newXDG(logger *zap.Logger, dir string, args []string) *fileManager {
	return &fileManager{
		logger: logger,
		path:   filepath.Join(dir, "smartplug.desktop"),
		render: func() ([]byte, error) { return desktopEntry(args), nil },
	}
}

func xdgAutostartDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "autostart"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "autostart"), nil
}
