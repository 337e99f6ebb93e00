//go:build darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

func newPlatform(logger *zap.Logger, args []string) (Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("locate home directory: %w", err)
	}
	return newLaunchAgent(logger, filepath.Join(home, "Library", "LaunchAgents"), args), nil
}

func newLaunchAgent(logger *zap.Logger, dir string, args []string) *fileManager {
	return &fileManager{
		logger: logger,
		path:   filepath.Join(dir, Label+".plist"),
		render: func() ([]byte, error) { return launchAgentPlist(args) },
	}
}
