package controller

import (
	"context"
	"time"
)

// minRefresh keeps a misconfigured display poller from spinning.
const minRefresh = 100 * time.Millisecond

// StartDisplay samples host conditions every display refresh interval and
// reports them with InfoUpdate until ctx is done. It never touches the
// outlet or the controller state.
func (c *Controller) StartDisplay(ctx context.Context) error {
	for {
		cfg := c.cfg.Get()
		sig := c.signals.Read(ctx, cfg.Automation.MonitoredProcesses)
		c.notifier.InfoUpdate(infoFrom(sig))

		interval := cfg.Display.RefreshInterval
		if interval < minRefresh {
			interval = minRefresh
		}
		if !sleep(ctx, interval) {
			return nil
		}
	}
}
