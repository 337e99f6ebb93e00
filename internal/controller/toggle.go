package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
	"github.com/shizukutanaka/smartplug/internal/logging"
)

// toggle flips the configured outlet. It always discovers the strip afresh
// and closes the session before returning.
func (c *Controller) toggle(ctx context.Context, id string) (target string, outlet int, on bool, err error) {
	cfg := c.cfg.Get()
	outlet = cfg.Plug.OutletIndex
	target = targetKey(cfg.Plug.IPAddress, outlet)
	logger := logging.WithPlug(c.logger, cfg.Plug.IPAddress, outlet).With(zap.String("toggle", id))

	c.status("Discovering smart plugs...")
	plug, err := c.discover(ctx, cfg.Plug.IPAddress)
	if err != nil {
		return target, outlet, false, err
	}
	defer func() {
		if cerr := plug.Close(); cerr != nil {
			logger.Debug("Closing plug session failed", zap.Error(cerr))
		}
	}()
	c.status("Found device: " + plug.Alias())

	if len(plug.Outlets()) == 0 {
		c.status("No child sockets detected. This may not be a power strip!")
		return target, outlet, false, apperrors.New(apperrors.KindConfiguration, "toggle", "no child sockets")
	}
	current, err := plug.Outlet(outlet)
	if err != nil {
		return target, outlet, false, err
	}

	on = !current.On
	cmdCtx, cancel := commandContext(ctx, cfg.Plug)
	defer cancel()
	if err := plug.SetOutletPower(cmdCtx, outlet, on); err != nil {
		return target, outlet, false, fmt.Errorf("toggle outlet %d: %w", outlet, err)
	}
	logger.Debug("Toggle confirmed", zap.Bool("on", on))
	return target, outlet, on, nil
}
