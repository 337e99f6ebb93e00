package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
	"github.com/shizukutanaka/smartplug/internal/logging"
)

// sessionPlug is the device state a monitoring session carries between
// ticks. The address and outlet are fixed for the whole session.
type sessionPlug struct {
	id     string
	ip     string
	outlet int
	target string
	handle PlugHandle
}

func (s *sessionPlug) release(logger *zap.Logger) {
	if s.handle == nil {
		return
	}
	if err := s.handle.Close(); err != nil {
		logger.Debug("Closing plug session failed", zap.Error(err))
	}
	s.handle = nil
}

// monitor runs one monitoring session until ctx is done. It returns early
// only when the session cannot start.
func (c *Controller) monitor(ctx context.Context, id string) error {
	cfg := c.cfg.Get()
	s := &sessionPlug{
		id:     id,
		ip:     cfg.Plug.IPAddress,
		outlet: cfg.Plug.OutletIndex,
		target: targetKey(cfg.Plug.IPAddress, cfg.Plug.OutletIndex),
	}
	logger := logging.WithPlug(c.logger, s.ip, s.outlet).With(zap.String("session", id))
	defer s.release(logger)

	c.status("Discovering smart plugs...")
	handle, err := c.discover(ctx, s.ip)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.status(fmt.Sprintf("Error discovering plug: %v", err))
		return err
	}
	s.handle = handle
	c.status("Found device: " + handle.Alias())

	if len(handle.Outlets()) == 0 {
		c.status("No child sockets detected. This may not be a power strip!")
		return apperrors.New(apperrors.KindConfiguration, "monitor", "no child sockets")
	}
	if _, err := handle.Outlet(s.outlet); err != nil {
		c.status(fmt.Sprintf("Error: %v", err))
		return err
	}

	for {
		result := c.tick(ctx, logger, s)
		c.metrics.TickCompleted(result)
		if !sleep(ctx, c.cfg.Get().Automation.PollInterval) {
			logger.Debug("Monitoring session finished")
			return nil
		}
	}
}

// tick runs one pass of the decision loop. Failures are logged and leave
// the session running.
func (c *Controller) tick(ctx context.Context, logger *zap.Logger, s *sessionPlug) string {
	if c.State().ManualOverrideActive {
		logger.Debug("Manual override active, skipping tick")
		return TickSkipped
	}
	cfg := c.cfg.Get()

	if s.handle == nil || s.handle.Stale() {
		s.release(logger)
		handle, err := c.discover(ctx, s.ip)
		if err != nil {
			logger.Warn("Re-discovery failed", zap.Error(err))
			return TickFailed
		}
		logger.Info("Plug re-discovered", zap.String("alias", handle.Alias()))
		s.handle = handle
	}

	if err := s.handle.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return TickSkipped
		}
		logger.Warn("Reading plug state failed", zap.Error(err))
		c.status(fmt.Sprintf("Error: %v", err))
		s.release(logger)
		return TickFailed
	}
	outlet, err := s.handle.Outlet(s.outlet)
	if err != nil {
		logger.Warn("Configured outlet unavailable", zap.Error(err))
		return TickFailed
	}
	c.metrics.OutletObserved(outlet.On)

	sig := c.signals.Read(ctx, cfg.Automation.MonitoredProcesses)
	c.metrics.SignalObserved(sig)

	obs := observation{
		session:   s.id,
		target:    s.target,
		outlet:    s.outlet,
		actualOn:  outlet.On,
		signal:    sig,
		threshold: cfg.Automation.BatteryThreshold,
		reply:     make(chan verdict, 1),
	}
	if !c.post(obs) {
		return TickSkipped
	}
	v := <-obs.reply
	if !v.issue {
		return v.result
	}

	logger.Debug("Switching outlet",
		zap.String("power", PowerOf(v.on).String()),
		zap.String("reason", v.reason),
	)
	cmdCtx, cancel := commandContext(ctx, cfg.Plug)
	err = s.handle.SetOutletPower(cmdCtx, s.outlet, v.on)
	cancel()
	c.post(commandDone{
		session: s.id,
		target:  s.target,
		outlet:  s.outlet,
		on:      v.on,
		reason:  v.reason,
		err:     err,
	})
	logging.LogIf(logger, err, "Power command failed", zap.String("reason", v.reason))
	if err != nil {
		return TickFailed
	}
	return TickOK
}
