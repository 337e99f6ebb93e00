// Package signals reads the host conditions the controller reacts to: the
// battery charge and whether any monitored process is running.
package signals

import (
	"context"
	"errors"
	"math"

	"github.com/distatus/battery"
	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
)

// Battery is the aggregate charge of every battery in the host.
type Battery struct {
	Percent  float64
	Charging bool
}

// Signal is one sample of host conditions. It is taken fresh on every tick
// and never stored.
type Signal struct {
	Battery          Battery
	BatteryAvailable bool
	AppRunning       bool
}

// Reader samples battery and process state from the operating system.
type Reader struct {
	logger       *zap.Logger
	batteries    func() ([]*battery.Battery, error)
	processNames func(ctx context.Context) ([]string, error)
}

// NewReader creates a Reader backed by the platform battery and process APIs.
func NewReader(logger *zap.Logger) *Reader {
	return &Reader{
		logger:       logger.Named("signals"),
		batteries:    battery.GetAll,
		processNames: runningProcessNames,
	}
}

// ReadBattery aggregates all batteries into one charge level. A host without
// a readable battery yields a signal-unavailable error.
func (r *Reader) ReadBattery(ctx context.Context) (Battery, error) {
	const op = "read_battery"

	if err := ctx.Err(); err != nil {
		return Battery{}, apperrors.Wrap(apperrors.KindSignalUnavailable, op, err)
	}

	list, err := r.batteries()
	var perBattery battery.Errors
	if err != nil && !errors.As(err, &perBattery) {
		return Battery{}, apperrors.Wrap(apperrors.KindSignalUnavailable, op, err)
	}

	var current, full float64
	var charging, found bool
	for i, b := range list {
		if b == nil {
			continue
		}
		if i < len(perBattery) && perBattery[i] != nil {
			var fatal battery.ErrFatal
			if errors.As(perBattery[i], &fatal) {
				r.logger.Debug("Skipping unreadable battery", zap.Int("battery", i), zap.Error(perBattery[i]))
				continue
			}
		}
		if b.Full <= 0 {
			continue
		}
		found = true
		current += b.Current
		full += b.Full
		switch b.State.Raw {
		case battery.Charging, battery.Full:
			charging = true
		}
	}
	if !found {
		return Battery{}, apperrors.New(apperrors.KindSignalUnavailable, op, "no battery present")
	}

	percent := math.Round(current / full * 100)
	if percent > 100 {
		percent = 100
	}
	return Battery{Percent: percent, Charging: charging}, nil
}

// Read samples both conditions. An unreadable battery leaves
// BatteryAvailable false; an unreadable process table reports no app running.
func (r *Reader) Read(ctx context.Context, names []string) Signal {
	var s Signal

	b, err := r.ReadBattery(ctx)
	if err == nil {
		s.Battery = b
		s.BatteryAvailable = true
	}

	running, err := r.IsProcessRunning(ctx, names)
	if err != nil {
		r.logger.Debug("Process scan failed", zap.Error(err))
	}
	s.AppRunning = running
	return s
}
