package controller

import "github.com/shizukutanaka/smartplug/internal/signals"

// Tick results reported to Metrics.
const (
	TickOK        = "ok"
	TickSkipped   = "skipped"
	TickUndecided = "undecided"
	TickFailed    = "failed"
)

// Command sources reported to Metrics.
const (
	SourceAutomatic = "automatic"
	SourceManual    = "manual"
)

// Metrics receives controller measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	MonitoringChanged(enabled bool)
	TickCompleted(result string)
	DiscoveryCompleted(err error)
	CommandCompleted(source string, on bool, err error)
	SignalObserved(sig signals.Signal)
	OutletObserved(on bool)
}

type nopMetrics struct{}

func (nopMetrics) MonitoringChanged(bool)               {}
func (nopMetrics) TickCompleted(string)                 {}
func (nopMetrics) DiscoveryCompleted(error)             {}
func (nopMetrics) CommandCompleted(string, bool, error) {}
func (nopMetrics) SignalObserved(signals.Signal)        {}
func (nopMetrics) OutletObserved(bool)                  {}
