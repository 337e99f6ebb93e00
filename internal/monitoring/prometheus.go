package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
	"github.com/shizukutanaka/smartplug/internal/signals"
)

const namespace = "smartplug"

// Metrics holds the controller's Prometheus collectors on a private
// registry. It satisfies controller.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	monitoring      prometheus.Gauge
	ticks           *prometheus.CounterVec
	discoveries     *prometheus.CounterVec
	commands        *prometheus.CounterVec
	batteryPercent  prometheus.Gauge
	batteryCharging prometheus.Gauge
	batteryPresent  prometheus.Gauge
	appRunning      prometheus.Gauge
	outletOn        prometheus.Gauge
}

// NewMetrics creates and registers every collector. Go runtime and process
// collectors are included.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		monitoring: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring_enabled",
			Help:      "1 while a monitoring session is active",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Automation ticks by result",
		}, []string{"result"}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "Device discoveries by result",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Outlet power commands by source, requested state and result",
		}, []string{"source", "state", "result"}),
		batteryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_percent",
			Help:      "Last battery charge seen by the automation",
		}),
		batteryCharging: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_charging",
			Help:      "1 when the battery is charging or full",
		}),
		batteryPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_available",
			Help:      "1 when the battery could be read",
		}),
		appRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_app_running",
			Help:      "1 when a monitored process is running",
		}),
		outletOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outlet_on",
			Help:      "Last read state of the controlled outlet",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.monitoring,
		m.ticks,
		m.discoveries,
		m.commands,
		m.batteryPercent,
		m.batteryCharging,
		m.batteryPresent,
		m.appRunning,
		m.outletOn,
	)
	return m
}

// Registry exposes the registry for serving and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) MonitoringChanged(enabled bool) {
	m.monitoring.Set(boolValue(enabled))
}

func (m *Metrics) TickCompleted(result string) {
	m.ticks.WithLabelValues(result).Inc()
}

func (m *Metrics) DiscoveryCompleted(err error) {
	m.discoveries.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) CommandCompleted(source string, on bool, err error) {
	state := "off"
	if on {
		state = "on"
	}
	m.commands.WithLabelValues(source, state, resultLabel(err)).Inc()
}

func (m *Metrics) SignalObserved(sig signals.Signal) {
	m.appRunning.Set(boolValue(sig.AppRunning))
	m.batteryPresent.Set(boolValue(sig.BatteryAvailable))
	if sig.BatteryAvailable {
		m.batteryPercent.Set(sig.Battery.Percent)
		m.batteryCharging.Set(boolValue(sig.Battery.Charging))
	}
}

func (m *Metrics) OutletObserved(on bool) {
	m.outletOn.Set(boolValue(on))
}

// resultLabel maps an error to a bounded label value: "ok" or its kind.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperrors.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
