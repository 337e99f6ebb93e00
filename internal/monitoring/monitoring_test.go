package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
	"github.com/shizukutanaka/smartplug/internal/signals"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.MonitoringChanged(true)
	m.TickCompleted("ok")
	m.TickCompleted("ok")
	m.TickCompleted("failed")
	m.DiscoveryCompleted(nil)
	m.DiscoveryCompleted(apperrors.New(apperrors.KindDiscovery, "discover", "timeout"))
	m.CommandCompleted("automatic", true, nil)
	m.CommandCompleted("manual", false, errors.New("plain"))
	m.SignalObserved(signals.Signal{
		Battery:          signals.Battery{Percent: 42, Charging: true},
		BatteryAvailable: true,
		AppRunning:       true,
	})
	m.OutletObserved(true)

	assert.Equal(t, 1.0, value(t, m, "smartplug_monitoring_enabled", nil))
	assert.Equal(t, 2.0, value(t, m, "smartplug_ticks_total", map[string]string{"result": "ok"}))
	assert.Equal(t, 1.0, value(t, m, "smartplug_ticks_total", map[string]string{"result": "failed"}))
	assert.Equal(t, 1.0, value(t, m, "smartplug_discoveries_total", map[string]string{"result": "discovery"}))
	assert.Equal(t, 1.0, value(t, m, "smartplug_commands_total",
		map[string]string{"source": "automatic", "state": "on", "result": "ok"}))
	assert.Equal(t, 1.0, value(t, m, "smartplug_commands_total",
		map[string]string{"source": "manual", "state": "off", "result": "error"}))
	assert.Equal(t, 42.0, value(t, m, "smartplug_battery_percent", nil))
	assert.Equal(t, 1.0, value(t, m, "smartplug_battery_charging", nil))
	assert.Equal(t, 1.0, value(t, m, "smartplug_monitored_app_running", nil))
	assert.Equal(t, 1.0, value(t, m, "smartplug_outlet_on", nil))

	// An unreadable battery keeps the last charge.
	m.SignalObserved(signals.Signal{})
	assert.Equal(t, 42.0, value(t, m, "smartplug_battery_percent", nil))
	assert.Equal(t, 0.0, value(t, m, "smartplug_battery_available", nil))
}

// value reads one gauge or counter sample from the registry.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestRouter(t *testing.T) {
	m := NewMetrics()
	m.TickCompleted("ok")
	last := time.Now().Add(-3 * time.Minute)
	srv := NewServer(zaptest.NewLogger(t), "127.0.0.1:0", m, func() Status {
		return Status{Monitoring: true, LastCommandAt: last}
	})
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `smartplug_ticks_total{result="ok"} 1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Monitoring)
	assert.Equal(t, "3 minutes ago", health.LastCommand)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(zaptest.NewLogger(t), ln.Addr().String(), NewMetrics(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, strings.Contains(body, `"monitoring":false`))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
