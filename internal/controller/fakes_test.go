package controller

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shizukutanaka/smartplug/internal/config"
	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
	"github.com/shizukutanaka/smartplug/internal/kasa"
	"github.com/shizukutanaka/smartplug/internal/signals"
)

type setCall struct {
	outlet int
	on     bool
}

// fakeStrip is an in-memory strip implementing DeviceClient.
type fakeStrip struct {
	mu            sync.Mutex
	outlets       []bool
	discoverErr   error
	discoverGate  chan struct{}
	setGate       chan struct{}
	setErr        error
	failRefreshOn map[int]bool
	discovers     int
	refreshes     int
	sets          []setCall
	open          int
}

func newFakeStrip(outlets int) *fakeStrip {
	return &fakeStrip{outlets: make([]bool, outlets), failRefreshOn: map[int]bool{}}
}

func (f *fakeStrip) Discover(ctx context.Context, ip string) (PlugHandle, error) {
	f.mu.Lock()
	f.discovers++
	gate, err := f.discoverGate, f.discoverErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.KindDiscovery, "discover", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.open++
	f.mu.Unlock()
	return &fakeHandle{strip: f}, nil
}

func (f *fakeStrip) with(fn func(f *fakeStrip)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// blockDiscover makes Discover wait until the returned func is called.
func (f *fakeStrip) blockDiscover() func() {
	gate := make(chan struct{})
	f.with(func(f *fakeStrip) { f.discoverGate = gate })
	return func() {
		f.with(func(f *fakeStrip) { f.discoverGate = nil })
		close(gate)
	}
}

// blockSet makes SetOutletPower wait until the returned func is called.
func (f *fakeStrip) blockSet() func() {
	gate := make(chan struct{})
	f.with(func(f *fakeStrip) { f.setGate = gate })
	return func() {
		f.with(func(f *fakeStrip) { f.setGate = nil })
		close(gate)
	}
}

func (f *fakeStrip) outlet(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outlets[i]
}

func (f *fakeStrip) setCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setCall(nil), f.sets...)
}

func (f *fakeStrip) discoverCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discovers
}

func (f *fakeStrip) openHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

type fakeHandle struct {
	strip *fakeStrip

	mu     sync.Mutex
	stale  bool
	closed bool
}

func (h *fakeHandle) Alias() string { return "Test Strip" }

func (h *fakeHandle) Outlets() []kasa.Outlet {
	h.strip.mu.Lock()
	defer h.strip.mu.Unlock()
	out := make([]kasa.Outlet, len(h.strip.outlets))
	for i, on := range h.strip.outlets {
		out[i] = kasa.Outlet{Index: i, On: on}
	}
	return out
}

func (h *fakeHandle) Outlet(index int) (kasa.Outlet, error) {
	outlets := h.Outlets()
	if index < 0 || index >= len(outlets) {
		return kasa.Outlet{}, apperrors.New(apperrors.KindConfiguration, "outlet", "outlet index out of range")
	}
	return outlets[index], nil
}

func (h *fakeHandle) Refresh(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stale {
		return apperrors.New(apperrors.KindStaleHandle, "refresh", "stale")
	}
	h.strip.mu.Lock()
	h.strip.refreshes++
	fail := h.strip.failRefreshOn[h.strip.refreshes]
	h.strip.mu.Unlock()
	if fail {
		h.stale = true
		return apperrors.Wrap(apperrors.KindStaleHandle, "refresh", errors.New("connection reset"))
	}
	return nil
}

func (h *fakeHandle) SetOutletPower(ctx context.Context, index int, on bool) error {
	h.strip.mu.Lock()
	h.strip.sets = append(h.strip.sets, setCall{outlet: index, on: on})
	gate, err := h.strip.setGate, h.strip.setErr
	h.strip.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return apperrors.Wrap(apperrors.KindCommand, "set_outlet_power", ctx.Err())
		}
	}
	if err != nil {
		return err
	}
	h.strip.with(func(f *fakeStrip) { f.outlets[index] = on })
	return nil
}

func (h *fakeHandle) Stale() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.stale = true
	h.strip.with(func(f *fakeStrip) { f.open-- })
	return nil
}

// fakeSignals replays a script of samples, repeating the last one.
type fakeSignals struct {
	mu     sync.Mutex
	script []signals.Signal
	reads  int
}

func newFakeSignals(script ...signals.Signal) *fakeSignals {
	return &fakeSignals{script: script}
}

func (s *fakeSignals) Read(ctx context.Context, names []string) signals.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.reads++
	return s.script[i]
}

func (s *fakeSignals) set(sig signals.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = s.script[:0]
	s.script = append(s.script, sig)
	s.reads = 0
}

func (s *fakeSignals) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func battery(percent float64) signals.Signal {
	return signals.Signal{Battery: signals.Battery{Percent: percent}, BatteryAvailable: true}
}

func noBattery() signals.Signal {
	return signals.Signal{}
}

func appOnly() signals.Signal {
	return signals.Signal{AppRunning: true}
}

func appRunning(sig signals.Signal) signals.Signal {
	sig.AppRunning = true
	return sig
}

// recordingNotifier keeps every event for assertions.
type recordingNotifier struct {
	mu         sync.Mutex
	messages   []string
	infos      []Info
	monitoring []bool
}

func (n *recordingNotifier) StatusMessage(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *recordingNotifier) InfoUpdate(info Info) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, info)
}

func (n *recordingNotifier) MonitoringStateChanged(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.monitoring = append(n.monitoring, enabled)
}

// count returns how many status messages contain substr.
func (n *recordingNotifier) count(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) monitoringEvents() []bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]bool(nil), n.monitoring...)
}

func (n *recordingNotifier) infoCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.infos)
}

// countingMetrics counts ticks by result.
type countingMetrics struct {
	nopMetrics

	mu    sync.Mutex
	ticks map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ticks: map[string]int{}}
}

func (m *countingMetrics) TickCompleted(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[result]++
}

func (m *countingMetrics) tickCount(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks[result]
}

// mutableConfig is a Provider whose config tests can edit mid-run.
type mutableConfig struct {
	mu  sync.Mutex
	cfg *config.Config
}

func (p *mutableConfig) Get() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Clone()
}

func (p *mutableConfig) update(fn func(*config.Config)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.cfg)
}
