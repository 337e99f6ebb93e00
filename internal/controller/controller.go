// Package controller runs the power-strip automation. A single supervisor
// goroutine (Run) owns the controller State; monitoring sessions, manual
// toggles and the display poller run in their own goroutines and talk to the
// supervisor with messages.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shizukutanaka/smartplug/internal/config"
	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
	"github.com/shizukutanaka/smartplug/internal/kasa"
	"github.com/shizukutanaka/smartplug/internal/logging"
	"github.com/shizukutanaka/smartplug/internal/signals"
)

var (
	// ErrToggleInProgress rejects a manual toggle while another one runs.
	ErrToggleInProgress = errors.New("toggle already in progress")
	// ErrStopped is returned when the supervisor is no longer running.
	ErrStopped = errors.New("controller stopped")
)

// PlugHandle is an open session with one discovered strip.
type PlugHandle interface {
	Alias() string
	Outlets() []kasa.Outlet
	Outlet(index int) (kasa.Outlet, error)
	Refresh(ctx context.Context) error
	SetOutletPower(ctx context.Context, index int, on bool) error
	Stale() bool
	Close() error
}

// DeviceClient finds the strip at an address.
type DeviceClient interface {
	Discover(ctx context.Context, ip string) (PlugHandle, error)
}

// SignalSource samples host conditions.
type SignalSource interface {
	Read(ctx context.Context, processNames []string) signals.Signal
}

type kasaDevices struct {
	client *kasa.Client
}

// KasaDevices adapts a kasa.Client to DeviceClient.
func KasaDevices(client *kasa.Client) DeviceClient {
	return kasaDevices{client: client}
}

func (k kasaDevices) Discover(ctx context.Context, ip string) (PlugHandle, error) {
	plug, err := k.client.Discover(ctx, ip)
	if err != nil {
		return nil, err
	}
	return plug, nil
}

// Option customizes a Controller.
type Option func(*Controller)

// WithMetrics reports measurements to m.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithNotifier sends front-end events to n.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// Controller arbitrates automatic and manual control of one outlet.
type Controller struct {
	logger   *zap.Logger
	cfg      config.Provider
	devices  DeviceClient
	signals  SignalSource
	notifier Notifier
	metrics  Metrics

	intents chan interface{}
	done    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time

	// Owned by the Run goroutine.
	state                    State
	session                  *sessionRef
	activeToggle             *toggleJob
	pendingToggle            *toggleJob
	lastKnownKey             string
	batteryUnavailableLogged bool
}

type sessionRef struct {
	id     string
	cancel context.CancelFunc
}

type toggleJob struct {
	id     string
	result chan toggleResult
}

type toggleResult struct {
	on  bool
	err error
}

// Intents handled by the supervisor.
type (
	startIntent struct{}
	stopIntent  struct{}
	queryIntent struct {
		reply chan State
	}
	toggleIntent struct {
		accepted chan error
		result   chan toggleResult
	}
	toggleDone struct {
		id     string
		target string
		outlet int
		on     bool
		err    error
	}
	sessionEnded struct {
		id  string
		err error
	}
	observation struct {
		session   string
		target    string
		outlet    int
		actualOn  bool
		signal    signals.Signal
		threshold int
		reply     chan verdict
	}
	commandDone struct {
		session string
		target  string
		outlet  int
		on      bool
		reason  string
		err     error
	}
)

type verdict struct {
	issue  bool
	on     bool
	reason string
	result string
}

// New creates a controller. Run must be started before any other method is
// used.
func New(logger *zap.Logger, cfg config.Provider, devices DeviceClient, source SignalSource, opts ...Option) *Controller {
	c := &Controller{
		logger:   logging.WithComponent(logger, "controller"),
		cfg:      cfg,
		devices:  devices,
		signals:  source,
		notifier: nopNotifier{},
		metrics:  nopMetrics{},
		intents:  make(chan interface{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run is the supervisor loop. It returns when ctx is done, after every
// session and toggle goroutine has exited.
func (c *Controller) Run(ctx context.Context) error {
	defer c.wg.Wait()
	defer close(c.done)

	c.logger.Debug("Supervisor started")
	for {
		select {
		case <-ctx.Done():
			if c.session != nil {
				c.session.cancel()
				c.session = nil
			}
			c.logger.Debug("Supervisor stopped")
			return nil
		case in := <-c.intents:
			c.handle(ctx, in)
		}
	}
}

func (c *Controller) handle(ctx context.Context, in interface{}) {
	switch in := in.(type) {
	case startIntent:
		c.startSession(ctx)
	case stopIntent:
		c.stopSession()
	case queryIntent:
		in.reply <- c.state
	case toggleIntent:
		c.acceptToggle(ctx, in)
	case toggleDone:
		c.finishToggle(in)
	case sessionEnded:
		c.sessionEnded(in)
	case observation:
		in.reply <- c.observe(in)
	case commandDone:
		c.finishCommand(ctx, in)
	default:
		c.logger.Error("Unknown intent", zap.String("type", fmt.Sprintf("%T", in)))
	}
}

// post delivers an intent unless the supervisor has exited.
func (c *Controller) post(in interface{}) bool {
	select {
	case c.intents <- in:
		return true
	case <-c.done:
		return false
	}
}

// StartMonitoring begins a monitoring session. It does nothing when one is
// already running.
func (c *Controller) StartMonitoring() {
	c.post(startIntent{})
}

// StopMonitoring ends the monitoring session. A pending sleep or read is
// interrupted; a power command already sent is allowed to finish.
func (c *Controller) StopMonitoring() {
	c.post(stopIntent{})
}

// IsMonitoring reports whether a monitoring session is active.
func (c *Controller) IsMonitoring() bool {
	return c.State().MonitoringEnabled
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	q := queryIntent{reply: make(chan State, 1)}
	if !c.post(q) {
		return State{}
	}
	return <-q.reply
}

// Toggle flips the configured outlet and returns its new state. It is
// rejected with ErrToggleInProgress while another toggle runs. While it runs
// the automation makes no decisions.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	req := toggleIntent{
		accepted: make(chan error, 1),
		result:   make(chan toggleResult, 1),
	}
	select {
	case c.intents <- req:
	case <-c.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	if err := <-req.accepted; err != nil {
		return false, err
	}
	select {
	case res := <-req.result:
		return res.on, res.err
	case <-c.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Controller) startSession(ctx context.Context) {
	if c.state.MonitoringEnabled {
		return
	}
	id := uuid.NewString()
	sessCtx, cancel := context.WithCancel(ctx)
	c.session = &sessionRef{id: id, cancel: cancel}
	c.state.MonitoringEnabled = true
	c.state.SessionID = id
	c.state.AppObserved = false
	c.batteryUnavailableLogged = false

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.monitor(sessCtx, id)
		c.post(sessionEnded{id: id, err: err})
	}()

	c.metrics.MonitoringChanged(true)
	c.notifier.MonitoringStateChanged(true)
	c.status("Monitoring started...", zap.String("session", id))
}

func (c *Controller) stopSession() {
	if !c.state.MonitoringEnabled {
		return
	}
	id := c.endSession()
	c.metrics.MonitoringChanged(false)
	c.notifier.MonitoringStateChanged(false)
	c.status("Monitoring stopped.", zap.String("session", id))
}

func (c *Controller) endSession() string {
	var id string
	if c.session != nil {
		id = c.session.id
		c.session.cancel()
		c.session = nil
	}
	c.state.MonitoringEnabled = false
	c.state.SessionID = ""
	return id
}

// sessionEnded handles a session that returned on its own, which only
// happens when it could not start.
func (c *Controller) sessionEnded(in sessionEnded) {
	if c.session == nil || c.session.id != in.id {
		return
	}
	c.endSession()
	c.logger.Warn("Monitoring session ended",
		zap.String("session", in.id),
		zap.String("severity", string(apperrors.KindOf(in.err).Severity())),
		zap.Error(in.err),
	)
	c.metrics.MonitoringChanged(false)
	c.notifier.MonitoringStateChanged(false)
}

// observe decides what one tick should do with the outlet. It seeds the last
// known state, reports app transitions and claims the command slot when a
// command is due.
func (c *Controller) observe(o observation) verdict {
	if c.session == nil || c.session.id != o.session {
		return verdict{result: TickSkipped}
	}
	if c.state.ManualOverrideActive {
		return verdict{result: TickSkipped}
	}

	if c.lastKnownKey != o.target || c.state.LastKnownPlugState == PowerUnknown {
		c.lastKnownKey = o.target
		c.state.LastKnownPlugState = PowerOf(o.actualOn)
	}

	running := o.signal.AppRunning
	if !c.state.AppObserved || c.state.LastObservedAppRunning != running {
		if running {
			c.status("User-specified app(s) are running.")
		} else {
			c.status("User-specified app(s) are closed.")
		}
		c.state.AppObserved = true
		c.state.LastObservedAppRunning = running
	}

	if o.signal.BatteryAvailable {
		c.batteryUnavailableLogged = false
	} else if !c.batteryUnavailableLogged {
		c.batteryUnavailableLogged = true
		c.status("No battery information available.")
	}

	d := Decide(o.signal, o.threshold, o.actualOn)
	if !d.Decided {
		return verdict{result: TickUndecided}
	}
	if !shouldIssue(d, o.actualOn, c.state.LastKnownPlugState) {
		return verdict{result: TickOK}
	}
	if c.state.Busy() {
		return verdict{result: TickSkipped}
	}
	c.state.CommandInFlight = true
	return verdict{issue: true, on: d.On, reason: d.Reason, result: TickOK}
}

func (c *Controller) finishCommand(ctx context.Context, in commandDone) {
	c.state.CommandInFlight = false
	c.metrics.CommandCompleted(SourceAutomatic, in.on, in.err)

	if in.err != nil {
		c.status(fmt.Sprintf("Error: %v", in.err), zap.Int("outlet", in.outlet))
	} else {
		c.lastKnownKey = in.target
		c.state.LastKnownPlugState = PowerOf(in.on)
		c.state.LastCommandAt = c.now()
		c.status(fmt.Sprintf("Plug %d turned %s (Condition met).", in.outlet, PowerOf(in.on)),
			zap.String("reason", in.reason))
	}

	if job := c.pendingToggle; job != nil {
		c.pendingToggle = nil
		c.launchToggle(ctx, job)
	}
}

func (c *Controller) acceptToggle(ctx context.Context, in toggleIntent) {
	if c.state.ToggleInProgress {
		c.status("Toggle already in progress.")
		in.accepted <- ErrToggleInProgress
		return
	}
	c.state.ToggleInProgress = true
	c.state.ManualOverrideActive = true
	job := &toggleJob{id: uuid.NewString(), result: in.result}
	in.accepted <- nil

	if c.state.CommandInFlight {
		c.logger.Debug("Toggle waiting for automatic command", zap.String("toggle", job.id))
		c.pendingToggle = job
		return
	}
	c.launchToggle(ctx, job)
}

func (c *Controller) launchToggle(ctx context.Context, job *toggleJob) {
	c.activeToggle = job
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		done := toggleDone{id: job.id}
		defer func() { c.post(done) }()
		done.target, done.outlet, done.on, done.err = c.toggle(ctx, job.id)
	}()
}

func (c *Controller) finishToggle(in toggleDone) {
	job := c.activeToggle
	c.activeToggle = nil
	c.state.ToggleInProgress = false
	c.state.ManualOverrideActive = false
	c.metrics.CommandCompleted(SourceManual, in.on, in.err)

	// A manual change leaves the last known state alone so the debounce keeps
	// the automation from undoing it until conditions change.
	if in.err != nil {
		c.status(fmt.Sprintf("Error: %v", in.err), zap.String("toggle", in.id))
	} else {
		c.state.LastCommandAt = c.now()
		c.status(fmt.Sprintf("Plug %d is now %s.", in.outlet, PowerOf(in.on)),
			zap.String("toggle", in.id),
			zap.String("target", in.target),
		)
	}

	if job != nil {
		job.result <- toggleResult{on: in.on, err: in.err}
	}
}

// status logs a front-end message and forwards it to the notifier.
func (c *Controller) status(text string, fields ...zap.Field) {
	c.logger.Info(text, fields...)
	c.notifier.StatusMessage(text)
}

// targetKey identifies the outlet a last known state belongs to.
func targetKey(ip string, outlet int) string {
	return ip + "#" + strconv.Itoa(outlet)
}

// commandContext bounds a power command. It is detached from ctx so stopping
// monitoring does not abort a command already sent to the device.
func commandContext(ctx context.Context, plug config.PlugConfig) (context.Context, context.CancelFunc) {
	budget := 2*plug.CommandTimeout + plug.SettleDelay
	return context.WithTimeout(context.WithoutCancel(ctx), budget)
}

func (c *Controller) discover(ctx context.Context, ip string) (PlugHandle, error) {
	plug, err := c.devices.Discover(ctx, ip)
	c.metrics.DiscoveryCompleted(err)
	return plug, err
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
