package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/shizukutanaka/smartplug/internal/controller"
)

// control is the part of the controller the terminal front-end drives.
type control interface {
	StartMonitoring()
	StopMonitoring()
	IsMonitoring() bool
	Toggle(ctx context.Context) (bool, error)
	State() controller.State
}

// frontEnd plays the UI role: it is the only goroutine that writes to the
// terminal and it consumes controller events in order.
type frontEnd struct {
	out  io.Writer
	ctrl control
	quit func()

	lastInfo *controller.Info
	toggles  sync.WaitGroup
}

func newFrontEnd(out io.Writer, ctrl control, quit func()) *frontEnd {
	return &frontEnd{out: out, ctrl: ctrl, quit: quit}
}

// run prints events and executes typed commands until ctx is done. A nil
// lines channel disables input.
func (f *frontEnd) run(ctx context.Context, events <-chan controller.Event, lines <-chan string) error {
	defer f.toggles.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			f.render(e)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			f.dispatch(ctx, line)
		}
	}
}

func (f *frontEnd) render(e controller.Event) {
	ts := e.At.Format("15:04:05")
	switch e.Kind {
	case controller.EventStatus:
		fmt.Fprintf(f.out, "[%s] %s\n", ts, e.Message)
	case controller.EventMonitoring:
		state := "stopped"
		if e.Monitoring {
			state = "running"
		}
		fmt.Fprintf(f.out, "[%s] Monitoring %s\n", ts, state)
	case controller.EventInfo:
		if f.lastInfo != nil && *f.lastInfo == e.Info {
			return
		}
		info := e.Info
		f.lastInfo = &info
		fmt.Fprintf(f.out, "[%s] %s\n", ts, formatInfo(info))
	}
}

func (f *frontEnd) dispatch(ctx context.Context, line string) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
	case "m", "monitor":
		if f.ctrl.IsMonitoring() {
			f.ctrl.StopMonitoring()
		} else {
			f.ctrl.StartMonitoring()
		}
	case "t", "toggle":
		// The outcome arrives as status events.
		f.toggles.Add(1)
		go func() {
			defer f.toggles.Done()
			f.ctrl.Toggle(ctx)
		}()
	case "s", "state", "status":
		fmt.Fprintln(f.out, formatState(f.ctrl.State()))
	case "q", "quit", "exit":
		f.quit()
	case "h", "help", "?":
		fmt.Fprintln(f.out, "commands: m (monitoring on/off), t (toggle outlet), s (state), q (quit)")
	default:
		fmt.Fprintf(f.out, "unknown command %q, type h for help\n", line)
	}
}

func formatInfo(info controller.Info) string {
	battery := "n/a"
	if info.BatteryAvailable {
		battery = fmt.Sprintf("%.0f%%", info.BatteryPercent)
		if info.Charging {
			battery = "⚡ " + battery
		}
	}
	app := "No"
	if info.AppRunning {
		app = "Yes"
	}
	return fmt.Sprintf("Battery: %s | App running: %s", battery, app)
}

func formatState(st controller.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "monitoring=%v manual_override=%v toggle_in_progress=%v plug=%s",
		st.MonitoringEnabled, st.ManualOverrideActive, st.ToggleInProgress, st.LastKnownPlugState)
	if !st.LastCommandAt.IsZero() {
		fmt.Fprintf(&b, " last_command=%s", humanize.Time(st.LastCommandAt))
	}
	return b.String()
}

// readLines forwards stdin lines until EOF, then closes the channel.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
