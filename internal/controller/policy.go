package controller

import "github.com/shizukutanaka/smartplug/internal/signals"

// Decision is the outcome of the automatic power policy for one tick.
type Decision struct {
	// Decided is false when the policy cannot choose, for example because the
	// battery cannot be read.
	Decided bool
	On      bool
	Reason  string
}

// Decide evaluates the power policy. Rules in priority order:
//
//   - monitored app running: ON
//   - battery unreadable: no decision
//   - battery below threshold: ON
//   - battery at 100%: OFF
//   - otherwise keep the outlet as it is
func Decide(sig signals.Signal, threshold int, actualOn bool) Decision {
	switch {
	case sig.AppRunning:
		return Decision{Decided: true, On: true, Reason: "monitored app running"}
	case !sig.BatteryAvailable:
		return Decision{Reason: "battery unavailable"}
	case sig.Battery.Percent < float64(threshold):
		return Decision{Decided: true, On: true, Reason: "battery below threshold"}
	case sig.Battery.Percent >= 100:
		return Decision{Decided: true, On: false, Reason: "battery full"}
	default:
		return Decision{Decided: true, On: actualOn, Reason: "hold"}
	}
}

// shouldIssue applies the debounce: a command is sent only when the outlet
// differs from the decision and the decision was not already the last
// confirmed command.
func shouldIssue(d Decision, actualOn bool, lastKnown Power) bool {
	if !d.Decided || d.On == actualOn {
		return false
	}
	return PowerOf(d.On) != lastKnown
}
