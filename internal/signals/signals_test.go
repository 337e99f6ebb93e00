package signals

import (
	"context"
	"errors"
	"testing"

	"github.com/distatus/battery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
)

func newTestReader(t *testing.T, bats []*battery.Battery, batErr error, procs []string, procErr error) *Reader {
	r := NewReader(zaptest.NewLogger(t))
	r.batteries = func() ([]*battery.Battery, error) { return bats, batErr }
	r.processNames = func(context.Context) ([]string, error) { return procs, procErr }
	return r
}

func bat(current, full float64, state battery.AgnosticState) *battery.Battery {
	return &battery.Battery{Current: current, Full: full, State: battery.State{Raw: state}}
}

func TestReadBattery(t *testing.T) {
	tests := []struct {
		name        string
		batteries   []*battery.Battery
		err         error
		want        Battery
		unavailable bool
	}{
		{
			name:      "single discharging",
			batteries: []*battery.Battery{bat(4500, 50000, battery.Discharging)},
			want:      Battery{Percent: 9},
		},
		{
			name:      "charging",
			batteries: []*battery.Battery{bat(25000, 50000, battery.Charging)},
			want:      Battery{Percent: 50, Charging: true},
		},
		{
			name: "two batteries aggregate",
			batteries: []*battery.Battery{
				bat(10000, 20000, battery.Discharging),
				bat(30000, 30000, battery.Full),
			},
			want: Battery{Percent: 80, Charging: true},
		},
		{
			name:      "overcharged clamps",
			batteries: []*battery.Battery{bat(51000, 50000, battery.Full)},
			want:      Battery{Percent: 100, Charging: true},
		},
		{
			name:        "desktop without battery",
			unavailable: true,
		},
		{
			name:        "platform error",
			err:         errors.New("acpi unavailable"),
			unavailable: true,
		},
		{
			name:      "fatal battery skipped",
			batteries: []*battery.Battery{bat(1, 2, battery.Unknown), bat(20000, 40000, battery.Discharging)},
			err:       battery.Errors{battery.ErrFatal{Err: errors.New("gone")}, nil},
			want:      Battery{Percent: 50},
		},
		{
			name:        "only fatal batteries",
			batteries:   []*battery.Battery{bat(1, 2, battery.Unknown)},
			err:         battery.Errors{battery.ErrFatal{Err: errors.New("gone")}},
			unavailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReader(t, tt.batteries, tt.err, nil, nil)
			got, err := r.ReadBattery(context.Background())
			if tt.unavailable {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.KindSignalUnavailable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsProcessRunning(t *testing.T) {
	running := []string{"systemd", "Chrome.EXE", "bash", "straße"}

	tests := []struct {
		name  string
		names []string
		want  bool
	}{
		{"case insensitive", []string{"chrome.exe"}, true},
		{"unicode folding", []string{"STRASSE"}, true},
		{"not running", []string{"notepad.exe"}, false},
		{"empty set", nil, false},
		{"blank name ignored", []string{""}, false},
	}

	r := newTestReader(t, nil, nil, running, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.IsProcessRunning(context.Background(), tt.names)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsProcessRunningScanError(t *testing.T) {
	r := newTestReader(t, nil, nil, nil, errors.New("permission denied"))
	running, err := r.IsProcessRunning(context.Background(), []string{"chrome.exe"})
	assert.False(t, running)
	assert.True(t, apperrors.Is(err, apperrors.KindSignalUnavailable))
}

func TestRead(t *testing.T) {
	r := newTestReader(t, nil, nil, []string{"notepad.exe"}, nil)
	s := r.Read(context.Background(), []string{"Notepad.exe"})
	assert.False(t, s.BatteryAvailable)
	assert.True(t, s.AppRunning)

	r = newTestReader(t, []*battery.Battery{bat(15, 100, battery.Discharging)}, nil, nil, errors.New("boom"))
	s = r.Read(context.Background(), []string{"chrome.exe"})
	assert.True(t, s.BatteryAvailable)
	assert.Equal(t, 15.0, s.Battery.Percent)
	assert.False(t, s.AppRunning)
}

func TestRunningProcessNamesIncludesSelf(t *testing.T) {
	names, err := runningProcessNames(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}
