package signals

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/text/cases"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
)

// IsProcessRunning reports whether any running process has one of names,
// compared case-insensitively. An empty names list never matches.
func (r *Reader) IsProcessRunning(ctx context.Context, names []string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}

	running, err := r.processNames(ctx)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindSignalUnavailable, "process_scan", err)
	}
	return matchAny(running, names), nil
}

func matchAny(running, names []string) bool {
	fold := cases.Fold()
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		wanted[fold.String(n)] = struct{}{}
	}
	for _, n := range running {
		if _, ok := wanted[fold.String(n)]; ok {
			return true
		}
	}
	return false
}

// runningProcessNames lists the name of every live process. Processes that
// exit between listing and the name lookup are left out.
func runningProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
