package supervisor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessFinder looks up running processes by executable name
type ProcessFinder interface {
	FindByName(ctx context.Context, name string) ([]int32, error)
}

// ProcessTable searches the operating system's process table
type ProcessTable struct{}

// FindByName returns the pids of processes whose name matches, ignoring
// case and a trailing .exe
func (ProcessTable) FindByName(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	want := normalizeName(name)
	var pids []int32
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// Exited or not ours to inspect
			continue
		}
		if normalizeName(n) == want {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

func normalizeName(name string) string {
	name = strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(name, ".exe")
}
