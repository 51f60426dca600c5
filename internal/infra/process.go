// Package infra implements infrastructure concerns (process, windows, storage).
package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// ProcessTableImpl implements domain.ProcessTable using gopsutil.
type ProcessTableImpl struct {
	self int
}

// NewProcessTable creates a new process table.
func NewProcessTable() *ProcessTableImpl {
	return &ProcessTableImpl{self: os.Getpid()}
}

// Snapshot returns every process whose name can be read. Processes that exit
// or deny access mid-scan are skipped.
func (pt *ProcessTableImpl) Snapshot(ctx context.Context) ([]domain.ProcessRecord, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	records := make([]domain.ProcessRecord, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue // Process may have exited
		}
		records = append(records, domain.ProcessRecord{PID: int(p.Pid), Name: name})
	}
	return records, nil
}

// Terminate sends SIGTERM (TerminateProcess on Windows) without waiting.
// The current process is never terminated.
func (pt *ProcessTableImpl) Terminate(ctx context.Context, pid int) error {
	if pid == pt.self {
		return fmt.Errorf("refusing to terminate self (pid %d)", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}

// IsRunning checks if a PID exists and is running.
func (pt *ProcessTableImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// Ensure ProcessTableImpl implements domain.ProcessTable.
var _ domain.ProcessTable = (*ProcessTableImpl)(nil)
