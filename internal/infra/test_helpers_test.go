package infra

import (
	"context"
	"os"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// mockProcessTable is a test double for domain.ProcessTable
type mockProcessTable struct {
	runningPIDs map[int]bool
}

func newMockProcessTable() *mockProcessTable {
	return &mockProcessTable{runningPIDs: make(map[int]bool)}
}

func (m *mockProcessTable) Snapshot(ctx context.Context) ([]domain.ProcessRecord, error) {
	return nil, nil
}

func (m *mockProcessTable) Terminate(ctx context.Context, pid int) error {
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessTable) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessTable) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// mockCommandRunner records Start calls and returns the current process
type mockCommandRunner struct {
	startErr error
	calls    [][]string
}

func (m *mockCommandRunner) Start(name string, args ...string) (*os.Process, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	if m.startErr != nil {
		return nil, m.startErr
	}
	return os.FindProcess(os.Getpid())
}
