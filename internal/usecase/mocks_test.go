package usecase

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// mockProcessTable implements domain.ProcessTable for testing
type mockProcessTable struct {
	mu           sync.Mutex
	procs        []domain.ProcessRecord
	snapshotErr  error
	terminateErr map[int]error
	terminated   []int
	snapshots    int
}

func (m *mockProcessTable) Snapshot(ctx context.Context) ([]domain.ProcessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	out := make([]domain.ProcessRecord, len(m.procs))
	copy(out, m.procs)
	return out, nil
}

func (m *mockProcessTable) Terminate(ctx context.Context, pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.terminateErr[pid]; err != nil {
		return err
	}
	m.terminated = append(m.terminated, pid)
	return nil
}

func (m *mockProcessTable) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.procs {
		if p.PID == pid {
			return true
		}
	}
	return false
}

// mockWindowManager implements domain.WindowManager for testing
type mockWindowManager struct {
	wins        []domain.WindowRecord
	listErr     error
	minimizeErr map[domain.WindowHandle]error
	activateErr error
	minimized   []domain.WindowHandle
	activated   []domain.WindowHandle
}

func (m *mockWindowManager) List(ctx context.Context) ([]domain.WindowRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.wins, nil
}

func (m *mockWindowManager) Minimize(h domain.WindowHandle) error {
	if err := m.minimizeErr[h]; err != nil {
		return err
	}
	m.minimized = append(m.minimized, h)
	return nil
}

func (m *mockWindowManager) Activate(h domain.WindowHandle) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	m.activated = append(m.activated, h)
	return nil
}

// mockStarter implements domain.AppStarter for testing
type mockStarter struct {
	pid     int
	err     error
	started []string
}

func (m *mockStarter) Start(path string, args ...string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.started = append(m.started, path)
	return m.pid, nil
}

func visible(h domain.WindowHandle, title string, pid int) domain.WindowRecord {
	return domain.WindowRecord{Handle: h, Title: title, PID: pid, Visible: true, Enabled: true}
}
