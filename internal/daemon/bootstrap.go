package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// ErrNotRunning is returned by StopMonitor when no live monitor is registered.
var ErrNotRunning = errors.New("monitor is not running")

// stopPollInterval is how often StopMonitor checks for process exit.
const stopPollInterval = 100 * time.Millisecond

// DetachedCommand builds a self-exec command that survives the parent.
// It has no stdin/stdout/stderr and runs in its own session or process group.
func DetachedCommand(executable string, args ...string) *exec.Cmd {
	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = detachAttr()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}

// StartDetached re-executes the current binary with args in the background
// and returns the child PID.
func StartDetached(args ...string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	cmd := DetachedCommand(executable, args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", executable, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// StopMonitor terminates the registered background monitor and waits up to
// timeout for it to exit. A stale registry entry is cleared and reported as
// ErrNotRunning.
func StopMonitor(ctx context.Context, registry domain.MonitorRegistry, processes domain.ProcessTable, timeout time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	entry, err := registry.Get()
	if err != nil {
		if errors.Is(err, domain.ErrNotRegistered) {
			return ErrNotRunning
		}
		return err
	}

	if !processes.IsRunning(entry.PID) {
		logger.Info("clearing stale monitor registration", zap.Int("pid", entry.PID))
		if err := registry.Clear(); err != nil {
			logger.Warn("failed to clear registry", zap.Error(err))
		}
		return ErrNotRunning
	}

	if err := processes.Terminate(ctx, entry.PID); err != nil {
		return fmt.Errorf("terminate monitor %d: %w", entry.PID, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()

	for processes.IsRunning(entry.PID) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("monitor %d still running after %s", entry.PID, timeout)
		case <-ticker.C:
		}
	}

	logger.Info("monitor stopped", zap.Int("pid", entry.PID), zap.String("session", entry.SessionID))

	// The monitor clears its own entry on a clean exit.
	if current, err := registry.Get(); err == nil && current.SessionID == entry.SessionID {
		if err := registry.Clear(); err != nil {
			logger.Warn("failed to clear registry", zap.Error(err))
		}
	}
	return nil
}
