package infra

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Start(name string, args ...string) (*os.Process, error)
}

// RealCommandRunner executes real system commands
type RealCommandRunner struct{}

// Start launches a command without waiting for it.
func (r *RealCommandRunner) Start(name string, args ...string) (*os.Process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Process, nil
}

// AppStarterImpl implements domain.AppStarter on top of a CommandRunner.
type AppStarterImpl struct {
	runner CommandRunner
	goos   string
}

// NewAppStarter creates a starter that runs real commands.
func NewAppStarter() *AppStarterImpl {
	return &AppStarterImpl{runner: &RealCommandRunner{}, goos: runtime.GOOS}
}

// NewAppStarterWithRunner creates a starter with an injectable runner (for testing).
func NewAppStarterWithRunner(runner CommandRunner, goos string) *AppStarterImpl {
	return &AppStarterImpl{runner: runner, goos: goos}
}

// Start launches path detached. macOS bundles go through `open -a`.
func (s *AppStarterImpl) Start(path string, args ...string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, fmt.Errorf("empty launch path")
	}

	name, argv := path, args
	if s.goos == "darwin" && strings.HasSuffix(strings.TrimSuffix(path, "/"), ".app") {
		name = "open"
		argv = append([]string{"-a", path}, args...)
	}

	proc, err := s.runner.Start(name, argv...)
	if err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", path, err)
	}
	pid := proc.Pid
	// The child is not ours to reap.
	_ = proc.Release()
	return pid, nil
}

// Ensure AppStarterImpl implements domain.AppStarter.
var _ domain.AppStarter = (*AppStarterImpl)(nil)
