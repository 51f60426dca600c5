// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// FakeProcess is a disposable long-running process started under a chosen
// executable name, so it shows up in the process table as that name.
type FakeProcess struct {
	Name string
	Path string
	cmd  *exec.Cmd
	done chan struct{}
}

// StartFakeProcess copies the system sleep binary to dir/name and runs it.
// Linux truncates process names to 15 characters; keep name shorter.
func StartFakeProcess(dir, name string) (*FakeProcess, error) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		return nil, fmt.Errorf("sleep not found: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := copyExecutable(sleep, path); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, "300")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", path, err)
	}

	p := &FakeProcess{Name: name, Path: path, cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID returns the process ID.
func (p *FakeProcess) PID() int {
	return p.cmd.Process.Pid
}

// Exited reports whether the process has exited and been reaped.
func (p *FakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stop kills the process if it is still running and waits for it.
func (p *FakeProcess) Stop() {
	if p.Exited() {
		return
	}
	_ = p.cmd.Process.Kill()
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
	}
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
