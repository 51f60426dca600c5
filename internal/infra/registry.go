package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

const registryFileName = "monitor.json"

// FileRegistry implements domain.MonitorRegistry with a JSON file in the
// data directory. Writers hold an exclusive lock on a sidecar file so a
// starting monitor and a `stop` command never interleave.
type FileRegistry struct {
	path      string
	processes domain.ProcessTable
}

// NewFileRegistry creates a registry inside dataDir.
func NewFileRegistry(dataDir string, pt domain.ProcessTable) *FileRegistry {
	return &FileRegistry{
		path:      filepath.Join(dataDir, registryFileName),
		processes: pt,
	}
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pt domain.ProcessTable) *FileRegistry {
	return &FileRegistry{path: path, processes: pt}
}

// Path returns the registry file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register saves the monitor entry, replacing any previous one.
func (r *FileRegistry) Register(entry domain.MonitorEntry) error {
	return r.withLock(func() error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return WriteFileAtomic(r.path, data, 0600)
	})
}

// Get returns the saved entry, or domain.ErrNotRegistered.
func (r *FileRegistry) Get() (*domain.MonitorEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotRegistered
		}
		return nil, err
	}

	var entry domain.MonitorEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt registry %s: %w", r.path, err)
	}
	if entry.PID == 0 {
		return nil, domain.ErrNotRegistered
	}
	return &entry, nil
}

// IsAlive checks whether the registered PID is still running.
func (r *FileRegistry) IsAlive() bool {
	entry, err := r.Get()
	if err != nil {
		return false
	}
	return r.processes.IsRunning(entry.PID)
}

// Clear removes the registry file. A missing file is not an error.
func (r *FileRegistry) Clear() error {
	return r.withLock(func() error {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

func (r *FileRegistry) withLock(fn func() error) error {
	if err := EnsureDir(filepath.Dir(r.path)); err != nil {
		return err
	}
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := lockExclusive(lockFile); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = unlock(lockFile) }()

	return fn()
}

// Ensure FileRegistry implements domain.MonitorRegistry.
var _ domain.MonitorRegistry = (*FileRegistry)(nil)
