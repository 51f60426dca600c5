package domain

import "context"

// FrameSource supplies decoded frames. Read returns io.EOF at end of stream.
type FrameSource interface {
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// SnapshotWriter persists a frame as an image file.
type SnapshotWriter interface {
	Save(frame *Frame, path string) error
}

// ProcessTable handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessTable interface {
	// Snapshot returns the live process table. Never cached.
	Snapshot(ctx context.Context) ([]ProcessRecord, error)

	// Terminate requests termination (SIGTERM / TerminateProcess).
	// It does not wait for the process to exit.
	Terminate(ctx context.Context, pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}

// WindowManager enumerates and manipulates top-level windows.
// Implementations: X11 via xgb, Win32 via user32.
type WindowManager interface {
	// List returns top-level windows. Never cached.
	List(ctx context.Context) ([]WindowRecord, error)

	// Minimize iconifies a window.
	Minimize(handle WindowHandle) error

	// Activate restores a window and brings it to the foreground.
	Activate(handle WindowHandle) error
}

// BreachLog stores the breach audit trail.
// Implementation: SQLCipher encrypted SQLite database.
type BreachLog interface {
	// Record appends one breach.
	Record(ctx context.Context, rec BreachRecord) error

	// Recent returns the newest records first.
	Recent(ctx context.Context, limit int) ([]BreachRecord, error)

	// Count returns the number of stored breaches.
	Count(ctx context.Context) (int, error)

	// Close releases the database connection.
	Close() error
}

// MonitorRegistry tracks a background monitor process.
// Implementation: hidden JSON file guarded by flock.
type MonitorRegistry interface {
	// Register saves the monitor entry.
	Register(entry MonitorEntry) error

	// Get returns the saved entry, or ErrNotRegistered.
	Get() (*MonitorEntry, error)

	// IsAlive checks whether the registered PID is running.
	IsAlive() bool

	// Clear removes the registry file.
	Clear() error

	// Path returns the registry file path (for tests).
	Path() string
}

// KeyStore holds the breach log encryption key.
type KeyStore interface {
	// Load returns the stored key, ErrKeyNotFound when none was stored yet,
	// or ErrKeyCorrupt when the stored key cannot be trusted.
	Load() ([]byte, error)

	// Store persists a new key.
	Store(key []byte) error
}

// AppStarter launches an executable without waiting for it to exit.
type AppStarter interface {
	// Start runs path detached and returns the new PID.
	Start(path string, args ...string) (int, error)
}

// FeedDisplay renders the debug camera feed and reports key presses.
type FeedDisplay interface {
	// Show draws the frame with its status and returns the key pressed
	// meanwhile, or -1.
	Show(frame *Frame, status FeedStatus) int

	// Hide closes the window until the next Show.
	Hide()

	// Close releases the display.
	Close() error
}
