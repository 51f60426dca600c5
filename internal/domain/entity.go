// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Frame is one decoded camera image in BGR byte order, row-major.
// Channels is 3 for camera frames and 1 for grayscale test frames.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}
}

// Clone returns a deep copy. Sources may reuse their buffers between reads,
// so anything that outlives the current loop iteration must clone.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = make([]byte, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width == 0 || f.Height == 0 || len(f.Pix) == 0
}

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X, Y, Width, Height int
}

// MotionVerdict is the per-frame output of the motion detector.
type MotionVerdict struct {
	IsMotion  bool
	Area      float64 // Sum of surviving region areas in px²
	Regions   int     // Number of regions above the area floor
	Boxes     []Rect  // Bounding boxes of surviving regions
	WarmingUp bool    // Model still in warm-up; IsMotion forced false
}

// BreachState is the debouncer's timing state.
type BreachState struct {
	LastTrigger time.Time
	Count       int
}

// BreachEvent is a debounced, rate-limited motion event.
type BreachEvent struct {
	ID    string
	Count int
	At    time.Time
}

// ProcessRecord is a snapshot row from the OS process table.
type ProcessRecord struct {
	PID  int
	Name string
}

// WindowHandle identifies a top-level window (X11 window id or HWND).
type WindowHandle uint64

// WindowRecord is a snapshot of one top-level window.
type WindowRecord struct {
	Handle  WindowHandle
	Title   string
	PID     int // 0 when the windowing system does not expose it
	Visible bool
	Enabled bool
}

// Action names used in ActionFailure.
const (
	ActionSnapshotProcesses = "snapshot_processes"
	ActionSnapshotWindows   = "snapshot_windows"
	ActionTerminate         = "terminate"
	ActionMinimize          = "minimize"
)

// ActionFailure records one per-item OS failure during reconciliation.
type ActionFailure struct {
	Action string
	Target string
	Err    string
}

// ReconcileResult captures what happened during a single reconciliation.
// Closed and Minimized only hold items whose OS call succeeded.
type ReconcileResult struct {
	Closed    []string
	Minimized []string
	Failures  []ActionFailure
	StartedAt time.Time
	Duration  time.Duration
}

// BreachRecord is the audit entry written for every dispatched breach.
type BreachRecord struct {
	ID           string
	Count        int
	At           time.Time
	SnapshotPath string
	Closed       []string
	Minimized    []string
	Failures     int
	CompanionOK  bool
}

// MonitorState is the breach state machine state.
type MonitorState string

const (
	StateIdle     MonitorState = "idle"
	StateCooldown MonitorState = "cooldown"
)

// MonitorEntry is what the PID registry stores about a background monitor.
type MonitorEntry struct {
	PID         int    `json:"pid"`
	SessionID   string `json:"session_id"`
	StartedAt   int64  `json:"started_at"`
	CameraIndex int    `json:"camera_index"`
	ConfigPath  string `json:"config_path"`
}

// FeedStatus is what the debug feed overlays on a frame.
type FeedStatus struct {
	Motion      bool
	TestMode    bool
	Detections  int
	Uptime      time.Duration
	Sensitivity float64
	Boxes       []Rect
}
