// Package daemon runs the camera monitoring session and its background
// breach responses.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/privguard/internal/breach"
	"github.com/eliteGoblin/focusd/privguard/internal/config"
	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// ErrCaptureFailed ends a session whose frame source stopped delivering.
var ErrCaptureFailed = errors.New("capture failed")

// maxCameraIndex bounds the camera switch cycle.
const maxCameraIndex = 4

// MotionDetector is the part of motion.Detector the monitor drives.
type MotionDetector interface {
	Observe(frame *domain.Frame) domain.MotionVerdict
	Reset()
	SetSensitivity(v float64)
	Sensitivity() float64
}

// Reconciler closes and minimizes applications.
type Reconciler interface {
	Reconcile(ctx context.Context, forceClose, protected []string) domain.ReconcileResult
}

// Launcher brings the companion app forward.
type Launcher interface {
	EnsureForeground(ctx context.Context, appName string) bool
}

// SourceOpener opens the frame source for a camera index.
type SourceOpener func(index int) (domain.FrameSource, error)

// MonitorConfig holds monitoring session configuration.
type MonitorConfig struct {
	CameraIndex     int
	ForceClose      []string
	Protected       []string
	AutoCloseApps   bool
	CompanionApp    string
	SnapshotDir     string
	ShowFeed        bool
	TestMode        bool
	Notify          bool
	ConfigPath      string
	ResponseTimeout time.Duration // Per-response deadline (default 10s)
	ShutdownGrace   time.Duration // Wait for in-flight responses on exit (default 5s)
	MaxInFlight     int           // Concurrent responses (default 2)
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CameraIndex:     1,
		AutoCloseApps:   true,
		ShowFeed:        true,
		Notify:          true,
		ResponseTimeout: 10 * time.Second,
		ShutdownGrace:   5 * time.Second,
		MaxInFlight:     2,
	}
}

// MonitorDeps are the collaborators of a Monitor. Display, Keys, Registry,
// BreachLog and Console are optional.
type MonitorDeps struct {
	Open       SourceOpener
	Detector   MotionDetector
	Debouncer  *breach.Debouncer
	Reconciler Reconciler
	Launcher   Launcher
	Snapshots  domain.SnapshotWriter
	BreachLog  domain.BreachLog
	Registry   domain.MonitorRegistry
	Display    domain.FeedDisplay
	Keys       <-chan rune
	Console    io.Writer
	Clock      func() time.Time

	// Persist writes a setting changed from the keyboard back to the
	// settings file. Optional.
	Persist func(key, value string) error
}

// Stats is a point-in-time view of a session.
type Stats struct {
	SessionID   string
	StartedAt   time.Time
	Frames      int
	Breaches    int
	Dropped     int64
	State       domain.MonitorState
	TestMode    bool
	ShowFeed    bool
	Sensitivity float64
	CameraIndex int
}

// Monitor reads frames, detects motion and dispatches breach responses.
// The frame loop never waits for a response.
type Monitor struct {
	config MonitorConfig
	deps   MonitorDeps
	logger *zap.Logger

	source domain.FrameSource
	tasks  *TaskGroup

	mu    sync.Mutex
	stats Stats
}

// NewMonitor creates a monitor.
func NewMonitor(config MonitorConfig, deps MonitorDeps, logger *zap.Logger) *Monitor {
	def := DefaultMonitorConfig()
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = def.ResponseTimeout
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = def.ShutdownGrace
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = def.MaxInFlight
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Debouncer == nil {
		deps.Debouncer = breach.NewDebouncer(breach.DefaultCooldown)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		config: config,
		deps:   deps,
		logger: logger,
		stats: Stats{
			SessionID:   uuid.NewString(),
			State:       domain.StateIdle,
			TestMode:    config.TestMode,
			ShowFeed:    config.ShowFeed,
			CameraIndex: config.CameraIndex,
		},
	}
}

// Run monitors until ctx is canceled, the user quits or the source ends.
// A source that fails returns ErrCaptureFailed.
func (m *Monitor) Run(ctx context.Context) error {
	src, err := m.deps.Open(m.config.CameraIndex)
	if err != nil {
		return fmt.Errorf("%w: camera %d: %v", ErrCaptureFailed, m.config.CameraIndex, err)
	}
	m.source = src
	m.tasks = NewTaskGroup(m.config.MaxInFlight, m.config.ResponseTimeout, m.logger)

	m.mu.Lock()
	m.stats.StartedAt = m.deps.Clock()
	m.stats.Sensitivity = m.deps.Detector.Sensitivity()
	m.mu.Unlock()

	m.register()
	m.logger.Info("monitoring started",
		zap.String("session", m.stats.SessionID),
		zap.Int("camera", m.config.CameraIndex),
		zap.Float64("sensitivity", m.deps.Detector.Sensitivity()),
		zap.Duration("cooldown", m.deps.Debouncer.Cooldown()),
		zap.Bool("test_mode", m.config.TestMode))

	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitoring stopping", zap.Error(ctx.Err()))
			return nil
		default:
		}

		if quit := m.drainKeys(ctx); quit {
			return nil
		}

		frame, err := m.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.logger.Info("frame source ended")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("failed to read camera frame", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
		if frame.Empty() {
			continue
		}

		if quit := m.process(ctx, frame); quit {
			return nil
		}
	}
}

// process handles one frame and reports whether the user asked to quit.
func (m *Monitor) process(ctx context.Context, frame *domain.Frame) bool {
	verdict := m.deps.Detector.Observe(frame)
	now := m.deps.Clock()

	m.mu.Lock()
	m.stats.Frames++
	testMode := m.stats.TestMode
	showFeed := m.stats.ShowFeed
	m.mu.Unlock()

	// Test mode bypasses the debouncer: no count and no cooldown.
	if testMode {
		if verdict.IsMotion {
			m.logger.Info("motion detected (test mode)",
				zap.Float64("area", verdict.Area),
				zap.Int("regions", verdict.Regions))
		}
	} else if event, fired := m.deps.Debouncer.Report(verdict, now); fired {
		m.mu.Lock()
		m.stats.Breaches = event.Count
		m.mu.Unlock()
		m.dispatch(event, frame)
	}

	if showFeed && m.deps.Display != nil {
		key := m.deps.Display.Show(frame, domain.FeedStatus{
			Motion:      verdict.IsMotion,
			TestMode:    testMode,
			Detections:  m.deps.Debouncer.State().Count,
			Uptime:      now.Sub(m.Stats().StartedAt),
			Sensitivity: m.deps.Detector.Sensitivity(),
			Boxes:       verdict.Boxes,
		})
		if m.apply(ctx, KeyCommand(key)) {
			return true
		}
	}
	return false
}

// dispatch hands a breach to the task group. The frame is copied because
// the source reuses its buffer.
func (m *Monitor) dispatch(event domain.BreachEvent, frame *domain.Frame) {
	m.logger.Warn("privacy breach detected",
		zap.String("id", event.ID),
		zap.Int("count", event.Count))
	if m.config.Notify {
		m.notice("Privacy breach detected! (Count: %d)", event.Count)
	}

	snapshot := frame.Clone()
	m.tasks.TryGo("breach-response", func(ctx context.Context) error {
		return m.respond(ctx, event, snapshot)
	})
}

// respond runs the breach response. The snapshot and audit record always
// happen; closing apps and raising the companion app both follow
// auto_close_apps. Each step is best-effort.
func (m *Monitor) respond(ctx context.Context, event domain.BreachEvent, frame *domain.Frame) error {
	rec := domain.BreachRecord{
		ID:    event.ID,
		Count: event.Count,
		At:    event.At,
	}

	if m.deps.Snapshots != nil && m.config.SnapshotDir != "" {
		path := SnapshotPath(m.config.SnapshotDir, event.At)
		if err := m.deps.Snapshots.Save(frame, path); err != nil {
			m.logger.Error("failed to save snapshot", zap.String("path", path), zap.Error(err))
		} else {
			m.logger.Info("snapshot saved", zap.String("path", path))
			rec.SnapshotPath = path
		}
	}

	if m.config.AutoCloseApps && m.deps.Reconciler != nil {
		result := m.deps.Reconciler.Reconcile(ctx, m.config.ForceClose, m.config.Protected)
		rec.Closed = result.Closed
		rec.Minimized = result.Minimized
		rec.Failures = len(result.Failures)
	}

	if m.config.AutoCloseApps && m.config.CompanionApp != "" && m.deps.Launcher != nil {
		rec.CompanionOK = m.deps.Launcher.EnsureForeground(ctx, m.config.CompanionApp)
	}

	if m.deps.BreachLog != nil {
		if err := m.deps.BreachLog.Record(ctx, rec); err != nil {
			return fmt.Errorf("record breach %s: %w", rec.ID, err)
		}
	}
	return nil
}

// drainKeys applies every pending key without blocking.
func (m *Monitor) drainKeys(ctx context.Context) bool {
	if m.deps.Keys == nil {
		return false
	}
	for {
		select {
		case key, ok := <-m.deps.Keys:
			if !ok {
				m.deps.Keys = nil
				return false
			}
			if m.apply(ctx, KeyCommand(int(key))) {
				return true
			}
		default:
			return false
		}
	}
}

// apply executes a command and reports whether it was a quit.
func (m *Monitor) apply(ctx context.Context, cmd Command) bool {
	switch cmd {
	case CmdNone:
		return false
	case CmdQuit:
		m.logger.Info("quit requested")
		return true
	case CmdToggleTest:
		m.mu.Lock()
		m.stats.TestMode = !m.stats.TestMode
		on := m.stats.TestMode
		m.mu.Unlock()
		m.logger.Info("test mode toggled", zap.Bool("test_mode", on))
		m.notice("Test mode: %s", onOff(on))
	case CmdToggleFeed:
		m.mu.Lock()
		m.stats.ShowFeed = !m.stats.ShowFeed
		on := m.stats.ShowFeed
		m.mu.Unlock()
		if !on && m.deps.Display != nil {
			m.deps.Display.Hide()
		}
		m.notice("Camera feed: %s", onOff(on))
	case CmdSensitivityUp, CmdSensitivityDown:
		step := float64(config.SensitivityStep)
		if cmd == CmdSensitivityDown {
			step = -step
		}
		v := config.ClampSensitivity(m.deps.Detector.Sensitivity() + step)
		m.deps.Detector.SetSensitivity(v)
		m.mu.Lock()
		m.stats.Sensitivity = v
		m.mu.Unlock()
		m.logger.Info("sensitivity changed", zap.Float64("sensitivity", v))
		m.notice("Sensitivity: %.0f", v)
		m.persist("motion_sensitivity", strconv.FormatFloat(v, 'f', -1, 64))
	case CmdSwitchCamera:
		m.switchCamera(ctx)
	}
	return false
}

// switchCamera moves to the next index that opens. The detector restarts
// its warm-up on the new scene.
func (m *Monitor) switchCamera(ctx context.Context) {
	current := m.Stats().CameraIndex
	for step := 1; step <= maxCameraIndex+1; step++ {
		next := (current + step) % (maxCameraIndex + 1)
		if next == current {
			break
		}
		src, err := m.deps.Open(next)
		if err != nil {
			m.logger.Debug("camera unavailable", zap.Int("index", next), zap.Error(err))
			continue
		}
		if err := m.source.Close(); err != nil {
			m.logger.Warn("failed to close camera", zap.Int("index", current), zap.Error(err))
		}
		m.source = src
		m.deps.Detector.Reset()
		m.mu.Lock()
		m.stats.CameraIndex = next
		m.mu.Unlock()
		m.logger.Info("switched camera", zap.Int("from", current), zap.Int("to", next))
		m.notice("Switched to camera %d", next)
		m.persist("camera_index", strconv.Itoa(next))
		return
	}
	m.logger.Warn("no other camera available", zap.Int("current", current))
	m.notice("No other camera available")
}

// persist saves a changed setting. Failures are logged only.
func (m *Monitor) persist(key, value string) {
	if m.deps.Persist == nil {
		return
	}
	if err := m.deps.Persist(key, value); err != nil {
		m.logger.Warn("failed to save setting",
			zap.String("key", key),
			zap.String("value", value),
			zap.Error(err))
	}
}

// Stats returns a copy of the session counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.State = domain.StateIdle
	if m.deps.Debouncer.InCooldown(m.deps.Clock()) {
		s.State = domain.StateCooldown
	}
	if m.tasks != nil {
		s.Dropped = m.tasks.Dropped()
	}
	return s
}

func (m *Monitor) shutdown() {
	if m.tasks != nil {
		m.tasks.Shutdown(m.config.ShutdownGrace)
	}
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			m.logger.Warn("failed to close frame source", zap.Error(err))
		}
	}
	if m.deps.Display != nil {
		_ = m.deps.Display.Close()
	}
	m.unregister()

	s := m.Stats()
	uptime := m.deps.Clock().Sub(s.StartedAt)
	m.logger.Info("monitoring stopped",
		zap.Duration("uptime", uptime),
		zap.Int("detections", s.Breaches),
		zap.Int("frames", s.Frames))
	m.notice("Privacy Guard stopped. Total detections: %d, uptime: %s", s.Breaches, uptime.Truncate(time.Second))
}

func (m *Monitor) register() {
	if m.deps.Registry == nil {
		return
	}
	entry := domain.MonitorEntry{
		PID:         os.Getpid(),
		SessionID:   m.stats.SessionID,
		StartedAt:   m.stats.StartedAt.Unix(),
		CameraIndex: m.config.CameraIndex,
		ConfigPath:  m.config.ConfigPath,
	}
	if err := m.deps.Registry.Register(entry); err != nil {
		m.logger.Warn("failed to register monitor", zap.Error(err))
	}
}

// unregister clears the registry only if it still names this session.
func (m *Monitor) unregister() {
	if m.deps.Registry == nil {
		return
	}
	entry, err := m.deps.Registry.Get()
	if err != nil || entry.SessionID != m.stats.SessionID {
		return
	}
	if err := m.deps.Registry.Clear(); err != nil {
		m.logger.Warn("failed to clear monitor registry", zap.Error(err))
	}
}

func (m *Monitor) notice(format string, args ...any) {
	if m.deps.Console == nil {
		return
	}
	fmt.Fprintf(m.deps.Console, format+"\n", args...)
}

// SnapshotPath names a snapshot after its breach time.
func SnapshotPath(dir string, at time.Time) string {
	return filepath.Join(dir, "breach_"+at.Format("20060102_150405")+".jpg")
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
