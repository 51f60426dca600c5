package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/privguard/internal/breach"
	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

var testEpoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// fakeSource yields n frames, then err (io.EOF by default)
type fakeSource struct {
	mu     sync.Mutex
	n      int
	err    error
	reads  int
	closed bool
}

func (s *fakeSource) Read(ctx context.Context) (*domain.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reads >= s.n {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	s.reads++
	return domain.NewFrame(4, 4, 3), nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// scriptedDetector returns motion for every frame whose index is in motion
type scriptedDetector struct {
	motion      func(i int) bool
	i           int
	resets      int
	sensitivity float64
}

func (d *scriptedDetector) Observe(frame *domain.Frame) domain.MotionVerdict {
	d.i++
	if d.motion != nil && d.motion(d.i) {
		return domain.MotionVerdict{IsMotion: true, Area: 9000, Regions: 1}
	}
	return domain.MotionVerdict{}
}

func (d *scriptedDetector) Reset()                   { d.resets++ }
func (d *scriptedDetector) SetSensitivity(v float64) { d.sensitivity = v }
func (d *scriptedDetector) Sensitivity() float64     { return d.sensitivity }

type countingReconciler struct {
	mu    sync.Mutex
	calls int
}

func (r *countingReconciler) Reconcile(ctx context.Context, forceClose, protected []string) domain.ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return domain.ReconcileResult{Closed: []string{"brave.exe"}, Minimized: []string{"Calculator"}}
}

type countingLauncher struct {
	mu    sync.Mutex
	calls []string
}

func (l *countingLauncher) EnsureForeground(ctx context.Context, app string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, app)
	return true
}

type memoryBreachLog struct {
	mu      sync.Mutex
	records []domain.BreachRecord
}

func (l *memoryBreachLog) Record(ctx context.Context, rec domain.BreachRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memoryBreachLog) Recent(ctx context.Context, limit int) ([]domain.BreachRecord, error) {
	return l.records, nil
}

func (l *memoryBreachLog) Count(ctx context.Context) (int, error) { return len(l.records), nil }
func (l *memoryBreachLog) Close() error                           { return nil }

type recordingSnapshots struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *recordingSnapshots) Save(frame *domain.Frame, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.paths = append(s.paths, path)
	return nil
}

type memoryRegistry struct {
	entry   *domain.MonitorEntry
	cleared bool
}

func (r *memoryRegistry) Register(e domain.MonitorEntry) error { r.entry = &e; return nil }
func (r *memoryRegistry) Get() (*domain.MonitorEntry, error) {
	if r.entry == nil {
		return nil, domain.ErrNotRegistered
	}
	return r.entry, nil
}
func (r *memoryRegistry) IsAlive() bool { return r.entry != nil }
func (r *memoryRegistry) Clear() error  { r.entry = nil; r.cleared = true; return nil }
func (r *memoryRegistry) Path() string  { return "memory" }

// fakeDisplay returns queued keys from Show
type fakeDisplay struct {
	keys   []int
	shown  int
	hidden int
	last   domain.FeedStatus
}

func (d *fakeDisplay) Show(frame *domain.Frame, status domain.FeedStatus) int {
	d.shown++
	d.last = status
	if len(d.keys) == 0 {
		return -1
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *fakeDisplay) Hide()        { d.hidden++ }
func (d *fakeDisplay) Close() error { return nil }

// steppingClock advances one second per call to Observe-side reads
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) tick() {
	c.mu.Lock()
	c.now = c.now.Add(time.Second)
	c.mu.Unlock()
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// tickingDetector wraps a detector and advances the clock per frame
type tickingDetector struct {
	*scriptedDetector
	clock *steppingClock
}

func (d tickingDetector) Observe(frame *domain.Frame) domain.MotionVerdict {
	d.clock.tick()
	return d.scriptedDetector.Observe(frame)
}

type harness struct {
	src        *fakeSource
	detector   *scriptedDetector
	reconciler *countingReconciler
	launcher   *countingLauncher
	log        *memoryBreachLog
	snapshots  *recordingSnapshots
	registry   *memoryRegistry
	clock      *steppingClock
	console    *bytes.Buffer
	opened     []int
}

func newHarness(frames int, motion func(i int) bool) *harness {
	return &harness{
		src:        &fakeSource{n: frames},
		detector:   &scriptedDetector{motion: motion, sensitivity: 1500},
		reconciler: &countingReconciler{},
		launcher:   &countingLauncher{},
		log:        &memoryBreachLog{},
		snapshots:  &recordingSnapshots{},
		registry:   &memoryRegistry{},
		clock:      &steppingClock{now: testEpoch},
		console:    &bytes.Buffer{},
	}
}

func (h *harness) monitor(cfg MonitorConfig, mutate func(*MonitorDeps)) *Monitor {
	deps := MonitorDeps{
		Open: func(index int) (domain.FrameSource, error) {
			h.opened = append(h.opened, index)
			return h.src, nil
		},
		Detector:   tickingDetector{h.detector, h.clock},
		Debouncer:  breach.NewDebouncer(5 * time.Second),
		Reconciler: h.reconciler,
		Launcher:   h.launcher,
		Snapshots:  h.snapshots,
		BreachLog:  h.log,
		Registry:   h.registry,
		Console:    h.console,
		Clock:      h.clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewMonitor(cfg, deps, zap.NewNop())
}

func testConfig() MonitorConfig {
	cfg := DefaultMonitorConfig()
	cfg.ForceClose = []string{"brave.exe"}
	cfg.Protected = []string{"explorer.exe"}
	cfg.CompanionApp = "comet.exe"
	cfg.SnapshotDir = "snapshots"
	cfg.ShowFeed = false
	cfg.ShutdownGrace = 2 * time.Second
	return cfg
}

// TestMonitor_OneResponsePerCooldown verifies ten motion frames one second
// apart dispatch ceil(10/5) responses
func TestMonitor_OneResponsePerCooldown(t *testing.T) {
	h := newHarness(10, func(int) bool { return true })
	m := h.monitor(testConfig(), nil)

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 2, h.reconciler.calls)
	assert.Equal(t, []string{"comet.exe", "comet.exe"}, h.launcher.calls)
	require.Len(t, h.log.records, 2)
	assert.ElementsMatch(t, []int{1, 2}, []int{h.log.records[0].Count, h.log.records[1].Count})
	assert.Len(t, h.snapshots.paths, 2)

	stats := m.Stats()
	assert.Equal(t, 10, stats.Frames)
	assert.Equal(t, 2, stats.Breaches)
	assert.True(t, h.src.closed)
	assert.Contains(t, h.console.String(), "Privacy breach detected! (Count: 1)")
}

// TestMonitor_ResponseRecordsOutcome verifies the audit record carries the
// reconcile and snapshot results
func TestMonitor_ResponseRecordsOutcome(t *testing.T) {
	h := newHarness(1, func(int) bool { return true })
	m := h.monitor(testConfig(), nil)

	require.NoError(t, m.Run(context.Background()))

	require.Len(t, h.log.records, 1)
	rec := h.log.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, []string{"brave.exe"}, rec.Closed)
	assert.Equal(t, []string{"Calculator"}, rec.Minimized)
	assert.True(t, rec.CompanionOK)
	assert.Equal(t, SnapshotPath("snapshots", rec.At), rec.SnapshotPath)
}

// TestMonitor_SnapshotFailureDoesNotStopResponse verifies best-effort
// snapshots
func TestMonitor_SnapshotFailureDoesNotStopResponse(t *testing.T) {
	h := newHarness(1, func(int) bool { return true })
	h.snapshots.err = errors.New("disk full")
	m := h.monitor(testConfig(), nil)

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 1, h.reconciler.calls)
	require.Len(t, h.log.records, 1)
	assert.Empty(t, h.log.records[0].SnapshotPath)
}

// TestMonitor_AutoCloseDisabled verifies reconcile is skipped but the
// companion app is still brought forward
func TestMonitor_AutoCloseDisabled(t *testing.T) {
	h := newHarness(1, func(int) bool { return true })
	cfg := testConfig()
	cfg.AutoCloseApps = false
	m := h.monitor(cfg, nil)

	require.NoError(t, m.Run(context.Background()))

	assert.Zero(t, h.reconciler.calls)
	assert.Empty(t, h.launcher.calls, "companion app follows auto_close_apps")
	require.Len(t, h.log.records, 1)
	assert.False(t, h.log.records[0].CompanionOK)
}

// TestMonitor_TestModeNeverDispatches verifies test mode only logs
func TestMonitor_TestModeNeverDispatches(t *testing.T) {
	h := newHarness(12, func(int) bool { return true })
	cfg := testConfig()
	cfg.TestMode = true
	m := h.monitor(cfg, nil)

	require.NoError(t, m.Run(context.Background()))

	assert.Zero(t, h.reconciler.calls)
	assert.Empty(t, h.log.records)
	assert.Zero(t, m.Stats().Breaches)
	assert.Equal(t, domain.StateIdle, m.Stats().State)
}

// TestMonitor_LeavingTestModeRespondsImmediately verifies motion seen in
// test mode does not start a cooldown that hides the next real breach
func TestMonitor_LeavingTestModeRespondsImmediately(t *testing.T) {
	h := newHarness(5, func(int) bool { return true })
	display := &fakeDisplay{keys: []int{-1, 't'}}
	cfg := testConfig()
	cfg.TestMode = true
	cfg.ShowFeed = true
	m := h.monitor(cfg, func(d *MonitorDeps) { d.Display = display })

	require.NoError(t, m.Run(context.Background()))

	assert.False(t, m.Stats().TestMode)
	assert.Equal(t, 1, h.reconciler.calls)
	require.Len(t, h.log.records, 1)
	assert.Equal(t, 1, h.log.records[0].Count)
	assert.Equal(t, testEpoch.Add(3*time.Second), h.log.records[0].At)
}

// TestMonitor_NoMotionNoResponse verifies quiet frames do nothing
func TestMonitor_NoMotionNoResponse(t *testing.T) {
	h := newHarness(20, nil)
	m := h.monitor(testConfig(), nil)

	require.NoError(t, m.Run(context.Background()))

	assert.Zero(t, h.reconciler.calls)
	assert.Equal(t, domain.StateIdle, m.Stats().State)
}

// TestMonitor_CaptureFailure verifies a failing source ends the session with
// ErrCaptureFailed
func TestMonitor_CaptureFailure(t *testing.T) {
	h := newHarness(3, nil)
	h.src.err = errors.New("device unplugged")
	m := h.monitor(testConfig(), nil)

	err := m.Run(context.Background())

	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.True(t, h.src.closed)
	assert.Equal(t, 3, m.Stats().Frames)
}

// TestMonitor_OpenFailure verifies an unavailable camera is a capture
// failure
func TestMonitor_OpenFailure(t *testing.T) {
	h := newHarness(0, nil)
	m := h.monitor(testConfig(), func(d *MonitorDeps) {
		d.Open = func(int) (domain.FrameSource, error) { return nil, errors.New("no device") }
	})

	assert.ErrorIs(t, m.Run(context.Background()), ErrCaptureFailed)
}

// TestMonitor_ContextCancelStopsCleanly verifies cancellation is not an error
func TestMonitor_ContextCancelStopsCleanly(t *testing.T) {
	h := newHarness(1000000, nil)
	ctx, cancel := context.WithCancel(context.Background())
	m := h.monitor(testConfig(), func(d *MonitorDeps) {
		d.Detector = cancelAfter{h.detector, 5, cancel}
	})

	require.NoError(t, m.Run(ctx))
	assert.Less(t, m.Stats().Frames, 1000)
}

type cancelAfter struct {
	*scriptedDetector
	n      int
	cancel context.CancelFunc
}

func (c cancelAfter) Observe(frame *domain.Frame) domain.MotionVerdict {
	v := c.scriptedDetector.Observe(frame)
	if c.scriptedDetector.i >= c.n {
		c.cancel()
	}
	return v
}

// TestMonitor_QuitKey verifies a terminal quit stops before reading
func TestMonitor_QuitKey(t *testing.T) {
	h := newHarness(100, nil)
	keys := make(chan rune, 1)
	keys <- 'q'
	m := h.monitor(testConfig(), func(d *MonitorDeps) { d.Keys = keys })

	require.NoError(t, m.Run(context.Background()))
	assert.Zero(t, m.Stats().Frames)
}

// TestMonitor_SensitivityKeysClamp verifies +/- move by 100 within bounds
func TestMonitor_SensitivityKeysClamp(t *testing.T) {
	h := newHarness(0, nil)
	h.detector.sensitivity = 4950
	keys := make(chan rune, 4)
	keys <- '+'
	keys <- '+'
	m := h.monitor(testConfig(), func(d *MonitorDeps) { d.Keys = keys })

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 5000.0, h.detector.sensitivity)

	h2 := newHarness(0, nil)
	h2.detector.sensitivity = 700
	keys2 := make(chan rune, 4)
	keys2 <- '-'
	keys2 <- '-'
	keys2 <- '-'
	m2 := h2.monitor(testConfig(), func(d *MonitorDeps) { d.Keys = keys2 })

	require.NoError(t, m2.Run(context.Background()))
	assert.Equal(t, 500.0, h2.detector.sensitivity)
	assert.Equal(t, 500.0, m2.Stats().Sensitivity)
}

// TestMonitor_ToggleTestModeKey verifies 't' suppresses dispatch
func TestMonitor_ToggleTestModeKey(t *testing.T) {
	h := newHarness(3, func(int) bool { return true })
	keys := make(chan rune, 1)
	keys <- 't'
	m := h.monitor(testConfig(), func(d *MonitorDeps) { d.Keys = keys })

	require.NoError(t, m.Run(context.Background()))
	assert.True(t, m.Stats().TestMode)
	assert.Zero(t, h.reconciler.calls)
	assert.Contains(t, h.console.String(), "Test mode: ON")
}

// TestMonitor_FeedDisplayAndKeys verifies the overlay status and feed keys
func TestMonitor_FeedDisplayAndKeys(t *testing.T) {
	h := newHarness(5, func(i int) bool { return i == 1 })
	display := &fakeDisplay{keys: []int{-1, 'h'}}
	cfg := testConfig()
	cfg.ShowFeed = true
	m := h.monitor(cfg, func(d *MonitorDeps) { d.Display = display })

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 2, display.shown, "feed stops after 'h'")
	assert.Equal(t, 1, display.hidden)
	assert.Equal(t, 1, display.last.Detections)
	assert.Equal(t, 1500.0, display.last.Sensitivity)
	assert.False(t, m.Stats().ShowFeed)
}

// TestMonitor_SwitchCamera verifies 'c' opens the next index and resets the
// detector
func TestMonitor_SwitchCamera(t *testing.T) {
	h := newHarness(2, nil)
	keys := make(chan rune, 1)
	keys <- 'c'
	cfg := testConfig()
	cfg.CameraIndex = 1
	m := h.monitor(cfg, func(d *MonitorDeps) {
		d.Keys = keys
		d.Open = func(index int) (domain.FrameSource, error) {
			h.opened = append(h.opened, index)
			if index == 2 {
				return nil, fmt.Errorf("camera %d missing", index)
			}
			return h.src, nil
		}
	})

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, []int{1, 2, 3}, h.opened)
	assert.Equal(t, 3, m.Stats().CameraIndex)
	assert.Equal(t, 1, h.detector.resets)
}

// TestMonitor_PersistsKeyboardSettings verifies sensitivity and camera
// changes are written back through Persist
func TestMonitor_PersistsKeyboardSettings(t *testing.T) {
	h := newHarness(0, nil)
	keys := make(chan rune, 2)
	keys <- '+'
	keys <- 'c'
	cfg := testConfig()
	cfg.CameraIndex = 1

	var saved [][2]string
	m := h.monitor(cfg, func(d *MonitorDeps) {
		d.Keys = keys
		d.Persist = func(key, value string) error {
			saved = append(saved, [2]string{key, value})
			return nil
		}
	})

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, [][2]string{
		{"motion_sensitivity", "1600"},
		{"camera_index", "2"},
	}, saved)
}

// TestMonitor_PersistFailureKeepsRunning verifies a settings write error
// does not end the session
func TestMonitor_PersistFailureKeepsRunning(t *testing.T) {
	h := newHarness(3, nil)
	keys := make(chan rune, 1)
	keys <- '-'
	m := h.monitor(testConfig(), func(d *MonitorDeps) {
		d.Keys = keys
		d.Persist = func(key, value string) error { return errors.New("read-only") }
	})

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 1400.0, h.detector.sensitivity)
	assert.Equal(t, 3, m.Stats().Frames)
}

// TestMonitor_RegistersAndClears verifies the registry lifecycle
func TestMonitor_RegistersAndClears(t *testing.T) {
	h := newHarness(1, nil)
	m := h.monitor(testConfig(), nil)

	require.NoError(t, m.Run(context.Background()))

	assert.True(t, h.registry.cleared)
	assert.Nil(t, h.registry.entry)
}

// TestMonitor_LeavesForeignRegistration verifies another session's entry
// survives shutdown
func TestMonitor_LeavesForeignRegistration(t *testing.T) {
	h := newHarness(1, nil)
	m := h.monitor(testConfig(), func(d *MonitorDeps) {
		d.Registry = &overwritingRegistry{memoryRegistry: h.registry}
	})

	require.NoError(t, m.Run(context.Background()))

	require.NotNil(t, h.registry.entry)
	assert.Equal(t, "other", h.registry.entry.SessionID)
	assert.False(t, h.registry.cleared)
}

// overwritingRegistry simulates a second monitor registering over us
type overwritingRegistry struct {
	*memoryRegistry
}

func (r *overwritingRegistry) Register(e domain.MonitorEntry) error {
	e.SessionID = "other"
	return r.memoryRegistry.Register(e)
}

// TestMonitor_StateTracksCooldown verifies the lazy Idle/Cooldown view
func TestMonitor_StateTracksCooldown(t *testing.T) {
	h := newHarness(1, func(int) bool { return true })
	m := h.monitor(testConfig(), nil)

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, domain.StateCooldown, m.Stats().State)

	for i := 0; i < 5; i++ {
		h.clock.tick()
	}
	assert.Equal(t, domain.StateIdle, m.Stats().State)
}

// TestKeyCommand verifies key bindings
func TestKeyCommand(t *testing.T) {
	assert.Equal(t, CmdQuit, KeyCommand('q'))
	assert.Equal(t, CmdQuit, KeyCommand(3))
	assert.Equal(t, CmdToggleTest, KeyCommand('t'))
	assert.Equal(t, CmdToggleFeed, KeyCommand('h'))
	assert.Equal(t, CmdSensitivityUp, KeyCommand('+'))
	assert.Equal(t, CmdSensitivityDown, KeyCommand('-'))
	assert.Equal(t, CmdSwitchCamera, KeyCommand('c'))
	assert.Equal(t, CmdNone, KeyCommand(-1))
	assert.Equal(t, CmdNone, KeyCommand('x'))
	assert.Equal(t, "switch-camera", CmdSwitchCamera.String())
}
