// Package motion turns camera frames into a motion verdict using an adaptive
// per-pixel Gaussian-mixture background model.
package motion

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// Config holds detector tuning.
type Config struct {
	Sensitivity   float64 // Aggregate area (px²) above which a frame is motion
	WarmupFrames  int     // Frames after (re)initialization that never report motion
	History       int     // Background learning horizon in frames
	Mixtures      int     // Gaussian components per pixel (2-5)
	MinRegionArea int     // Regions at or below this area are noise
	BlurKernel    int     // Odd Gaussian kernel size
	MorphKernel   int     // Odd elliptic structuring element size
	DetectShadows bool
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		Sensitivity:   1500,
		WarmupFrames:  30,
		History:       500,
		Mixtures:      3,
		MinRegionArea: 500,
		BlurKernel:    21,
		MorphKernel:   5,
		DetectShadows: true,
	}
}

// region is one external contour of the cleaned foreground mask.
type region struct {
	area float64
	box  domain.Rect
}

// pipeline turns a frame into foreground regions and owns the background
// model. It is bound to one frame size.
type pipeline interface {
	regions(frame *domain.Frame) []region
	close()
}

// Detector owns one background model for one camera session.
// It is not safe for concurrent use; the monitor loop is its only caller.
type Detector struct {
	cfg    Config
	logger *zap.Logger

	width, height int
	observed      int
	pipe          pipeline
}

// NewDetector creates a detector. The model is allocated lazily on the first
// frame so its dimensions always match the source.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:    sanitize(cfg),
		logger: logger,
	}
}

func sanitize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Mixtures < 2 {
		cfg.Mixtures = 2
	}
	if cfg.Mixtures > 5 {
		cfg.Mixtures = 5
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}
	if cfg.BlurKernel <= 0 {
		cfg.BlurKernel = def.BlurKernel
	}
	if cfg.BlurKernel%2 == 0 {
		cfg.BlurKernel++
	}
	if cfg.MorphKernel <= 0 {
		cfg.MorphKernel = def.MorphKernel
	}
	if cfg.MorphKernel%2 == 0 {
		cfg.MorphKernel++
	}
	if cfg.WarmupFrames < 1 {
		cfg.WarmupFrames = 1
	}
	if cfg.MinRegionArea < 0 {
		cfg.MinRegionArea = 0
	}
	return cfg
}

// Observe feeds one frame through the pipeline and returns its verdict.
// The frame must not be empty.
func (d *Detector) Observe(frame *domain.Frame) domain.MotionVerdict {
	if d.pipe == nil || frame.Width != d.width || frame.Height != d.height {
		d.allocate(frame.Width, frame.Height)
	}
	d.observed++

	found := d.pipe.regions(frame)
	if d.observed == 1 {
		// The seeding frame has nothing to compare against.
		found = nil
	}

	area, kept := aggregateArea(found, d.cfg.MinRegionArea)
	verdict := domain.MotionVerdict{
		Area:    area,
		Regions: len(kept),
	}
	for _, r := range kept {
		verdict.Boxes = append(verdict.Boxes, r.box)
	}

	if d.observed <= d.cfg.WarmupFrames {
		verdict.WarmingUp = true
		return verdict
	}
	verdict.IsMotion = verdict.Area > d.cfg.Sensitivity
	return verdict
}

// Reset drops the background model. The next frame starts a new warm-up.
func (d *Detector) Reset() {
	d.release()
	d.observed = 0
	d.logger.Debug("motion detector reset")
}

// Close releases the background model.
func (d *Detector) Close() error {
	d.release()
	return nil
}

// SetSensitivity changes the area threshold.
func (d *Detector) SetSensitivity(v float64) {
	d.cfg.Sensitivity = v
}

// Sensitivity returns the current area threshold.
func (d *Detector) Sensitivity() float64 {
	return d.cfg.Sensitivity
}

// Observed returns the number of frames seen since the last reset.
func (d *Detector) Observed() int {
	return d.observed
}

func (d *Detector) allocate(w, h int) {
	d.release()
	d.width, d.height = w, h
	d.observed = 0
	d.pipe = newPipeline(d.cfg, w, h)

	d.logger.Info("motion model initialized",
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("history", d.cfg.History),
		zap.Int("warmup_frames", d.cfg.WarmupFrames))
}

func (d *Detector) release() {
	if d.pipe != nil {
		d.pipe.close()
		d.pipe = nil
	}
}

// aggregateArea sums the areas of regions strictly larger than floor.
func aggregateArea(regions []region, floor int) (total float64, kept []region) {
	for _, r := range regions {
		if r.area > float64(floor) {
			total += r.area
			kept = append(kept, r)
		}
	}
	return total, kept
}
