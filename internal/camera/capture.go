// Package camera adapts OpenCV capture devices, image files and windows to
// the domain frame types.
package camera

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// ErrReadFailed is returned when the device yields no frame.
var ErrReadFailed = errors.New("camera read failed")

// Options are the requested capture properties. Devices may ignore them.
type Options struct {
	Width  int
	Height int
	FPS    int
}

// Capture implements domain.FrameSource over an OpenCV VideoCapture.
// The returned frame is reused between reads.
type Capture struct {
	index  int
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	frame  *domain.Frame
	logger *zap.Logger
}

// Open opens the camera at index and applies opts.
func Open(index int, opts Options, logger *zap.Logger) (*Capture, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d is not available", index)
	}

	if opts.Width > 0 && opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(opts.FPS))
	}

	logger.Info("camera opened",
		zap.Int("index", index),
		zap.Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)),
		zap.Float64("fps", vc.Get(gocv.VideoCaptureFPS)))

	return &Capture{
		index:  index,
		vc:     vc,
		mat:    gocv.NewMat(),
		logger: logger,
	}, nil
}

// Index returns the device index.
func (c *Capture) Index() int {
	return c.index
}

// Read grabs the next frame.
func (c *Capture) Read(ctx context.Context) (*domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("%w: camera %d", ErrReadFailed, c.index)
	}
	c.frame = matToFrame(c.mat, c.frame)
	return c.frame, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}

// matToFrame copies an 8-bit Mat into dst, reallocating when the shape
// changes.
func matToFrame(m gocv.Mat, dst *domain.Frame) *domain.Frame {
	w, h, ch := m.Cols(), m.Rows(), m.Channels()
	if dst == nil || dst.Width != w || dst.Height != h || dst.Channels != ch {
		dst = domain.NewFrame(w, h, ch)
	}
	copy(dst.Pix, m.ToBytes())
	return dst
}

// frameToMat wraps a copy of f in a Mat. The caller closes it.
func frameToMat(f *domain.Frame) (gocv.Mat, error) {
	typ := gocv.MatTypeCV8UC3
	if f.Channels == 1 {
		typ = gocv.MatTypeCV8UC1
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, typ, f.Pix)
}

// Ensure Capture implements domain.FrameSource.
var _ domain.FrameSource = (*Capture)(nil)
