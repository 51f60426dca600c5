package fixtures

import (
	"context"
	"io"
	"sync"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// Scene is a scripted frame source: a flat background for Still frames,
// then a bright square for Intruder frames, then io.EOF.
type Scene struct {
	Width    int
	Height   int
	Still    int
	Intruder int

	mu     sync.Mutex
	n      int
	closed bool
}

// NewScene returns a 160x120 scene.
func NewScene(still, intruder int) *Scene {
	return &Scene{Width: 160, Height: 120, Still: still, Intruder: intruder}
}

// Read implements domain.FrameSource.
func (s *Scene) Read(ctx context.Context) (*domain.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed || s.n >= s.Still+s.Intruder {
		return nil, io.EOF
	}
	s.n++

	f := domain.NewFrame(s.Width, s.Height, 3)
	for i := range f.Pix {
		f.Pix[i] = 50
	}
	if s.n > s.Still {
		size := s.Height / 2
		x0, y0 := s.Width/4, s.Height/4
		for y := y0; y < y0+size; y++ {
			for x := x0; x < x0+size; x++ {
				i := (y*s.Width + x) * 3
				f.Pix[i], f.Pix[i+1], f.Pix[i+2] = 200, 200, 200
			}
		}
	}
	return f, nil
}

// Close implements domain.FrameSource.
func (s *Scene) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Scene) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
