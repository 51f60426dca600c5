//go:build purego

package motion

import (
	"math"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// luminance converts a frame into a float32 gray plane using BT.601 weights.
// Frames with 3 or more channels are read as BGR(A).
func luminance(f *domain.Frame, dst []float32) {
	if f.Channels == 1 {
		for i := range dst {
			dst[i] = float32(f.Pix[i])
		}
		return
	}
	ch := f.Channels
	for i := range dst {
		p := f.Pix[i*ch : i*ch+3]
		dst[i] = 0.114*float32(p[0]) + 0.587*float32(p[1]) + 0.299*float32(p[2])
	}
}

// gaussianKernel returns a normalized 1-D Gaussian kernel of the given odd
// size. A non-positive sigma is derived from the size as OpenCV does.
func gaussianKernel(size int, sigma float64) []float32 {
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	half := size / 2
	vals := make([]float64, size)
	var sum float64
	for i := range vals {
		x := float64(i - half)
		vals[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += vals[i]
	}
	k := make([]float32, size)
	for i, v := range vals {
		k[i] = float32(v / sum)
	}
	return k
}

// reflect101 folds an index back into [0,n) like BORDER_REFLECT_101
// (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// blurrer applies a separable Gaussian blur with a reusable scratch plane.
type blurrer struct {
	kernel []float32
	tmp    []float32
}

func newBlurrer(size, pixels int) *blurrer {
	return &blurrer{
		kernel: gaussianKernel(size, 0),
		tmp:    make([]float32, pixels),
	}
}

func (b *blurrer) apply(src, dst []float32, w, h int) {
	half := len(b.kernel) / 2

	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		out := b.tmp[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc float32
			if x-half >= 0 && x+half < w {
				base := x - half
				for k, kv := range b.kernel {
					acc += kv * row[base+k]
				}
			} else {
				for k, kv := range b.kernel {
					acc += kv * row[reflect101(x+k-half, w)]
				}
			}
			out[x] = acc
		}
	}

	for y := 0; y < h; y++ {
		interior := y-half >= 0 && y+half < h
		for x := 0; x < w; x++ {
			var acc float32
			for k, kv := range b.kernel {
				yy := y + k - half
				if !interior {
					yy = reflect101(yy, h)
				}
				acc += kv * b.tmp[yy*w+x]
			}
			dst[y*w+x] = acc
		}
	}
}
