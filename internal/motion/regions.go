//go:build purego

package motion

import "github.com/eliteGoblin/focusd/privguard/internal/domain"

// regionFinder labels regions in a binary mask, reusing its buffers.
type regionFinder struct {
	outside []bool
	seen    []bool
	queue   []int32
}

func newRegionFinder(pixels int) *regionFinder {
	return &regionFinder{
		outside: make([]bool, pixels),
		seen:    make([]bool, pixels),
		queue:   make([]int32, 0, 1024),
	}
}

// find returns every region of mask (values 0/1). Background pixels that
// cannot reach the image border through 4-connected background are holes and
// count toward the enclosing region. Foreground uses 8-connectivity, the
// dual of 4-connected background, so nested blobs merge into their parent.
func (f *regionFinder) find(mask []uint8, w, h int) []region {
	f.markOutside(mask, w, h)

	filled := func(i int) bool { return mask[i] != 0 || !f.outside[i] }

	for i := range f.seen {
		f.seen[i] = false
	}

	var regions []region
	for start := 0; start < w*h; start++ {
		if f.seen[start] || !filled(start) {
			continue
		}
		sx, sy := start%w, start/w
		var r region
		minX, minY, maxX, maxY := sx, sy, sx, sy

		f.seen[start] = true
		f.queue = append(f.queue[:0], int32(start))
		for len(f.queue) > 0 {
			p := int(f.queue[len(f.queue)-1])
			f.queue = f.queue[:len(f.queue)-1]
			r.area++

			x, y := p%w, p/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if (dx == 0 && dy == 0) || xx < 0 || yy < 0 || xx >= w || yy >= h {
						continue
					}
					n := yy*w + xx
					if !f.seen[n] && filled(n) {
						f.seen[n] = true
						f.queue = append(f.queue, int32(n))
					}
				}
			}
		}

		r.box = domain.Rect{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
		regions = append(regions, r)
	}
	return regions
}

// markOutside floods background from the border with 4-connectivity.
func (f *regionFinder) markOutside(mask []uint8, w, h int) {
	for i := range f.outside {
		f.outside[i] = false
	}
	f.queue = f.queue[:0]

	push := func(i int) {
		if mask[i] == 0 && !f.outside[i] {
			f.outside[i] = true
			f.queue = append(f.queue, int32(i))
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}

	for len(f.queue) > 0 {
		p := int(f.queue[len(f.queue)-1])
		f.queue = f.queue[:len(f.queue)-1]
		x, y := p%w, p/w
		if x > 0 {
			push(p - 1)
		}
		if x < w-1 {
			push(p + 1)
		}
		if y > 0 {
			push(p - w)
		}
		if y < h-1 {
			push(p + w)
		}
	}
}
