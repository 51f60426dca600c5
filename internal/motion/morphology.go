//go:build purego

package motion

import "math"

// offset is one cell of a structuring element relative to its anchor.
type offset struct {
	dx, dy int
}

// ellipseElement builds the size×size elliptic structuring element with the
// same row spans as OpenCV's MORPH_ELLIPSE.
func ellipseElement(size int) []offset {
	r := size / 2
	c := size / 2
	invR2 := 0.0
	if r > 0 {
		invR2 = 1 / float64(r*r)
	}

	var se []offset
	for i := 0; i < size; i++ {
		dy := i - r
		j1, j2 := 0, 0
		if dy*dy <= r*r {
			dx := int(math.Round(float64(c) * math.Sqrt(float64(r*r-dy*dy)*invR2)))
			j1 = max(c-dx, 0)
			j2 = min(c+dx+1, size)
		}
		for j := j1; j < j2; j++ {
			se = append(se, offset{dx: j - c, dy: dy})
		}
	}
	return se
}

// erode sets dst to 1 where every in-image cell under the element is set.
// Cells outside the image do not constrain the result.
func erode(src, dst []uint8, w, h int, se []offset) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if src[i] == 0 {
				dst[i] = 0
				continue
			}
			v := uint8(1)
			for _, o := range se {
				xx, yy := x+o.dx, y+o.dy
				if xx < 0 || yy < 0 || xx >= w || yy >= h {
					continue
				}
				if src[yy*w+xx] == 0 {
					v = 0
					break
				}
			}
			dst[i] = v
		}
	}
}

// dilate sets dst to 1 where any in-image cell under the element is set.
func dilate(src, dst []uint8, w, h int, se []offset) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if src[i] != 0 {
				dst[i] = 1
				continue
			}
			v := uint8(0)
			for _, o := range se {
				xx, yy := x-o.dx, y-o.dy
				if xx < 0 || yy < 0 || xx >= w || yy >= h {
					continue
				}
				if src[yy*w+xx] != 0 {
					v = 1
					break
				}
			}
			dst[i] = v
		}
	}
}

// closeThenOpen merges fragmented blobs, then removes speckle. The result is
// left in buf; tmp is scratch.
func closeThenOpen(buf, tmp []uint8, w, h int, se []offset) {
	dilate(buf, tmp, w, h, se)
	erode(tmp, buf, w, h, se)
	erode(buf, tmp, w, h, se)
	dilate(tmp, buf, w, h, se)
}
