//go:build !purego

package motion

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// gocvPipeline runs OpenCV's MOG2 subtractor with Gaussian pre-blur and an
// elliptic close/open cleanup. Mats are reused between frames.
type gocvPipeline struct {
	blur    image.Point
	sub     gocv.BackgroundSubtractorMOG2
	kernel  gocv.Mat
	gray    gocv.Mat
	blurred gocv.Mat
	fg      gocv.Mat
	bin     gocv.Mat
}

func newPipeline(cfg Config, w, h int) pipeline {
	return &gocvPipeline{
		blur:    image.Pt(cfg.BlurKernel, cfg.BlurKernel),
		sub:     gocv.NewBackgroundSubtractorMOG2WithParams(cfg.History, 16, cfg.DetectShadows),
		kernel:  gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(cfg.MorphKernel, cfg.MorphKernel)),
		gray:    gocv.NewMat(),
		blurred: gocv.NewMat(),
		fg:      gocv.NewMat(),
		bin:     gocv.NewMat(),
	}
}

func (p *gocvPipeline) regions(frame *domain.Frame) []region {
	if err := p.toGray(frame); err != nil {
		return nil
	}
	_ = gocv.GaussianBlur(p.gray, &p.blurred, p.blur, 0, 0, gocv.BorderDefault)
	p.sub.Apply(p.blurred, &p.fg)

	// Shadows are marked 127; keep foreground (255) only.
	gocv.Threshold(p.fg, &p.bin, 254, 255, gocv.ThresholdBinary)
	_ = gocv.MorphologyEx(p.bin, &p.bin, gocv.MorphClose, p.kernel)
	_ = gocv.MorphologyEx(p.bin, &p.bin, gocv.MorphOpen, p.kernel)

	contours := gocv.FindContours(p.bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	found := make([]region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		r := gocv.BoundingRect(c)
		found = append(found, region{
			area: gocv.ContourArea(c),
			box:  domain.Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()},
		})
	}
	return found
}

func (p *gocvPipeline) toGray(frame *domain.Frame) error {
	typ := gocv.MatTypeCV8UC3
	switch frame.Channels {
	case 1:
		typ = gocv.MatTypeCV8UC1
	case 4:
		typ = gocv.MatTypeCV8UC4
	}
	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, typ, frame.Pix)
	if err != nil {
		return err
	}
	defer src.Close()

	switch frame.Channels {
	case 1:
		return src.CopyTo(&p.gray)
	case 4:
		return gocv.CvtColor(src, &p.gray, gocv.ColorBGRAToGray)
	default:
		return gocv.CvtColor(src, &p.gray, gocv.ColorBGRToGray)
	}
}

func (p *gocvPipeline) close() {
	_ = p.sub.Close()
	_ = p.kernel.Close()
	_ = p.gray.Close()
	_ = p.blurred.Close()
	_ = p.fg.Close()
	_ = p.bin.Close()
}
