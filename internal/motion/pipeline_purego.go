//go:build purego

package motion

import "github.com/eliteGoblin/focusd/privguard/internal/domain"

// goPipeline is the cgo-free pipeline, selected with -tags purego.
type goPipeline struct {
	w, h int

	gray    []float32
	blurred []float32
	mask    []uint8
	bin     []uint8
	tmp     []uint8

	blur    *blurrer
	model   *mixtureModel
	element []offset
	finder  *regionFinder
}

func newPipeline(cfg Config, w, h int) pipeline {
	n := w * h
	p := defaultMixtureParams()
	p.Mixtures = cfg.Mixtures
	p.History = cfg.History
	p.DetectShadows = cfg.DetectShadows

	return &goPipeline{
		w:       w,
		h:       h,
		gray:    make([]float32, n),
		blurred: make([]float32, n),
		mask:    make([]uint8, n),
		bin:     make([]uint8, n),
		tmp:     make([]uint8, n),
		blur:    newBlurrer(cfg.BlurKernel, n),
		model:   newMixtureModel(p, n),
		element: ellipseElement(cfg.MorphKernel),
		finder:  newRegionFinder(n),
	}
}

func (p *goPipeline) regions(frame *domain.Frame) []region {
	luminance(frame, p.gray)
	p.blur.apply(p.gray, p.blurred, p.w, p.h)
	p.model.apply(p.blurred, p.mask)

	for i, v := range p.mask {
		if v == maskForeground {
			p.bin[i] = 1
		} else {
			p.bin[i] = 0
		}
	}
	closeThenOpen(p.bin, p.tmp, p.w, p.h, p.element)
	return p.finder.find(p.bin, p.w, p.h)
}

func (p *goPipeline) close() {}
