//go:build purego

package motion

// Mask values produced by the mixture model.
const (
	maskBackground uint8 = 0
	maskShadow     uint8 = 127
	maskForeground uint8 = 255
)

// mixtureParams tunes the per-pixel Gaussian mixture. Field meanings follow
// Zivkovic's adaptive GMM (the MOG2 family).
type mixtureParams struct {
	Mixtures        int     // Components per pixel (2-5)
	History         int     // Learning horizon in frames
	VarThreshold    float32 // Squared Mahalanobis distance for "background"
	VarThresholdGen float32 // Squared Mahalanobis distance for "matches a component"
	BackgroundRatio float32 // Weight mass that counts as background
	VarInit         float32
	VarMin          float32
	VarMax          float32
	Complexity      float32 // Prior that prunes weak components
	ShadowTau       float32 // Darkest brightness ratio still treated as shadow
	DetectShadows   bool
}

func defaultMixtureParams() mixtureParams {
	return mixtureParams{
		Mixtures:        3,
		History:         500,
		VarThreshold:    16,
		VarThresholdGen: 9,
		BackgroundRatio: 0.9,
		VarInit:         15,
		VarMin:          4,
		VarMax:          75,
		Complexity:      0.05,
		ShadowTau:       0.5,
		DetectShadows:   true,
	}
}

// mixtureModel is the per-pixel background model. Components of a pixel are
// kept sorted by descending weight.
type mixtureModel struct {
	p        mixtureParams
	weight   []float32
	mean     []float32
	variance []float32
	modes    []uint8
	frames   int
}

func newMixtureModel(p mixtureParams, pixels int) *mixtureModel {
	k := p.Mixtures
	return &mixtureModel{
		p:        p,
		weight:   make([]float32, pixels*k),
		mean:     make([]float32, pixels*k),
		variance: make([]float32, pixels*k),
		modes:    make([]uint8, pixels),
	}
}

// learningRate is 1/min(2n, history): fast absorption right after start,
// settling to the configured horizon.
func (m *mixtureModel) learningRate() float32 {
	n := 2 * m.frames
	if n > m.p.History {
		n = m.p.History
	}
	if n < 1 {
		n = 1
	}
	return 1 / float32(n)
}

func (m *mixtureModel) swap(a, b int) {
	m.weight[a], m.weight[b] = m.weight[b], m.weight[a]
	m.mean[a], m.mean[b] = m.mean[b], m.mean[a]
	m.variance[a], m.variance[b] = m.variance[b], m.variance[a]
}

// apply updates the model with one gray plane and writes the classification
// into mask. Pixels with no components yet are seeded and reported as
// background.
func (m *mixtureModel) apply(gray []float32, mask []uint8) {
	m.frames++
	p := &m.p
	alpha := m.learningRate()
	keep := 1 - alpha
	prune := -alpha * p.Complexity
	K := p.Mixtures

	for i, x := range gray {
		base := i * K
		nmodes := int(m.modes[i])

		if nmodes == 0 {
			m.weight[base] = 1
			m.mean[base] = x
			m.variance[base] = p.VarInit
			m.modes[i] = 1
			mask[i] = maskBackground
			continue
		}

		fits := false
		background := false
		live := nmodes
		var total float32

		for mode := 0; mode < nmodes; mode++ {
			idx := base + mode
			w := keep*m.weight[idx] + prune
			swaps := 0

			if !fits {
				v := m.variance[idx]
				diff := m.mean[idx] - x
				dist2 := diff * diff

				if total < p.BackgroundRatio && dist2 < p.VarThreshold*v {
					background = true
				}

				if dist2 < p.VarThresholdGen*v {
					fits = true
					w += alpha
					k := alpha / w
					m.mean[idx] -= k * diff
					nv := v + k*(dist2-v)
					if nv < p.VarMin {
						nv = p.VarMin
					}
					if nv > p.VarMax {
						nv = p.VarMax
					}
					m.variance[idx] = nv

					for j := mode; j > 0; j-- {
						if w < m.weight[base+j-1] {
							break
						}
						swaps++
						m.swap(base+j, base+j-1)
					}
				}
			}

			if w < -prune {
				w = 0
				live--
			}
			m.weight[base+mode-swaps] = w
			total += w
		}

		if total > 0 {
			inv := 1 / total
			for mode := 0; mode < live; mode++ {
				m.weight[base+mode] *= inv
			}
		}
		nmodes = live

		if !fits {
			var mode int
			if nmodes == K {
				mode = K - 1
			} else {
				mode = nmodes
				nmodes++
			}
			idx := base + mode
			if nmodes == 1 {
				m.weight[idx] = 1
			} else {
				m.weight[idx] = alpha
				for j := 0; j < nmodes-1; j++ {
					m.weight[base+j] *= keep
				}
			}
			m.mean[idx] = x
			m.variance[idx] = p.VarInit

			for j := nmodes - 1; j > 0; j-- {
				if alpha < m.weight[base+j-1] {
					break
				}
				m.swap(base+j, base+j-1)
			}
		}
		m.modes[i] = uint8(nmodes)

		switch {
		case background:
			mask[i] = maskBackground
		case p.DetectShadows && m.isShadow(base, nmodes, x):
			mask[i] = maskShadow
		default:
			mask[i] = maskForeground
		}
	}
}

// isShadow reports whether x looks like a darkened copy of one of the
// background components.
func (m *mixtureModel) isShadow(base, nmodes int, x float32) bool {
	p := &m.p
	var tWeight float32
	for mode := 0; mode < nmodes; mode++ {
		idx := base + mode
		mu := m.mean[idx]
		num := x * mu
		den := mu * mu
		if den == 0 {
			return false
		}
		if num <= den && num >= p.ShadowTau*den {
			a := num / den
			d := a*mu - x
			if d*d < p.VarThreshold*m.variance[idx]*a*a {
				return true
			}
		}
		tWeight += m.weight[idx]
		if tWeight > p.BackgroundRatio {
			return false
		}
	}
	return false
}
