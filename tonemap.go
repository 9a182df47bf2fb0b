package panodecode

import "math"

// ToneMap applies exposure (in stops) and a tone curve to a linear value.
// Non-finite input is treated as 0.
func ToneMap(v, exposure float32, mode ToneMapping) float32 {
	x := float64(v)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		x = 0
	}
	x *= math.Exp2(float64(exposure))

	switch mode {
	case ToneMapReinhard:
		x /= 1 + x
	case ToneMapACES:
		x = (x * (acesA*x + acesB)) / (x*(acesC*x+acesD) + acesE)
	}
	return float32(x)
}

// LinearToDisplay8 tone maps a linear value and quantizes it to an 8-bit display value.
// A gamma that is not a positive finite number is treated as 2.2.
func LinearToDisplay8(v, exposure float32, mode ToneMapping, gamma float32) uint8 {
	t := float64(ToneMap(v, exposure, mode))
	if !(t > 0) {
		// Catches NaN from degenerate curves as well as negatives.
		t = 0
	}
	if t > 1 {
		t = 1
	}
	g := float64(gamma)
	if !(g > 0) || math.IsInf(g, 1) {
		g = defaultGamma
	}
	q := math.Round(math.Pow(t, 1/g) * 255)
	if q < 0 {
		return 0
	}
	if q > 255 {
		return 255
	}
	return uint8(q)
}

// displayQuantizer memoizes LinearToDisplay8 per channel for one target.
// Panoramas carry large flat regions (sky, night), so neighbours often repeat.
type displayQuantizer struct {
	exposure float32
	mode     ToneMapping
	gamma    float32
	last     [3]uint32
	lastOut  [3]uint8
	primed   [3]bool
}

func newDisplayQuantizer(t Target) *displayQuantizer {
	return &displayQuantizer{exposure: t.Exposure, mode: t.ToneMapping, gamma: t.Gamma}
}

func (q *displayQuantizer) quantize(c int, v float32) uint8 {
	bits := math.Float32bits(v)
	if q.primed[c] && bits == q.last[c] {
		return q.lastOut[c]
	}
	q.last[c] = bits
	q.lastOut[c] = LinearToDisplay8(v, q.exposure, q.mode, q.gamma)
	q.primed[c] = true
	return q.lastOut[c]
}
