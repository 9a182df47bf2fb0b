package panodecode

import "math"

// MaxDimension returns the largest decode dimension allowed for a quality tier,
// clamped to [256, maxTextureSize]. A maxTextureSize <= 0 means no limit.
// The texture limit wins when it is below 256.
func MaxDimension(q Quality, maxTextureSize int) int {
	d := maxDimMedium
	switch q {
	case QualityLow:
		d = maxDimLow
	case QualityHigh:
		d = maxDimHigh
	}
	d = max(d, minDecodeDim)
	if maxTextureSize > 0 {
		d = min(d, maxTextureSize)
	}
	return d
}

// DecodeSize picks the decode resolution for a width x height source.
// The aspect ratio is kept and the result never exceeds the source.
func DecodeSize(width, height int, q Quality, maxTextureSize int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	maxDim := MaxDimension(q, maxTextureSize)
	scale := math.Min(1, float64(maxDim)/float64(max(width, height)))
	dw := int(math.Round(float64(width) * scale))
	dh := int(math.Round(float64(height) * scale))
	return max(dw, 1), max(dh, 1)
}
