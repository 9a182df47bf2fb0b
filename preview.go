package panodecode

import (
	"errors"
	"image"

	"github.com/nfnt/resize"
)

// Image returns the result as an *image.RGBA.
//
// RGBA8 results wrap the decoded bytes without copying. RGB16F results are
// tone mapped with the given target first, since half floats have no
// display-ready form.
func (r *DecodeResult) Image(t Target) (*image.RGBA, error) {
	rect := image.Rect(0, 0, r.DecodeWidth, r.DecodeHeight)
	switch r.Kind {
	case TargetRGBA8:
		if len(r.RGBA) != r.DecodeWidth*r.DecodeHeight*4 {
			return nil, errors.New("rgba buffer does not match decode size")
		}
		return &image.RGBA{Pix: r.RGBA, Stride: r.DecodeWidth * 4, Rect: rect}, nil
	case TargetRGB16F:
		if len(r.Half) != r.DecodeWidth*r.DecodeHeight*3 {
			return nil, errors.New("half buffer does not match decode size")
		}
		lin := &HDRImage{W: r.DecodeWidth, H: r.DecodeHeight, Pix: make([]float32, len(r.Half))}
		for i, h := range r.Half {
			lin.Pix[i] = HalfToFloat(h)
		}
		return &image.RGBA{Pix: packRGBA8(lin, t), Stride: r.DecodeWidth * 4, Rect: rect}, nil
	default:
		return nil, errors.New("unknown target kind")
	}
}

// Thumbnail returns a preview no larger than maxW x maxH that keeps the aspect
// ratio, scaled with Lanczos3 resampling.
func (r *DecodeResult) Thumbnail(maxW, maxH uint, t Target) (image.Image, error) {
	img, err := r.Image(t)
	if err != nil {
		return nil, err
	}
	return resize.Thumbnail(maxW, maxH, img, resize.Lanczos3), nil
}
