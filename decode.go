package panodecode

import (
	"context"
	"fmt"
)

// Decode runs the full pipeline for one request on the calling goroutine:
// header, decode size, pixel decode and conversion to the requested target.
func Decode(ctx context.Context, req DecodeRequest) (*DecodeResult, error) {
	switch req.Target.Kind {
	case TargetRGB16F, TargetRGBA8:
	default:
		return nil, fmt.Errorf("unknown target kind %d", int(req.Target.Kind))
	}
	meta, err := ReadMetadata(req.Format, req.Data)
	if err != nil {
		return nil, err
	}
	dw, dh := DecodeSize(meta.Width, meta.Height, req.Quality, req.MaxTextureSize)

	var img *HDRImage
	switch req.Format {
	case FormatHDR:
		img, err = DecodeHDR(ctx, req.Data, dw, dh)
	case FormatEXR:
		img, err = DecodeEXR(ctx, req.Data, dw, dh)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &DecodeResult{
		ID:           req.ID,
		Format:       meta.Format,
		Width:        meta.Width,
		Height:       meta.Height,
		DecodeWidth:  img.W,
		DecodeHeight: img.H,
		Kind:         req.Target.Kind,
	}
	switch req.Target.Kind {
	case TargetRGB16F:
		res.Half = packRGB16F(img)
	default:
		res.RGBA = packRGBA8(img, req.Target)
	}
	return res, nil
}

func packRGB16F(img *HDRImage) []uint16 {
	out := make([]uint16, len(img.Pix))
	rowLen := img.W * 3
	parallelFor(img.H, func(start, end int) {
		packHalfInto(out[start*rowLen:end*rowLen], img.Pix[start*rowLen:end*rowLen])
	})
	return out
}

func packRGBA8(img *HDRImage, t Target) []uint8 {
	out := make([]uint8, img.W*img.H*4)
	parallelFor(img.H, func(start, end int) {
		q := newDisplayQuantizer(t)
		for i := start * img.W; i < end*img.W; i++ {
			out[i*4] = q.quantize(0, img.Pix[i*3])
			out[i*4+1] = q.quantize(1, img.Pix[i*3+1])
			out[i*4+2] = q.quantize(2, img.Pix[i*3+2])
			out[i*4+3] = 0xFF
		}
	})
	return out
}
