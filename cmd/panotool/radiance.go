package main

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/vearutop/panodecode"
)

// halfImage exposes an RGB16F decode result as an hdr.Image. Columns are served
// right to left: the rgbe encoder always declares +X, which panodecode reads as
// mirrored, so the written file decodes back to the original orientation.
type halfImage struct {
	res *panodecode.DecodeResult
}

func (m halfImage) ColorModel() color.Model { return hdrcolor.RGBModel }

func (m halfImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.res.DecodeWidth, m.res.DecodeHeight)
}

func (m halfImage) At(x, y int) color.Color { return m.HDRAt(x, y) }

func (m halfImage) HDRAt(x, y int) hdrcolor.Color {
	i := (y*m.res.DecodeWidth + m.res.DecodeWidth - 1 - x) * 3
	return hdrcolor.RGB{
		R: float64(panodecode.HalfToFloat(m.res.Half[i])),
		G: float64(panodecode.HalfToFloat(m.res.Half[i+1])),
		B: float64(panodecode.HalfToFloat(m.res.Half[i+2])),
	}
}

func (m halfImage) Size() int { return m.res.DecodeWidth * m.res.DecodeHeight }

// writeRadiance stores a linear decode result as a Radiance RGBE file.
func writeRadiance(path string, res *panodecode.DecodeResult) error {
	if res.Kind != panodecode.TargetRGB16F || len(res.Half) != res.DecodeWidth*res.DecodeHeight*3 {
		return errors.New("radiance output needs an rgb16f decode")
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := rgbe.Encode(f, halfImage{res: res}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
