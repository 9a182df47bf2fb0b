package panodecode

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type hdrHeader struct {
	width, height int
	bottomUp      bool // +Y: first stored scanline is the bottom row
	mirrorX       bool // +X
	dataOffset    int
}

func parseHDRHeader(data []byte) (*hdrHeader, error) {
	pos := 0
	nextLine := func() (string, bool) {
		if pos >= len(data) {
			return "", false
		}
		i := bytes.IndexByte(data[pos:], '\n')
		if i < 0 {
			return "", false
		}
		line := data[pos : pos+i]
		pos += i + 1
		return string(bytes.TrimRight(line, "\r")), true
	}

	formatOK := false
	for {
		line, ok := nextLine()
		if !ok {
			if !formatOK {
				return nil, fmt.Errorf("%w: missing FORMAT directive", ErrInvalidFormat)
			}
			return nil, fmt.Errorf("%w: header is not terminated", ErrUnexpectedEOF)
		}
		if line == "" {
			break
		}
		if v, found := strings.CutPrefix(line, "FORMAT="); found {
			if v = strings.TrimSpace(v); v != hdrFormat32BitRLE {
				return nil, fmt.Errorf("%w: unsupported FORMAT %q", ErrInvalidFormat, v)
			}
			formatOK = true
		}
	}
	if !formatOK {
		return nil, fmt.Errorf("%w: missing FORMAT directive", ErrInvalidFormat)
	}

	line, ok := nextLine()
	if !ok {
		return nil, fmt.Errorf("%w: missing resolution line", ErrInvalidResolution)
	}
	h, err := parseHDRResolution(line)
	if err != nil {
		return nil, err
	}
	h.dataOffset = pos
	return h, nil
}

// parseHDRResolution accepts "<+|->Y <height> <+|->X <width>".
func parseHDRResolution(line string) (*hdrHeader, error) {
	f := strings.Fields(line)
	if len(f) != 4 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, line)
	}
	h := &hdrHeader{}
	switch f[0] {
	case "-Y":
	case "+Y":
		h.bottomUp = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, line)
	}
	switch f[2] {
	case "-X":
	case "+X":
		h.mirrorX = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, line)
	}
	var err error
	if h.height, err = strconv.Atoi(f[1]); err != nil || h.height <= 0 {
		return nil, fmt.Errorf("%w: bad height in %q", ErrInvalidResolution, line)
	}
	if h.width, err = strconv.Atoi(f[3]); err != nil || h.width <= 0 {
		return nil, fmt.Errorf("%w: bad width in %q", ErrInvalidResolution, line)
	}
	return h, nil
}

// DecodeHDR decodes a Radiance RGBE file into a dw x dh linear image using
// nearest-neighbor sampling. Every scanline is decoded in file order because
// RLE streams can only be walked sequentially.
func DecodeHDR(ctx context.Context, data []byte, dw, dh int) (*HDRImage, error) {
	h, err := parseHDRHeader(data)
	if err != nil {
		return nil, err
	}
	if err := h.fits(len(data) - h.dataOffset); err != nil {
		return nil, err
	}
	dw, dh = clampDecodeSize(h.width, h.height, dw, dh)

	rows := rowTargets(h.height, dh, h.bottomUp)
	cols := nearestMap(h.width, dw, h.mirrorX)
	out := newHDRImage(dw, dh)

	sr := scanlineReader{data: data, pos: h.dataOffset, width: h.width}
	line := make([]byte, h.width*4)
	for y := 0; y < h.height; y++ {
		if y&63 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := sr.next(line); err != nil {
			return nil, fmt.Errorf("scanline %d: %w", y, err)
		}
		oy := rows[y]
		if oy < 0 {
			continue
		}
		dst := out.Pix[oy*dw*3 : (oy+1)*dw*3]
		for x, sx := range cols {
			rgbeToLinear(dst[x*3:x*3+3], line[sx*4:sx*4+4])
		}
	}
	return out, nil
}

// fits reports ErrUnexpectedEOF when n payload bytes cannot hold the declared
// scanlines, even with the tightest run-length packing.
func (h *hdrHeader) fits(n int) error {
	var line int
	if h.width < rleMinWidth || h.width > rleMaxWidth {
		if h.width > n/4 {
			return fmt.Errorf("%w: %d bytes cannot hold a %d texel scanline", ErrUnexpectedEOF, n, h.width)
		}
		line = 4 * h.width
	} else {
		line = 4 + 8*((h.width+127)/128) // marker and one run per 128 texels in each plane
	}
	if h.height > n/line {
		return fmt.Errorf("%w: %d bytes cannot hold %d scanlines", ErrUnexpectedEOF, n, h.height)
	}
	return nil
}

func rgbeToLinear(dst []float32, q []byte) {
	if q[3] == 0 {
		dst[0], dst[1], dst[2] = 0, 0, 0
		return
	}
	scale := math.Ldexp(1, int(q[3])-136)
	dst[0] = float32((float64(q[0]) + 0.5) * scale)
	dst[1] = float32((float64(q[1]) + 0.5) * scale)
	dst[2] = float32((float64(q[2]) + 0.5) * scale)
}
