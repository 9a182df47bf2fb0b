package panodecode

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// coordQuad stores x in R and y in G with a unit exponent, so the decoded
// value of a texel is (x+0.5, y+0.5, 0.5).
func coordQuad(x, y int) [4]byte {
	return [4]byte{byte(x), byte(y), 0, 136}
}

func TestScanlineReader_rleRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, width := range []int{8, 9, 127, 128, 129, 300, 1000} {
		line := make([]byte, width*4)
		for i := range line {
			// Mix runs and noise.
			if (i/4/37)%2 == 0 {
				line[i] = byte(i % 4)
			} else {
				line[i] = byte(rng.Intn(256))
			}
		}
		enc := encodeRLEScanline(line, width)
		sr := scanlineReader{data: enc, width: width}
		got := make([]byte, len(line))
		if err := sr.next(got); err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		if !bytes.Equal(got, line) {
			t.Fatalf("width %d: decoded scanline differs", width)
		}
		if sr.pos != len(enc) {
			t.Fatalf("width %d: consumed %d of %d bytes", width, sr.pos, len(enc))
		}
	}
}

func TestDecodeHDR_values(t *testing.T) {
	for _, rle := range []bool{false, true} {
		data := buildHDR(16, 8, "-", "-", rle, func(x, y int) [4]byte {
			return [4]byte{127, byte(x * 10), byte(y), 128}
		})
		img, err := DecodeHDR(context.Background(), data, 0, 0)
		if err != nil {
			t.Fatalf("rle=%v: %v", rle, err)
		}
		if img.W != 16 || img.H != 8 {
			t.Fatalf("rle=%v: size %dx%d", rle, img.W, img.H)
		}
		r, g, b := img.At(3, 5)
		if r != 127.5/256 || g != 30.5/256 || b != 5.5/256 {
			t.Fatalf("rle=%v: pixel (3,5) = %g %g %g", rle, r, g, b)
		}
	}
}

func TestDecodeHDR_zeroExponentIsBlack(t *testing.T) {
	data := buildHDR(4, 2, "-", "+", false, func(x, y int) [4]byte {
		return [4]byte{200, 200, 200, 0}
	})
	img, err := DecodeHDR(context.Background(), data, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range img.Pix {
		if v != 0 {
			t.Fatalf("expected black, got %g", v)
		}
	}
}

func TestDecodeHDR_orientation(t *testing.T) {
	const w, h = 12, 6
	cases := []struct {
		y, x string
		// source texel expected at output (ox, oy)
		src func(ox, oy int) (int, int)
	}{
		{"-", "-", func(ox, oy int) (int, int) { return ox, oy }},
		{"+", "-", func(ox, oy int) (int, int) { return ox, h - 1 - oy }},
		{"-", "+", func(ox, oy int) (int, int) { return w - 1 - ox, oy }},
		{"+", "+", func(ox, oy int) (int, int) { return w - 1 - ox, h - 1 - oy }},
	}
	for _, c := range cases {
		data := buildHDR(w, h, c.y, c.x, true, coordQuad)
		img, err := DecodeHDR(context.Background(), data, 0, 0)
		if err != nil {
			t.Fatalf("%sY %sX: %v", c.y, c.x, err)
		}
		for oy := 0; oy < h; oy++ {
			for ox := 0; ox < w; ox++ {
				sx, sy := c.src(ox, oy)
				r, g, _ := img.At(ox, oy)
				if r != float32(sx)+0.5 || g != float32(sy)+0.5 {
					t.Fatalf("%sY %sX: output (%d,%d) holds (%g,%g), want texel (%d,%d)",
						c.y, c.x, ox, oy, r, g, sx, sy)
				}
			}
		}
	}
}

func TestDecodeHDR_downsample(t *testing.T) {
	data := buildHDR(64, 32, "-", "-", true, coordQuad)
	img, err := DecodeHDR(context.Background(), data, 16, 8)
	if err != nil {
		t.Fatal(err)
	}
	if img.W != 16 || img.H != 8 {
		t.Fatalf("size %dx%d", img.W, img.H)
	}
	for oy := 0; oy < 8; oy++ {
		for ox := 0; ox < 16; ox++ {
			r, g, _ := img.At(ox, oy)
			if r != float32(ox*64/16)+0.5 || g != float32(oy*32/8)+0.5 {
				t.Fatalf("output (%d,%d) = (%g,%g)", ox, oy, r, g)
			}
		}
	}

	again, err := DecodeHDR(context.Background(), data, 16, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Pix {
		if math.Float32bits(img.Pix[i]) != math.Float32bits(again.Pix[i]) {
			t.Fatal("decode is not deterministic")
		}
	}
}

func TestDecodeHDR_narrowImagesAreFlat(t *testing.T) {
	// Widths below 8 never use RLE, even when bytes look like a marker.
	data := buildHDR(4, 3, "-", "+", false, func(x, y int) [4]byte {
		return [4]byte{2, 2, 0, 4}
	})
	img, err := DecodeHDR(context.Background(), data, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := float32(2.5 * math.Ldexp(1, 4-136))
	if r, _, _ := img.At(1, 1); r != want {
		t.Fatalf("got %g, want %g", r, want)
	}
}

func TestDecodeHDR_errors(t *testing.T) {
	full := buildHDR(16, 4, "-", "+", true, coordQuad)
	hdrLen := bytes.Index(full, []byte("+X 16\n")) + len("+X 16\n")

	_, err := DecodeHDR(context.Background(), full[:len(full)-3], 0, 0)
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("truncated: got %v", err)
	}

	flat := buildHDR(16, 4, "-", "+", false, coordQuad)
	_, err = DecodeHDR(context.Background(), flat[:len(flat)-1], 0, 0)
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("truncated flat: got %v", err)
	}

	overflow := append([]byte(nil), full[:hdrLen]...)
	overflow = append(overflow, 2, 2, 0, 16, 128+17, 1)
	overflow = append(overflow, make([]byte, 64)...)
	_, err = DecodeHDR(context.Background(), overflow, 0, 0)
	if !errors.Is(err, ErrInvalidChunkSize) {
		t.Fatalf("overflowing run: got %v", err)
	}

	zero := append([]byte(nil), full[:hdrLen]...)
	zero = append(zero, 2, 2, 0, 16, 0)
	zero = append(zero, make([]byte, 64)...)
	_, err = DecodeHDR(context.Background(), zero, 0, 0)
	if !errors.Is(err, ErrInvalidChunkSize) {
		t.Fatalf("zero literal: got %v", err)
	}
}

func TestDecodeHDR_declaredSizeExceedsPayload(t *testing.T) {
	cases := []struct {
		name, res string
		err       error
	}{
		{"huge width", "-Y 1 +X 4611686018427387905", ErrUnexpectedEOF},
		{"huge height", "-Y 100000000 +X 8", ErrUnexpectedEOF},
		{"max int32 height", "-Y 2147483647 +X 8", ErrUnexpectedEOF},
		{"wide flat", "-Y 1 +X 40000", ErrUnexpectedEOF},
		{"overflowing width", "-Y 1 +X 99999999999999999999", ErrInvalidResolution},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data := []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n" + c.res + "\n")
			data = append(data, make([]byte, 64)...)
			if _, err := DecodeHDR(context.Background(), data, 0, 0); !errors.Is(err, c.err) {
				t.Fatalf("got %v, want %v", err, c.err)
			}
			if _, err := Decode(context.Background(), DecodeRequest{Format: FormatHDR, Data: data}); !errors.Is(err, c.err) {
				t.Fatalf("Decode: got %v, want %v", err, c.err)
			}
		})
	}
}

func TestDecodeHDR_cancelled(t *testing.T) {
	data := buildHDR(16, 4, "-", "+", true, coordQuad)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DecodeHDR(ctx, data, 0, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}
