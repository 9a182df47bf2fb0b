package panodecode

import "fmt"

const (
	rleMinWidth = 8
	rleMaxWidth = 0x7FFF
)

// scanlineReader walks RGBE scanlines sequentially.
type scanlineReader struct {
	data  []byte
	pos   int
	width int
}

// next decodes one scanline of interleaved RGBE quads into line (len width*4).
func (r *scanlineReader) next(line []byte) error {
	if r.width < rleMinWidth || r.width > rleMaxWidth || !r.rleMarker() {
		return r.readFlat(line)
	}
	r.pos += 4
	return r.readRLE(line)
}

func (r *scanlineReader) rleMarker() bool {
	if r.pos+4 > len(r.data) {
		return false
	}
	b := r.data[r.pos : r.pos+4]
	return b[0] == 2 && b[1] == 2 && b[2]&0x80 == 0 && int(b[2])<<8|int(b[3]) == r.width
}

func (r *scanlineReader) readFlat(line []byte) error {
	if r.pos+len(line) > len(r.data) {
		return fmt.Errorf("%w: flat scanline", ErrUnexpectedEOF)
	}
	copy(line, r.data[r.pos:])
	r.pos += len(line)
	return nil
}

// readRLE decodes the four component planes (R, G, B, E) of an adaptive RLE scanline.
func (r *scanlineReader) readRLE(line []byte) error {
	for c := 0; c < 4; c++ {
		for x := 0; x < r.width; {
			if r.pos >= len(r.data) {
				return fmt.Errorf("%w: run header", ErrUnexpectedEOF)
			}
			count := int(r.data[r.pos])
			r.pos++

			if count > 128 {
				count -= 128
				if x+count > r.width {
					return fmt.Errorf("%w: run of %d overflows scanline", ErrInvalidChunkSize, count)
				}
				if r.pos >= len(r.data) {
					return fmt.Errorf("%w: run value", ErrUnexpectedEOF)
				}
				v := r.data[r.pos]
				r.pos++
				for ; count > 0; count-- {
					line[x*4+c] = v
					x++
				}
				continue
			}

			if count == 0 || x+count > r.width {
				return fmt.Errorf("%w: literal of %d overflows scanline", ErrInvalidChunkSize, count)
			}
			if r.pos+count > len(r.data) {
				return fmt.Errorf("%w: literal run", ErrUnexpectedEOF)
			}
			for _, v := range r.data[r.pos : r.pos+count] {
				line[x*4+c] = v
				x++
			}
			r.pos += count
		}
	}
	return nil
}
