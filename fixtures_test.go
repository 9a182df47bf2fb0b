package panodecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/vearutop/panodecode/internal/exrzip"
)

// buildHDR writes a Radiance file. quad returns the RGBE texel for image
// position (x, y) in storage order.
func buildHDR(w, h int, ySign, xSign string, rle bool, quad func(x, y int) [4]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("#?RADIANCE\n# made by tests\nFORMAT=32-bit_rle_rgbe\nEXPOSURE=1.0\n\n")
	fmt.Fprintf(&buf, "%sY %d %sX %d\n", ySign, h, xSign, w)

	line := make([]byte, w*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := quad(x, y)
			copy(line[x*4:], q[:])
		}
		if rle {
			buf.Write(encodeRLEScanline(line, w))
		} else {
			buf.Write(line)
		}
	}
	return buf.Bytes()
}

// encodeRLEScanline encodes interleaved RGBE quads with adaptive run-length planes.
func encodeRLEScanline(line []byte, width int) []byte {
	out := []byte{2, 2, byte(width >> 8), byte(width)}
	plane := make([]byte, width)
	for c := 0; c < 4; c++ {
		for x := 0; x < width; x++ {
			plane[x] = line[x*4+c]
		}
		out = appendRLEPlane(out, plane)
	}
	return out
}

func appendRLEPlane(out, p []byte) []byte {
	for i := 0; i < len(p); {
		run := 1
		for i+run < len(p) && p[i+run] == p[i] && run < 127 {
			run++
		}
		if run >= 3 {
			out = append(out, byte(128+run), p[i])
			i += run
			continue
		}
		start := i
		for i < len(p) && i-start < 128 {
			if i+2 < len(p) && p[i] == p[i+1] && p[i] == p[i+2] {
				break
			}
			i++
		}
		out = append(out, byte(i-start))
		out = append(out, p[start:i]...)
	}
	return out
}

type fixtureChannel struct {
	name      string
	pixelType int32
}

func rgbHalfChannels() []fixtureChannel {
	return []fixtureChannel{{"B", exrPixelHalf}, {"G", exrPixelHalf}, {"R", exrPixelHalf}}
}

// exrFixture describes a synthetic scanline OpenEXR file.
type exrFixture struct {
	width, height int
	minY          int32
	channels      []fixtureChannel
	compression   byte
	order         exrzip.Order
	version       uint32
	extraAttrs    [][3]string // name, type, raw value
	noDataWindow  bool
	value         func(ch, x, y int) float32
	editOffsets   func(offsets []uint64)
}

func (f exrFixture) blockLines() int {
	if f.compression == exrCompressionZip {
		return zipBlockLines
	}
	return 1
}

func writeAttr(buf *bytes.Buffer, name, typ string, payload []byte) {
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteString(typ)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.LittleEndian, int32(len(payload)))
	buf.Write(payload)
}

func (f exrFixture) header() []byte {
	var buf bytes.Buffer
	version := f.version
	if version == 0 {
		version = 2
	}
	_ = binary.Write(&buf, binary.LittleEndian, uint32(exrMagic))
	_ = binary.Write(&buf, binary.LittleEndian, version)

	var chl bytes.Buffer
	for _, c := range f.channels {
		chl.WriteString(c.name)
		chl.WriteByte(0)
		_ = binary.Write(&chl, binary.LittleEndian, c.pixelType)
		chl.Write([]byte{0, 0, 0, 0})
		_ = binary.Write(&chl, binary.LittleEndian, [2]int32{1, 1})
	}
	chl.WriteByte(0)
	writeAttr(&buf, "channels", "chlist", chl.Bytes())
	writeAttr(&buf, "compression", "compression", []byte{f.compression})

	box := new(bytes.Buffer)
	_ = binary.Write(box, binary.LittleEndian, [4]int32{0, f.minY, int32(f.width - 1), f.minY + int32(f.height-1)})
	if !f.noDataWindow {
		writeAttr(&buf, "dataWindow", "box2i", box.Bytes())
	}
	writeAttr(&buf, "displayWindow", "box2i", box.Bytes())
	writeAttr(&buf, "lineOrder", "lineOrder", []byte{0})
	for _, a := range f.extraAttrs {
		writeAttr(&buf, a[0], a[1], []byte(a[2]))
	}
	buf.WriteByte(0)
	return buf.Bytes()
}

// pixelBytes lays a block out channel by channel, each channel holding all of its lines.
func (f exrFixture) pixelBytes(lines, startY int) []byte {
	var raw []byte
	for ci, c := range f.channels {
		for l := 0; l < lines; l++ {
			y := startY + l
			for x := 0; x < f.width; x++ {
				v := f.value(ci, x, y)
				switch c.pixelType {
				case exrPixelHalf:
					raw = binary.LittleEndian.AppendUint16(raw, FloatToHalf(v))
				case exrPixelFloat:
					raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
				default:
					raw = binary.LittleEndian.AppendUint32(raw, uint32(v))
				}
			}
		}
	}
	return raw
}

// compressedBlocks reports how many blocks were stored compressed.
func (f exrFixture) build(t testing.TB) (data []byte, compressedBlocks int) {
	t.Helper()
	hdr := f.header()
	bl := f.blockLines()
	count := (f.height + bl - 1) / bl

	var blocks bytes.Buffer
	offsets := make([]uint64, count)
	base := uint64(len(hdr) + 8*count)
	for b := 0; b < count; b++ {
		startY := b * bl
		lines := min(bl, f.height-startY)
		raw := f.pixelBytes(lines, startY)
		payload := raw
		if f.compression != exrCompressionNone {
			comp, err := exrzip.Compress(raw, f.order)
			if err != nil {
				t.Fatalf("compress block %d: %v", b, err)
			}
			if len(comp) < len(raw) {
				payload = comp
				compressedBlocks++
			}
		}
		offsets[b] = base + uint64(blocks.Len())
		_ = binary.Write(&blocks, binary.LittleEndian, f.minY+int32(startY))
		_ = binary.Write(&blocks, binary.LittleEndian, int32(len(payload)))
		blocks.Write(payload)
	}
	if f.editOffsets != nil {
		f.editOffsets(offsets)
	}

	out := append([]byte(nil), hdr...)
	for _, o := range offsets {
		out = binary.LittleEndian.AppendUint64(out, o)
	}
	return append(out, blocks.Bytes()...), compressedBlocks
}
