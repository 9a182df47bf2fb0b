package panodecode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/vearutop/panodecode/internal/exrzip"
	"golang.org/x/sync/errgroup"
)

const exrMagic = 20000630

const (
	exrFlagTiled     = 0x00000200
	exrFlagDeep      = 0x00000800
	exrFlagMultipart = 0x00001000
)

const (
	exrCompressionNone = 0
	exrCompressionZips = 2
	exrCompressionZip  = 3
)

const (
	exrPixelUint  = 0
	exrPixelHalf  = 1
	exrPixelFloat = 2
)

const (
	zipBlockLines    = 16
	scoreSampleRows  = 8
	scoreSampleCols  = 32
	maxAttributeSize = 1 << 24
)

type exrChannel struct {
	name      string
	pixelType int32
	xSampling int32
	ySampling int32
}

func (c exrChannel) size() int {
	if c.pixelType == exrPixelHalf {
		return 2
	}
	return 4
}

type exrHeader struct {
	dataWindow  [4]int32 // xMin, yMin, xMax, yMax
	channels    []exrChannel
	compression byte
	headerEnd   int
}

func (h *exrHeader) width() int  { return int(int64(h.dataWindow[2]) - int64(h.dataWindow[0]) + 1) }
func (h *exrHeader) height() int { return int(int64(h.dataWindow[3]) - int64(h.dataWindow[1]) + 1) }

func (h *exrHeader) blockLines() int {
	if h.compression == exrCompressionZip {
		return zipBlockLines
	}
	return 1
}

func (h *exrHeader) channelNames() []string {
	names := make([]string, len(h.channels))
	for i, c := range h.channels {
		names[i] = c.name
	}
	return names
}

func exrEOF(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", ErrUnexpectedEOF, what)
	}
	return err
}

func parseEXRHeader(data []byte) (*exrHeader, error) {
	r := bytes.NewReader(data)
	magic, err := readU32(r)
	if err != nil || magic != exrMagic {
		return nil, fmt.Errorf("%w: not an OpenEXR file", ErrInvalidSignature)
	}
	version, err := readU32(r)
	if err != nil {
		return nil, exrEOF(err, "version")
	}
	if version&exrFlagTiled != 0 {
		return nil, ErrTiledUnsupported
	}
	if version&exrFlagMultipart != 0 {
		return nil, fmt.Errorf("%w: multi-part files are not supported", ErrInvalidHeader)
	}
	if version&exrFlagDeep != 0 {
		return nil, fmt.Errorf("%w: deep data is not supported", ErrInvalidHeader)
	}

	h := &exrHeader{compression: exrCompressionNone}
	var hasDataWindow bool

	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, exrEOF(err, "attribute name")
		}
		if name == "" {
			break
		}
		typ, err := readNullString(r)
		if err != nil {
			return nil, exrEOF(err, "attribute type")
		}
		size, err := readI32(r)
		if err != nil {
			return nil, exrEOF(err, "attribute size")
		}
		if size < 0 || size > maxAttributeSize {
			return nil, fmt.Errorf("%w: attribute %q size %d", ErrInvalidHeader, name, size)
		}
		if int(size) > r.Len() {
			return nil, fmt.Errorf("%w: attribute %q", ErrUnexpectedEOF, name)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, exrEOF(err, "attribute value")
		}

		switch name {
		case "channels":
			if typ != "chlist" {
				return nil, fmt.Errorf("%w: channels has type %q", ErrInvalidHeader, typ)
			}
			if h.channels, err = parseEXRChannels(payload); err != nil {
				return nil, err
			}
		case "dataWindow":
			if typ != "box2i" || len(payload) != 16 {
				return nil, fmt.Errorf("%w: malformed dataWindow", ErrInvalidHeader)
			}
			for i := range h.dataWindow {
				h.dataWindow[i] = int32(binary.LittleEndian.Uint32(payload[i*4:]))
			}
			hasDataWindow = true
		case "compression":
			if typ != "compression" || len(payload) < 1 {
				return nil, fmt.Errorf("%w: malformed compression", ErrInvalidHeader)
			}
			h.compression = payload[0]
		case "tiles":
			return nil, ErrTiledUnsupported
		}
	}

	if len(h.channels) == 0 {
		return nil, fmt.Errorf("%w: missing channels", ErrInvalidHeader)
	}
	if !hasDataWindow {
		return nil, fmt.Errorf("%w: missing dataWindow", ErrInvalidHeader)
	}
	for _, ch := range h.channels {
		if ch.xSampling != 1 || ch.ySampling != 1 {
			return nil, fmt.Errorf("%w: channel %q is subsampled", ErrInvalidHeader, ch.name)
		}
	}
	switch h.compression {
	case exrCompressionNone, exrCompressionZips, exrCompressionZip:
	default:
		return nil, fmt.Errorf("%w: OpenEXR compression %d", ErrUnsupportedCompression, h.compression)
	}
	if h.width() <= 0 || h.height() <= 0 {
		return nil, fmt.Errorf("%w: dataWindow %v", ErrInvalidResolution, h.dataWindow)
	}

	h.headerEnd = len(data) - r.Len()
	return h, nil
}

func parseEXRChannels(data []byte) ([]exrChannel, error) {
	r := bytes.NewReader(data)
	var channels []exrChannel
	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, exrEOF(err, "channel name")
		}
		if name == "" {
			break
		}
		var rec [16]byte // pixelType, pLinear + 3 reserved, xSampling, ySampling
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, exrEOF(err, "channel record")
		}
		ch := exrChannel{
			name:      name,
			pixelType: int32(binary.LittleEndian.Uint32(rec[0:4])),
			xSampling: int32(binary.LittleEndian.Uint32(rec[8:12])),
			ySampling: int32(binary.LittleEndian.Uint32(rec[12:16])),
		}
		if ch.pixelType != exrPixelUint && ch.pixelType != exrPixelHalf && ch.pixelType != exrPixelFloat {
			return nil, fmt.Errorf("%w: channel %q pixel type %d", ErrInvalidHeader, name, ch.pixelType)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// DecodeEXR decodes a scanline OpenEXR file into a dw x dh linear image using
// nearest-neighbor sampling. Blocks that feed no output row are never inflated.
func DecodeEXR(ctx context.Context, data []byte, dw, dh int) (*HDRImage, error) {
	h, err := parseEXRHeader(data)
	if err != nil {
		return nil, err
	}
	width, height := h.width(), h.height()
	blockLines := h.blockLines()

	// The offset table bounds the height by the file size, so it is read
	// before anything is sized by the header.
	blockCount := (height + blockLines - 1) / blockLines
	offsets, err := readEXROffsets(data, h.headerEnd, blockCount)
	if err != nil {
		return nil, err
	}
	dw, dh = clampDecodeSize(width, height, dw, dh)

	d := &exrDecoder{
		h:          h,
		data:       data,
		width:      width,
		height:     height,
		blockLines: blockLines,
		sel:        selectChannels(h.channelNames()),
		rows:       rowTargets(height, dh, false),
		cols:       nearestMap(width, dw, false),
		out:        newHDRImage(dw, dh),
		seen:       make([]atomic.Bool, blockCount),
	}
	d.chanOffset = make([]int, len(h.channels))
	for i, ch := range h.channels {
		d.chanOffset[i] = d.lineBytes
		d.lineBytes += width * ch.size()
	}

	var work []uint64
	for b, off := range offsets {
		if d.blockUsed(b) {
			work = append(work, off)
		}
	}

	// The transform order is decided on the first compressed block and reused,
	// so blocks run serially until it is known.
	i := 0
	for ; i < len(work) && !d.orderKnown(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.decodeBlock(work[i]); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, off := range work[i:] {
		off := off
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return d.decodeBlock(off)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d.out, nil
}

func readEXROffsets(data []byte, pos, count int) ([]uint64, error) {
	if pos < 0 || count > (len(data)-pos)/8 {
		return nil, fmt.Errorf("%w: offset table", ErrUnexpectedEOF)
	}
	offsets := make([]uint64, count)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(data[pos+i*8:])
	}
	return offsets, nil
}

// exrDecoder holds the state of one DecodeEXR call. Block pixels are stored
// channel by channel: every line of channel 0, then every line of channel 1.
type exrDecoder struct {
	h          *exrHeader
	data       []byte
	width      int
	height     int
	blockLines int
	lineBytes  int   // one line of all channels
	chanOffset []int // start of a channel's plane in a one-line block
	sel        channelSelection
	rows       []int
	cols       []int
	out        *HDRImage
	seen       []atomic.Bool

	order    exrzip.Order
	resolved bool
}

func (d *exrDecoder) orderKnown() bool {
	return d.h.compression == exrCompressionNone || d.resolved
}

// blockUsed reports whether any line of block b feeds an output row.
func (d *exrDecoder) blockUsed(b int) bool {
	start := b * d.blockLines
	end := min(start+d.blockLines, d.height)
	for y := start; y < end; y++ {
		if d.rows[y] >= 0 {
			return true
		}
	}
	return false
}

func (d *exrDecoder) decodeBlock(off uint64) error {
	// Missing or out-of-range offsets mean the block is absent, not corrupt.
	if off == 0 || off > uint64(len(d.data)) || uint64(len(d.data))-off < 8 {
		return nil
	}
	p := int(off)
	y := int32(binary.LittleEndian.Uint32(d.data[p:]))
	size := int32(binary.LittleEndian.Uint32(d.data[p+4:]))
	if size < 0 || int(size) > len(d.data)-p-8 {
		return fmt.Errorf("%w: block at %d declares %d bytes", ErrInvalidChunkSize, p, size)
	}
	payload := d.data[p+8 : p+8+int(size)]

	startY := int(int64(y) - int64(d.h.dataWindow[1]))
	if startY < 0 || startY >= d.height || startY%d.blockLines != 0 {
		return fmt.Errorf("%w: block y %d outside data window", ErrInvalidChunkSize, y)
	}
	if d.seen[startY/d.blockLines].Swap(true) {
		return fmt.Errorf("%w: duplicate block for y %d", ErrInvalidChunkSize, y)
	}
	lines := min(d.blockLines, d.height-startY)
	expected := d.lineBytes * lines

	pix, err := d.unpack(payload, expected, lines)
	if err != nil {
		return fmt.Errorf("block y %d: %w", y, err)
	}

	for l := 0; l < lines; l++ {
		oy := d.rows[startY+l]
		if oy < 0 {
			continue
		}
		d.writeRow(oy, pix, lines, l)
	}
	return nil
}

func (d *exrDecoder) unpack(payload []byte, expected, lines int) ([]byte, error) {
	if len(payload) == expected {
		// Writers store a block raw when compression would not shrink it.
		return payload, nil
	}
	if d.h.compression == exrCompressionNone {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidChunkSize, len(payload), expected)
	}

	inflated, err := exrzip.Inflate(payload, expected)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChunkSize, err)
	}

	if !d.resolved {
		d.order = d.pickOrder(inflated, lines)
		d.resolved = true
	}
	return exrzip.Reverse(inflated, d.order), nil
}

// pickOrder decodes a block both ways and keeps the order whose sampled pixels
// look like radiance. Ties keep the reference order.
func (d *exrDecoder) pickOrder(inflated []byte, lines int) exrzip.Order {
	a := d.score(exrzip.Reverse(inflated, exrzip.OrderPredictorFirst), lines)
	b := d.score(exrzip.Reverse(inflated, exrzip.OrderInterleaveFirst), lines)
	if b > a {
		return exrzip.OrderInterleaveFirst
	}
	return exrzip.OrderPredictorFirst
}

func (d *exrDecoder) score(pix []byte, lines int) int {
	rowStep := max(1, lines/scoreSampleRows)
	colStep := max(1, d.width/scoreSampleCols)
	n := 0
	for l := 0; l < lines; l += rowStep {
		for x := 0; x < d.width; x += colStep {
			for ch := range d.h.channels {
				v := float64(d.sample(pix, lines, l, ch, x))
				if !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= maxPlausibleVal {
					n++
				}
			}
		}
	}
	return n
}

// sample reads channel ch of pixel x on line l of a block holding lines lines.
func (d *exrDecoder) sample(pix []byte, lines, l, ch, x int) float32 {
	c := d.h.channels[ch]
	off := lines*d.chanOffset[ch] + (l*d.width+x)*c.size()
	switch c.pixelType {
	case exrPixelHalf:
		return HalfToFloat(binary.LittleEndian.Uint16(pix[off:]))
	case exrPixelFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(pix[off:]))
	default:
		return float32(binary.LittleEndian.Uint32(pix[off:]))
	}
}

func (d *exrDecoder) writeRow(oy int, pix []byte, lines, l int) {
	dst := d.out.Pix[oy*d.out.W*3 : (oy+1)*d.out.W*3]
	s := d.sel
	for x, sx := range d.cols {
		o := dst[x*3 : x*3+3]
		if s.gray {
			v := d.sample(pix, lines, l, s.r, sx)
			o[0], o[1], o[2] = v, v, v
			continue
		}
		o[0] = d.sample(pix, lines, l, s.r, sx)
		o[1] = d.sample(pix, lines, l, s.g, sx)
		o[2] = d.sample(pix, lines, l, s.b, sx)
	}
}

func readNullString(r *bytes.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readI32(r *bytes.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}
