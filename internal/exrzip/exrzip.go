// Package exrzip implements the OpenEXR ZIP/ZIPS block codec: zlib payload plus
// a byte predictor and a byte-plane shuffle.
package exrzip

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ErrSize is returned when an inflated block is not exactly the expected size.
var ErrSize = errors.New("exrzip: inflated size mismatch")

// Order is the sequence in which a decoder reverses the two byte transforms.
type Order int

const (
	// OrderPredictorFirst undoes the predictor, then interleaves byte planes.
	// This is what the reference OpenEXR library writes.
	OrderPredictorFirst Order = iota
	// OrderInterleaveFirst interleaves byte planes, then undoes the predictor.
	OrderInterleaveFirst
)

func (o Order) String() string {
	if o == OrderInterleaveFirst {
		return "interleave-first"
	}
	return "predictor-first"
}

// Inflate decompresses a zlib stream that must produce exactly size bytes.
// Memory follows what the stream actually yields, so a bogus size costs nothing.
func Inflate(src []byte, size int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out bytes.Buffer
	out.Grow(min(size, initialInflateCap))
	if _, err := out.ReadFrom(io.LimitReader(zr, int64(size)+1)); err != nil {
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
	}
	switch {
	case out.Len() < size:
		return nil, fmt.Errorf("%w: short stream, want %d bytes", ErrSize, size)
	case out.Len() > size:
		return nil, fmt.Errorf("%w: stream longer than %d bytes", ErrSize, size)
	}
	return out.Bytes(), nil
}

const initialInflateCap = 1 << 20

// Reverse undoes both transforms in the given order and returns a new slice.
func Reverse(data []byte, order Order) []byte {
	buf := append([]byte(nil), data...)
	if order == OrderInterleaveFirst {
		buf = Interleave(buf)
		UndoPredictor(buf)
		return buf
	}
	UndoPredictor(buf)
	return Interleave(buf)
}

// UndoPredictor reverses the cumulative delta filter in place.
func UndoPredictor(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i]) + int(data[i-1]) - 128)
	}
}

// ApplyPredictor is the inverse of UndoPredictor.
func ApplyPredictor(data []byte) {
	for i := len(data) - 1; i > 0; i-- {
		data[i] = byte(int(data[i]) - int(data[i-1]) + 128)
	}
}

// Interleave merges the two byte planes: the first half of data becomes the even
// positions and the second half the odd ones.
func Interleave(data []byte) []byte {
	half := (len(data) + 1) / 2
	out := make([]byte, len(data))
	for i := range out {
		if i&1 == 0 {
			out[i] = data[i/2]
		} else {
			out[i] = data[half+i/2]
		}
	}
	return out
}

// Split is the inverse of Interleave: even bytes first, then odd bytes.
func Split(data []byte) []byte {
	half := (len(data) + 1) / 2
	out := make([]byte, len(data))
	for i, b := range data {
		if i&1 == 0 {
			out[i/2] = b
		} else {
			out[half+i/2] = b
		}
	}
	return out
}

// Compress encodes raw pixel bytes the way a writer using the given order would.
func Compress(raw []byte, order Order) ([]byte, error) {
	buf := append([]byte(nil), raw...)
	if order == OrderInterleaveFirst {
		ApplyPredictor(buf)
		buf = Split(buf)
	} else {
		buf = Split(buf)
		ApplyPredictor(buf)
	}
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(buf); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
