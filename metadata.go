package panodecode

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ReadMetadata parses only the header of a panorama and returns its full-resolution size.
func ReadMetadata(format Format, data []byte) (Metadata, error) {
	switch format {
	case FormatHDR:
		return ReadHDRMetadata(data)
	case FormatEXR:
		return ReadEXRMetadata(data)
	default:
		return Metadata{}, fmt.Errorf("%w: unknown format %d", ErrInvalidFormat, int(format))
	}
}

// ReadHDRMetadata parses a Radiance RGBE header.
func ReadHDRMetadata(data []byte) (Metadata, error) {
	h, err := parseHDRHeader(data)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Format: FormatHDR, Width: h.width, Height: h.height}, nil
}

// ReadEXRMetadata parses a scanline OpenEXR header.
func ReadEXRMetadata(data []byte) (Metadata, error) {
	h, err := parseEXRHeader(data)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Format: FormatEXR, Width: h.width(), Height: h.height()}, nil
}

// Validate performs the cheap signature check used before accepting an upload.
// It is not a substitute for ReadMetadata.
func Validate(format Format, data []byte) error {
	switch format {
	case FormatHDR:
		head := data
		if len(head) > hdrSniffWindow {
			head = head[:hdrSniffWindow]
		}
		if !bytes.Contains(head, []byte(hdrSignature)) {
			return fmt.Errorf("%w: missing %s", ErrInvalidSignature, hdrSignature)
		}
		if !bytes.Contains(head, []byte("FORMAT="+hdrFormat32BitRLE)) {
			return fmt.Errorf("%w: missing FORMAT=%s", ErrInvalidFormat, hdrFormat32BitRLE)
		}
		return nil
	case FormatEXR:
		if len(data) < 4 || binary.LittleEndian.Uint32(data) != exrMagic {
			return fmt.Errorf("%w: not an OpenEXR file", ErrInvalidSignature)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown format %d", ErrInvalidFormat, int(format))
	}
}

// Sniff guesses the format from the leading bytes of r.
// It returns FormatUnknown and no error when the stream matches neither format.
func Sniff(r io.Reader) (Format, error) {
	br := bufio.NewReaderSize(r, 16)
	head, err := br.Peek(4)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return FormatUnknown, nil
		}
		return FormatUnknown, err
	}
	if binary.LittleEndian.Uint32(head) == exrMagic {
		return FormatEXR, nil
	}
	if head[0] == '#' && head[1] == '?' {
		return FormatHDR, nil
	}
	return FormatUnknown, nil
}
