package panodecode

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported panorama file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatHDR
	FormatEXR
)

func (f Format) String() string {
	switch f {
	case FormatHDR:
		return "hdr"
	case FormatEXR:
		return "exr"
	default:
		return "unknown"
	}
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "hdr":
		*f = FormatHDR
	case "exr":
		*f = FormatEXR
	default:
		return fmt.Errorf("unknown format %q", b)
	}
	return nil
}

// FormatFromPath derives the format from a file name extension.
func FormatFromPath(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hdr", ".rgbe", ".pic":
		return FormatHDR
	case ".exr":
		return FormatEXR
	default:
		return FormatUnknown
	}
}

// Quality is a coarse control over the maximum decode dimension.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

// ParseQuality parses low, medium or high.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return QualityLow, nil
	case "medium", "":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	}
	return QualityMedium, fmt.Errorf("unknown quality %q", s)
}

// ToneMapping selects the curve applied to exposed linear values.
type ToneMapping int

const (
	ToneMapLinear ToneMapping = iota
	ToneMapReinhard
	ToneMapACES
)

func (t ToneMapping) String() string {
	switch t {
	case ToneMapLinear:
		return "linear"
	case ToneMapReinhard:
		return "reinhard"
	case ToneMapACES:
		return "aces"
	default:
		return fmt.Sprintf("tonemap(%d)", int(t))
	}
}

// ParseToneMapping parses linear, reinhard or aces.
func ParseToneMapping(s string) (ToneMapping, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "":
		return ToneMapLinear, nil
	case "reinhard":
		return ToneMapReinhard, nil
	case "aces":
		return ToneMapACES, nil
	}
	return ToneMapLinear, fmt.Errorf("unknown tone mapping %q", s)
}

// TargetKind selects the output representation of a decode.
type TargetKind int

const (
	// TargetRGB16F is linear half-float RGB; tone mapping happens at render time.
	TargetRGB16F TargetKind = iota
	// TargetRGBA8 is display-ready RGBA with exposure, curve and gamma baked in.
	TargetRGBA8
)

func (k TargetKind) String() string {
	switch k {
	case TargetRGB16F:
		return "rgb16f"
	case TargetRGBA8:
		return "rgba8"
	default:
		return fmt.Sprintf("target(%d)", int(k))
	}
}

// Target describes the requested output. Exposure, ToneMapping and Gamma are
// only used by TargetRGBA8; changing them requires a new decode.
type Target struct {
	Kind        TargetKind
	Exposure    float32 // stops
	ToneMapping ToneMapping
	Gamma       float32 // <= 0 means 2.2
}

// Metadata holds intrinsic full-resolution dimensions of a source image.
type Metadata struct {
	Format Format `json:"format" yaml:"format"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// DecodeRequest asks for a panorama decode.
//
// Data is moved into the engine: the caller must not read or write it until
// the request resolves.
type DecodeRequest struct {
	ID             string
	Format         Format
	Data           []byte
	Quality        Quality
	MaxTextureSize int // <= 0 means no limit
	Target         Target
}

// DecodeResult is a decoded panorama.
//
// Half holds DecodeWidth*DecodeHeight RGB triplets of binary16 values when Kind
// is TargetRGB16F. RGBA holds DecodeWidth*DecodeHeight*4 bytes with opaque alpha
// when Kind is TargetRGBA8. Results served from the cache share these slices and
// must be treated as read-only.
type DecodeResult struct {
	ID           string
	Format       Format
	Width        int
	Height       int
	DecodeWidth  int
	DecodeHeight int
	Kind         TargetKind
	Half         []uint16
	RGBA         []uint8
}

// HDRImage stores a linear-light image in RGB float32 triplets, row-major.
type HDRImage struct {
	W, H int
	Pix  []float32
}

func newHDRImage(w, h int) *HDRImage {
	return &HDRImage{W: w, H: h, Pix: make([]float32, w*h*3)}
}

// At returns the linear RGB value at x, y, clamping coordinates to the image.
func (h *HDRImage) At(x, y int) (r, g, b float32) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= h.W {
		x = h.W - 1
	}
	if y >= h.H {
		y = h.H - 1
	}
	i := (y*h.W + x) * 3
	return h.Pix[i], h.Pix[i+1], h.Pix[i+2]
}
