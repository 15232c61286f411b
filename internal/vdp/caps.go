package vdp

import (
	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/cockroachdb/errors"
)

// Media types exchanged around an output stage
const (
	// MediaTypeVideo is decoded video still resident on the device
	MediaTypeVideo = "video/x-vdpau-video"
	// MediaTypeOutput is a device-resident RGBA output surface
	MediaTypeOutput = "video/x-vdpau-output"
	// MediaTypeRawRGB is RGB pixel data in host memory
	MediaTypeRawRGB = "video/x-raw-rgb"
)

// MaxSurfaceSize bounds width and height in template caps
const MaxSurfaceSize = 8192

// Field names used in output caps
const (
	FieldRGBAFormat       = "rgba-format"
	FieldWidth            = "width"
	FieldHeight           = "height"
	FieldChromaType       = "chroma-type"
	FieldPixelAspectRatio = "pixel-aspect-ratio"
	FieldFramerate        = "framerate"
)

// TemplateCaps is the static description of everything an output stage
// can ever produce: one output-surface structure per layout followed by
// the raw-RGB description of each layout.
func TemplateCaps() *caps.Caps {
	return outputCaps(func(RGBAFormat) (int, int, bool) {
		return MaxSurfaceSize, MaxSurfaceSize, true
	})
}

// AllowedOutputCaps queries the device and describes the layouts and
// sizes it can actually allocate.
func AllowedOutputCaps(dev Device) (*caps.Caps, error) {
	var queryErr error
	c := outputCaps(func(f RGBAFormat) (int, int, bool) {
		if queryErr != nil {
			return 0, 0, false
		}
		sc, err := dev.QueryOutputSurfaceCapabilities(f)
		if err != nil {
			queryErr = errors.Wrapf(err, "query output surface capabilities for %s", f)
			return 0, 0, false
		}
		return sc.MaxWidth, sc.MaxHeight, sc.Supported
	})
	if queryErr != nil {
		return nil, queryErr
	}
	return c, nil
}

func outputCaps(limits func(RGBAFormat) (maxW, maxH int, ok bool)) *caps.Caps {
	out := caps.NewEmpty()
	rgb := caps.NewEmpty()

	for _, info := range formats {
		maxW, maxH, ok := limits(info.format)
		if !ok {
			continue
		}
		width := caps.IntRange{Min: 1, Max: maxW}
		height := caps.IntRange{Min: 1, Max: maxH}

		out.Append(caps.NewStructure(MediaTypeOutput,
			caps.Field{Name: FieldRGBAFormat, Value: caps.Int(info.format)},
			caps.Field{Name: FieldWidth, Value: width},
			caps.Field{Name: FieldHeight, Value: height},
		))

		s := info.rawCaps.Structure(0).Copy()
		s.Set(FieldWidth, width)
		s.Set(FieldHeight, height)
		rgb.Append(s)
	}

	out.Merge(rgb)
	return out
}

// VideoToOutputCaps expresses upstream video caps as the output formats
// they could be rendered to. Every device-video structure yields an
// output-surface candidate followed by a raw-RGB candidate, both keeping
// the upstream geometry and framerate. Raw-RGB upstream structures are
// already in host memory and only yield a raw-RGB candidate.
func VideoToOutputCaps(video *caps.Caps) *caps.Caps {
	out := caps.NewEmpty()
	rgb := caps.NewEmpty()

	for i := 0; i < video.Size(); i++ {
		s := video.Structure(i).Copy()
		s.Remove(FieldChromaType)
		removePixelAspectRatio(s)

		if s.HasName(MediaTypeRawRGB) {
			rgb.Append(s)
			continue
		}

		hw := s.Copy()
		hw.Rename(MediaTypeOutput)
		out.Append(hw)

		raw := s.Copy()
		raw.Rename(MediaTypeRawRGB)
		rgb.Append(raw)
	}

	out.Merge(rgb)
	return out
}

// removePixelAspectRatio folds a non-square pixel aspect ratio into the
// width so output surfaces always use square pixels.
func removePixelAspectRatio(s *caps.Structure) {
	par, ok := s.Fraction(FieldPixelAspectRatio)
	if !ok {
		return
	}
	if w, ok := s.Int(FieldWidth); ok && par.Den != 0 {
		s.SetInt(FieldWidth, int(int64(w)*int64(par.Num)/int64(par.Den)))
	}
	s.Remove(FieldPixelAspectRatio)
}

// CapsOps is the caps set algebra backend: native or GStreamer-backed
type CapsOps interface {
	Intersect(a, b *caps.Caps) *caps.Caps
	IsEmpty(c *caps.Caps) bool
	Fixate(c *caps.Caps) *caps.Caps
}

// Algebra adds the upstream-to-output transform to a caps backend
type Algebra struct {
	CapsOps
}

// NewAlgebra wraps ops; nil selects the native implementation
func NewAlgebra(ops CapsOps) Algebra {
	if ops == nil {
		ops = caps.Ops{}
	}
	return Algebra{CapsOps: ops}
}

// ToOutputCandidates delegates to VideoToOutputCaps
func (Algebra) ToOutputCandidates(video *caps.Caps) *caps.Caps {
	return VideoToOutputCaps(video)
}
