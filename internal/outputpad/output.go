package outputpad

import (
	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/cockroachdb/errors"
)

// Output is the negotiated output mode. It is either RawPixels or
// HardwareSurface; both carry the concrete RGBA layout.
type Output interface {
	RGBAFormat() vdp.RGBAFormat
	String() string
	isOutput()
}

// RawPixels means the consumer receives host-memory pixel data, so every
// surface is downloaded before it is pushed.
type RawPixels struct {
	Format vdp.RGBAFormat
}

// HardwareSurface means the consumer receives device surfaces as-is
type HardwareSurface struct {
	Format vdp.RGBAFormat
}

func (o RawPixels) RGBAFormat() vdp.RGBAFormat       { return o.Format }
func (o HardwareSurface) RGBAFormat() vdp.RGBAFormat { return o.Format }
func (RawPixels) String() string                     { return "raw-pixels" }
func (HardwareSurface) String() string               { return "hardware-surface" }
func (RawPixels) isOutput()                          {}
func (HardwareSurface) isOutput()                    {}

// Negotiated is the outcome of a successful negotiation. Values are never
// mutated in place; geometry changes produce a new value.
type Negotiated struct {
	Output Output
	Width  int
	Height int

	// Contract is the fixated caps committed to the consumer
	Contract *caps.Caps
	// Upstream is the upstream format the contract was derived from; it
	// annotates working buffers.
	Upstream *caps.Caps
}

// resized returns a copy with new geometry applied to the contract and
// the retained upstream format
func (n *Negotiated) resized(width, height int) *Negotiated {
	out := &Negotiated{
		Output:   n.Output,
		Width:    width,
		Height:   height,
		Contract: n.Contract.Copy(),
		Upstream: n.Upstream.Copy(),
	}
	for _, c := range []*caps.Caps{out.Contract, out.Upstream} {
		for i := 0; i < c.Size(); i++ {
			c.Structure(i).SetInt(vdp.FieldWidth, width)
			c.Structure(i).SetInt(vdp.FieldHeight, height)
		}
	}
	return out
}

// decodeFixated turns a fixated output description into a Negotiated
// value without touching any pad state.
func decodeFixated(fixed *caps.Caps) (*Negotiated, error) {
	st := fixed.Structure(0)
	if st == nil {
		return nil, errors.New("fixated caps are empty")
	}

	var out Output
	switch {
	case st.HasName(vdp.MediaTypeRawRGB):
		f, ok := vdp.CapsToRGBAFormat(fixed)
		if !ok {
			return nil, errors.Newf("no rgba format matches %s", st)
		}
		out = RawPixels{Format: f}

	case st.HasName(vdp.MediaTypeOutput):
		v, ok := st.Int(vdp.FieldRGBAFormat)
		if !ok || !vdp.RGBAFormat(v).Valid() {
			return nil, errors.Newf("missing or unknown %s in %s", vdp.FieldRGBAFormat, st)
		}
		out = HardwareSurface{Format: vdp.RGBAFormat(v)}

	default:
		return nil, errors.Newf("unsupported negotiated format %q", st.Name())
	}

	width, ok := st.Int(vdp.FieldWidth)
	if !ok || width <= 0 {
		return nil, errors.Newf("negotiated format has no width: %s", st)
	}
	height, ok := st.Int(vdp.FieldHeight)
	if !ok || height <= 0 {
		return nil, errors.Newf("negotiated format has no height: %s", st)
	}

	return &Negotiated{Output: out, Width: width, Height: height, Contract: fixed}, nil
}
