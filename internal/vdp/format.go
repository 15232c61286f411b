package vdp

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/vdpout/internal/caps"
)

// RGBAFormat identifies the pixel layout of an output surface.
// Values match the VdpRGBAFormat constants.
type RGBAFormat int

const (
	RGBAFormatB8G8R8A8    RGBAFormat = 0
	RGBAFormatR8G8B8A8    RGBAFormat = 1
	RGBAFormatR10G10B10A2 RGBAFormat = 2
	RGBAFormatB10G10R10A2 RGBAFormat = 3
	RGBAFormatA8          RGBAFormat = 4
)

type formatInfo struct {
	format        RGBAFormat
	name          string
	bytesPerPixel int
	rawCaps       *caps.Caps
}

// formats lists every known layout with the raw-RGB description a
// downstream consumer sees for it. Order is the negotiation preference.
var formats = []formatInfo{
	{RGBAFormatA8, "A8", 1, caps.MustParse("video/x-raw-rgb, bpp=(int)8, depth=(int)0, " +
		"endianness=(int)4321, red_mask=(int)0x00, green_mask=(int)0x00, " +
		"blue_mask=(int)0x00, alpha_mask=(int)0xff")},
	{RGBAFormatB10G10R10A2, "B10G10R10A2", 4, caps.MustParse("video/x-raw-rgb, bpp=(int)32, " +
		"depth=(int)30, endianness=(int)4321, red_mask=(int)0x000003fc, " +
		"green_mask=(int)0x003ff000, blue_mask=(int)0xffc00000, alpha_mask=(int)0x00000003")},
	{RGBAFormatB8G8R8A8, "B8G8R8A8", 4, caps.MustParse("video/x-raw-rgb, bpp=(int)32, " +
		"depth=(int)24, endianness=(int)4321, red_mask=(int)0x0000ff00, " +
		"green_mask=(int)0x00ff0000, blue_mask=(int)0xff000000, alpha_mask=(int)0x000000ff")},
	{RGBAFormatR10G10B10A2, "R10G10B10A2", 4, caps.MustParse("video/x-raw-rgb, bpp=(int)32, " +
		"depth=(int)30, endianness=(int)4321, red_mask=(int)0xffc00000, " +
		"green_mask=(int)0x003ff000, blue_mask=(int)0x000003fc, alpha_mask=(int)0x00000003")},
	{RGBAFormatR8G8B8A8, "R8G8B8A8", 4, caps.MustParse("video/x-raw-rgb, bpp=(int)32, " +
		"depth=(int)24, endianness=(int)4321, red_mask=(int)0x000000ff, " +
		"green_mask=(int)0x0000ff00, blue_mask=(int)0x00ff0000, alpha_mask=(int)0xff000000")},
}

func lookup(f RGBAFormat) (formatInfo, bool) {
	for _, info := range formats {
		if info.format == f {
			return info, true
		}
	}
	return formatInfo{}, false
}

// Formats returns all known layouts in preference order
func Formats() []RGBAFormat {
	out := make([]RGBAFormat, len(formats))
	for i, info := range formats {
		out[i] = info.format
	}
	return out
}

// String returns the layout name, e.g. "B8G8R8A8"
func (f RGBAFormat) String() string {
	if info, ok := lookup(f); ok {
		return info.name
	}
	return fmt.Sprintf("RGBAFormat(%d)", int(f))
}

// Valid reports whether f is a known layout
func (f RGBAFormat) Valid() bool {
	_, ok := lookup(f)
	return ok
}

// BytesPerPixel returns the storage size of one pixel, 0 for unknown layouts
func (f RGBAFormat) BytesPerPixel() int {
	info, _ := lookup(f)
	return info.bytesPerPixel
}

// ParseRGBAFormat accepts a layout name (case-insensitive)
func ParseRGBAFormat(s string) (RGBAFormat, error) {
	for _, info := range formats {
		if strings.EqualFold(info.name, s) {
			return info.format, nil
		}
	}
	return 0, fmt.Errorf("unknown rgba format %q", s)
}

// FrameSize returns the number of bytes a width x height frame occupies
// in host memory: bytesForFormat(format, width, height).
func FrameSize(f RGBAFormat, width, height int) int {
	return f.BytesPerPixel() * width * height
}

// RawCaps returns the raw-RGB description of f without geometry
func RawCaps(f RGBAFormat) *caps.Caps {
	info, ok := lookup(f)
	if !ok {
		return caps.NewEmpty()
	}
	return info.rawCaps.Copy()
}

// CapsToRGBAFormat finds the layout whose raw-RGB description is
// compatible with c. The first matching layout wins.
func CapsToRGBAFormat(c *caps.Caps) (RGBAFormat, bool) {
	for _, info := range formats {
		if caps.CanIntersect(c, info.rawCaps) {
			return info.format, true
		}
	}
	return 0, false
}
