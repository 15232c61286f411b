package vdp

import (
	"encoding/binary"
	"image"

	"github.com/cockroachdb/errors"
)

// Surface layouts in host memory. 32-bit layouts are little-endian words:
//
//	B8G8R8A8     bytes B, G, R, A
//	R8G8B8A8     bytes R, G, B, A
//	R10G10B10A2  R bits 0-9, G 10-19, B 20-29, A 30-31
//	B10G10R10A2  B bits 0-9, G 10-19, R 20-29, A 30-31
//	A8           one alpha byte

// ToRGBA converts packed pixels of format f into an RGBA image
func ToRGBA(data []byte, f RGBAFormat, width, height int) (*image.RGBA, error) {
	if need := FrameSize(f, width, height); len(data) < need || need == 0 {
		return nil, errors.Wrapf(ErrShortBuffer, "convert %dx%d %s: have %d bytes, need %d",
			width, height, f, len(data), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bpp := f.BytesPerPixel()
	for i := 0; i < width*height; i++ {
		src := data[i*bpp : i*bpp+bpp]
		dst := img.Pix[i*4 : i*4+4]
		switch f {
		case RGBAFormatB8G8R8A8:
			dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], src[3]
		case RGBAFormatR8G8B8A8:
			copy(dst, src)
		case RGBAFormatR10G10B10A2, RGBAFormatB10G10R10A2:
			w := binary.LittleEndian.Uint32(src)
			c0 := uint8((w & 0x3ff) >> 2)
			c1 := uint8(((w >> 10) & 0x3ff) >> 2)
			c2 := uint8(((w >> 20) & 0x3ff) >> 2)
			a := uint8((w >> 30) * 0x55)
			if f == RGBAFormatR10G10B10A2 {
				dst[0], dst[1], dst[2], dst[3] = c0, c1, c2, a
			} else {
				dst[0], dst[1], dst[2], dst[3] = c2, c1, c0, a
			}
		case RGBAFormatA8:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 0xff
		}
	}
	return img, nil
}

// FromRGBA packs an RGBA image into format f
func FromRGBA(img *image.RGBA, f RGBAFormat) []byte {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	bpp := f.BytesPerPixel()
	out := make([]byte, FrameSize(f, width, height))

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			r, g, bl, a := row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]
			dst := out[(y*width+x)*bpp : (y*width+x)*bpp+bpp]
			switch f {
			case RGBAFormatB8G8R8A8:
				dst[0], dst[1], dst[2], dst[3] = bl, g, r, a
			case RGBAFormatR8G8B8A8:
				dst[0], dst[1], dst[2], dst[3] = r, g, bl, a
			case RGBAFormatR10G10B10A2:
				binary.LittleEndian.PutUint32(dst, pack1010102(r, g, bl, a))
			case RGBAFormatB10G10R10A2:
				binary.LittleEndian.PutUint32(dst, pack1010102(bl, g, r, a))
			case RGBAFormatA8:
				dst[0] = a
			}
		}
	}
	return out
}

func pack1010102(c0, c1, c2, a uint8) uint32 {
	expand := func(v uint8) uint32 { return uint32(v)<<2 | uint32(v)>>6 }
	return expand(c0) | expand(c1)<<10 | expand(c2)<<20 | uint32(a>>6)<<30
}
