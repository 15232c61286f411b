package sink

import (
	"bytes"
	"image/png"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
)

// Snapshot encodes the last rendered frame as "png" or "bmp" and returns
// the data with its content type
func (s *Sink) Snapshot(format string) ([]byte, string, error) {
	img := s.LastFrame()
	if img == nil {
		return nil, "", ErrNoFrame
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "", "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", errors.Wrap(err, "encode png")
		}
		return buf.Bytes(), "image/png", nil
	case "bmp":
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, "", errors.Wrap(err, "encode bmp")
		}
		return buf.Bytes(), "image/bmp", nil
	default:
		return nil, "", errors.Newf("unsupported snapshot format %q", format)
	}
}
