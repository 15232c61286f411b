// Package gstcaps runs caps intersection and fixation through GStreamer's
// own implementation. Values cross the boundary in caps string form.
package gstcaps

import (
	"sync"

	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/tinyzimmer/go-gst/gst"
)

var initOnce sync.Once

// Ops implements vdp.CapsOps on top of GstCaps
type Ops struct{}

// New initializes GStreamer once and returns the backend
func New() Ops {
	initOnce.Do(func() {
		gst.Init(nil)
		logger.WithComponent("gstcaps").Debug().Msg("GStreamer initialized")
	})
	return Ops{}
}

// Intersect returns the formats acceptable to both a and b
func (Ops) Intersect(a, b *caps.Caps) *caps.Caps {
	ga, gb := toGst(a), toGst(b)
	if ga == nil || gb == nil {
		return caps.NewEmpty()
	}
	return fromGst(ga.Intersect(gb))
}

// IsEmpty reports whether c accepts nothing
func (Ops) IsEmpty(c *caps.Caps) bool {
	g := toGst(c)
	return g == nil || g.IsEmpty()
}

// Fixate reduces c to one concrete structure. Empty and ANY caps are
// returned as copies.
func (Ops) Fixate(c *caps.Caps) *caps.Caps {
	if c == nil || c.IsEmpty() || c.IsAny() {
		return c.Copy()
	}
	g := toGst(c)
	if g == nil {
		return caps.NewEmpty()
	}
	return fromGst(g.Fixate())
}

func toGst(c *caps.Caps) *gst.Caps {
	switch {
	case c == nil || c.IsEmpty():
		return gst.NewCapsFromString("EMPTY")
	case c.IsAny():
		return gst.NewCapsFromString("ANY")
	}
	g := gst.NewCapsFromString(c.String())
	if g == nil {
		logger.WithComponent("gstcaps").Warn().
			Str("caps", c.String()).
			Msg("GStreamer rejected caps string")
	}
	return g
}

func fromGst(g *gst.Caps) *caps.Caps {
	switch {
	case g == nil || g.IsEmpty():
		return caps.NewEmpty()
	case g.IsAny():
		return caps.NewAny()
	}
	c, err := caps.Parse(g.String())
	if err != nil {
		logger.WithComponent("gstcaps").Warn().
			Err(err).
			Str("caps", g.String()).
			Msg("Failed to parse GStreamer caps")
		return caps.NewEmpty()
	}
	return c
}
