// Package caps describes which media formats can flow across a link and
// implements the set algebra used during format negotiation: intersection,
// emptiness and fixation to one concrete description.
//
// The text form follows GStreamer caps strings so descriptions can be kept
// in configuration files and handed to a GStreamer-backed implementation
// unchanged.
package caps

import "strings"

// Caps is an ordered set of structures, or the special ANY set.
// A nil *Caps means "no caps available" and behaves as empty.
type Caps struct {
	any        bool
	structures []*Structure
}

// NewEmpty returns caps that accept nothing
func NewEmpty() *Caps {
	return &Caps{}
}

// NewAny returns caps that accept everything
func NewAny() *Caps {
	return &Caps{any: true}
}

// New returns caps holding the given structures in order
func New(structures ...*Structure) *Caps {
	c := &Caps{}
	for _, s := range structures {
		c.Append(s)
	}
	return c
}

// IsAny reports whether the caps accept everything
func (c *Caps) IsAny() bool {
	return c != nil && c.any
}

// IsEmpty reports whether the caps accept nothing
func (c *Caps) IsEmpty() bool {
	return c == nil || (!c.any && len(c.structures) == 0)
}

// IsFixed reports whether the caps describe exactly one concrete format
func (c *Caps) IsFixed() bool {
	return c != nil && !c.any && len(c.structures) == 1 && c.structures[0].IsFixed()
}

// Size returns the number of structures
func (c *Caps) Size() int {
	if c == nil {
		return 0
	}
	return len(c.structures)
}

// Structure returns the structure at index i, or nil when out of range
func (c *Caps) Structure(i int) *Structure {
	if c == nil || i < 0 || i >= len(c.structures) {
		return nil
	}
	return c.structures[i]
}

// Append adds a structure at the end. Appending to ANY caps is a no-op.
func (c *Caps) Append(s *Structure) {
	if c.any || s == nil {
		return
	}
	c.structures = append(c.structures, s)
}

// Merge appends structures of o that are not already present
func (c *Caps) Merge(o *Caps) {
	if o == nil {
		return
	}
	if o.any {
		c.any = true
		c.structures = nil
		return
	}
	for _, s := range o.structures {
		if !c.contains(s) {
			c.Append(s.Copy())
		}
	}
}

// Copy returns a deep copy; a nil receiver yields nil
func (c *Caps) Copy() *Caps {
	if c == nil {
		return nil
	}
	out := &Caps{any: c.any, structures: make([]*Structure, len(c.structures))}
	for i, s := range c.structures {
		out.structures[i] = s.Copy()
	}
	return out
}

// Equal compares two caps structure by structure
func (c *Caps) Equal(o *Caps) bool {
	if c.IsAny() || o.IsAny() {
		return c.IsAny() && o.IsAny()
	}
	if c.Size() != o.Size() {
		return false
	}
	for i := 0; i < c.Size(); i++ {
		if !c.structures[i].Equal(o.structures[i]) {
			return false
		}
	}
	return true
}

// String renders caps in caps-string syntax
func (c *Caps) String() string {
	switch {
	case c == nil:
		return "NONE"
	case c.any:
		return "ANY"
	case len(c.structures) == 0:
		return "EMPTY"
	}
	parts := make([]string, len(c.structures))
	for i, s := range c.structures {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

func (c *Caps) contains(s *Structure) bool {
	for _, e := range c.structures {
		if e.Equal(s) {
			return true
		}
	}
	return false
}

// Intersect returns the caps acceptable to both a and b. The result keeps
// a's preference order: for every structure of a, matches against b are
// appended in b's order. Duplicates are dropped.
func Intersect(a, b *Caps) *Caps {
	if a.IsEmpty() || b.IsEmpty() {
		return NewEmpty()
	}
	if a.any {
		return b.Copy()
	}
	if b.any {
		return a.Copy()
	}

	out := NewEmpty()
	for _, sa := range a.structures {
		for _, sb := range b.structures {
			if s := sa.intersect(sb); s != nil && !out.contains(s) {
				out.Append(s)
			}
		}
	}
	return out
}

// CanIntersect reports whether a and b have at least one format in common
func CanIntersect(a, b *Caps) bool {
	return !Intersect(a, b).IsEmpty()
}

// Fixate reduces c to a single concrete structure: the first structure is
// kept, ranges collapse to their minimum and lists to their first entry.
// Empty and ANY caps cannot be fixated and are returned as copies.
func Fixate(c *Caps) *Caps {
	if c.IsEmpty() || c.any {
		return c.Copy()
	}
	s := c.structures[0].Copy()
	for i := range s.fields {
		s.fields[i].Value = fixateValue(s.fields[i].Value)
	}
	return New(s)
}

// Ops is the native implementation of the caps set algebra
type Ops struct{}

// Intersect delegates to the package-level Intersect
func (Ops) Intersect(a, b *Caps) *Caps { return Intersect(a, b) }

// IsEmpty reports whether c accepts nothing
func (Ops) IsEmpty(c *Caps) bool { return c.IsEmpty() }

// Fixate delegates to the package-level Fixate
func (Ops) Fixate(c *Caps) *Caps { return Fixate(c) }
