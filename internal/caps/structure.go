package caps

import "strings"

// Field is a named value inside a Structure
type Field struct {
	Name  string
	Value Value
}

// Structure is one media-type description: a name such as
// "video/x-raw-rgb" plus an ordered set of fields.
type Structure struct {
	name   string
	fields []Field
}

// NewStructure creates a structure with the given media-type name and fields
func NewStructure(name string, fields ...Field) *Structure {
	s := &Structure{name: name}
	for _, f := range fields {
		s.Set(f.Name, f.Value)
	}
	return s
}

// Name returns the media-type name
func (s *Structure) Name() string {
	return s.name
}

// HasName reports whether the structure carries the given media-type name
func (s *Structure) HasName(name string) bool {
	return s.name == name
}

// Rename changes the media-type name
func (s *Structure) Rename(name string) {
	s.name = name
}

// Fields returns a copy of the fields in declaration order
func (s *Structure) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Has reports whether the field exists
func (s *Structure) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Get returns the raw value of a field
func (s *Structure) Get(key string) (Value, bool) {
	for _, f := range s.fields {
		if f.Name == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set adds or replaces a field, keeping its position on replace
func (s *Structure) Set(key string, v Value) *Structure {
	for i := range s.fields {
		if s.fields[i].Name == key {
			s.fields[i].Value = v
			return s
		}
	}
	s.fields = append(s.fields, Field{Name: key, Value: v})
	return s
}

// SetInt is shorthand for Set(key, Int(v))
func (s *Structure) SetInt(key string, v int) *Structure {
	return s.Set(key, Int(v))
}

// Remove deletes a field if present
func (s *Structure) Remove(key string) {
	for i := range s.fields {
		if s.fields[i].Name == key {
			s.fields = append(s.fields[:i], s.fields[i+1:]...)
			return
		}
	}
}

// Int returns a fixed integer field
func (s *Structure) Int(key string) (int, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := v.(Int)
	return int(i), ok
}

// Fraction returns a fixed fraction field
func (s *Structure) Fraction(key string) (Fraction, bool) {
	v, ok := s.Get(key)
	if !ok {
		return Fraction{}, false
	}
	f, ok := v.(Fraction)
	return f, ok
}

// Str returns a fixed string field
func (s *Structure) Str(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(String)
	return string(str), ok
}

// IsFixed reports whether every field holds a single concrete value
func (s *Structure) IsFixed() bool {
	for _, f := range s.fields {
		if !f.Value.fixed() {
			return false
		}
	}
	return true
}

// Copy returns a deep copy
func (s *Structure) Copy() *Structure {
	c := &Structure{name: s.name, fields: make([]Field, len(s.fields))}
	for i, f := range s.fields {
		c.fields[i] = Field{Name: f.Name, Value: copyValue(f.Value)}
	}
	return c
}

// Equal compares name and field values regardless of field order
func (s *Structure) Equal(o *Structure) bool {
	if s.name != o.name || len(s.fields) != len(o.fields) {
		return false
	}
	for _, f := range s.fields {
		ov, ok := o.Get(f.Name)
		if !ok || !valuesEqual(f.Value, ov) {
			return false
		}
	}
	return true
}

// String renders the structure in caps-string syntax
func (s *Structure) String() string {
	var b strings.Builder
	b.WriteString(s.name)
	for _, f := range s.fields {
		b.WriteString(", ")
		b.WriteString(f.Name)
		b.WriteString("=")
		b.WriteString(FormatValue(f.Value))
	}
	return b.String()
}

// intersect returns the structure acceptable to both s and o, or nil.
// Fields present on only one side are carried over unchanged.
func (s *Structure) intersect(o *Structure) *Structure {
	if s.name != o.name {
		return nil
	}

	out := &Structure{name: s.name}
	for _, f := range s.fields {
		ov, ok := o.Get(f.Name)
		if !ok {
			out.fields = append(out.fields, Field{Name: f.Name, Value: copyValue(f.Value)})
			continue
		}
		v, ok := intersectValues(f.Value, ov)
		if !ok {
			return nil
		}
		out.fields = append(out.fields, Field{Name: f.Name, Value: v})
	}
	for _, f := range o.fields {
		if !s.Has(f.Name) {
			out.fields = append(out.fields, Field{Name: f.Name, Value: copyValue(f.Value)})
		}
	}
	return out
}

func copyValue(v Value) Value {
	if l, ok := v.(List); ok {
		c := make(List, len(l))
		copy(c, l)
		return c
	}
	return v
}
