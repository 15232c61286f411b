package caps

import (
	"strconv"
	"strings"
)

// Value is a single field value inside a Structure.
// Fixed values are Int, Fraction and String; IntRange, FractionRange
// and List describe a set of acceptable values.
type Value interface {
	typeName() string
	body() string
	fixed() bool
}

// Int is a fixed integer value
type Int int

// IntRange is an inclusive integer range
type IntRange struct {
	Min int
	Max int
}

// Fraction is a fixed rational value such as a framerate
type Fraction struct {
	Num int
	Den int
}

// FractionRange is an inclusive fraction range
type FractionRange struct {
	Min Fraction
	Max Fraction
}

// String is a fixed string value
type String string

// List is a choice between several values of the same type.
// Order is significant: fixation picks the first entry.
type List []Value

func (Int) typeName() string { return "int" }
func (v Int) body() string   { return strconv.Itoa(int(v)) }
func (Int) fixed() bool      { return true }

func (IntRange) typeName() string { return "int" }
func (v IntRange) body() string {
	return "[ " + strconv.Itoa(v.Min) + ", " + strconv.Itoa(v.Max) + " ]"
}
func (IntRange) fixed() bool { return false }

func (Fraction) typeName() string { return "fraction" }
func (v Fraction) body() string {
	return strconv.Itoa(v.Num) + "/" + strconv.Itoa(v.Den)
}
func (Fraction) fixed() bool { return true }

func (FractionRange) typeName() string { return "fraction" }
func (v FractionRange) body() string {
	return "[ " + v.Min.body() + ", " + v.Max.body() + " ]"
}
func (FractionRange) fixed() bool { return false }

func (String) typeName() string { return "string" }
func (v String) body() string {
	s := string(v)
	if s != "" && !strings.ContainsAny(s, " \t,;=[]{}()\"\\") {
		return s
	}
	return strconv.Quote(s)
}
func (String) fixed() bool { return true }

func (v List) typeName() string {
	if len(v) == 0 {
		return "int"
	}
	return v[0].typeName()
}
func (v List) body() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.body()
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}
func (v List) fixed() bool { return len(v) == 1 && v[0].fixed() }

// FormatValue renders a value with its type annotation, e.g. "(int)[ 1, 8192 ]"
func FormatValue(v Value) string {
	return "(" + v.typeName() + ")" + v.body()
}

// Less reports whether f < o
func (f Fraction) Less(o Fraction) bool {
	return int64(f.Num)*int64(o.Den) < int64(o.Num)*int64(f.Den)
}

// Equal compares fractions by value, so 2/2 equals 1/1
func (f Fraction) Equal(o Fraction) bool {
	return int64(f.Num)*int64(o.Den) == int64(o.Num)*int64(f.Den)
}

func valuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case Fraction:
		bv, ok := b.(Fraction)
		return ok && av.Equal(bv)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// intersectValues returns the set of values acceptable to both a and b
func intersectValues(a, b Value) (Value, bool) {
	if al, ok := a.(List); ok {
		return intersectList(al, b, false)
	}
	if bl, ok := b.(List); ok {
		return intersectList(bl, a, true)
	}

	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av, av == bv
		case IntRange:
			return av, int(av) >= bv.Min && int(av) <= bv.Max
		}
	case IntRange:
		switch bv := b.(type) {
		case Int:
			return bv, int(bv) >= av.Min && int(bv) <= av.Max
		case IntRange:
			lo, hi := max(av.Min, bv.Min), min(av.Max, bv.Max)
			if lo > hi {
				return nil, false
			}
			if lo == hi {
				return Int(lo), true
			}
			return IntRange{Min: lo, Max: hi}, true
		}
	case Fraction:
		switch bv := b.(type) {
		case Fraction:
			return av, av.Equal(bv)
		case FractionRange:
			return av, !av.Less(bv.Min) && !bv.Max.Less(av)
		}
	case FractionRange:
		switch bv := b.(type) {
		case Fraction:
			return bv, !bv.Less(av.Min) && !av.Max.Less(bv)
		case FractionRange:
			lo, hi := av.Min, av.Max
			if lo.Less(bv.Min) {
				lo = bv.Min
			}
			if bv.Max.Less(hi) {
				hi = bv.Max
			}
			if hi.Less(lo) {
				return nil, false
			}
			if lo.Equal(hi) {
				return lo, true
			}
			return FractionRange{Min: lo, Max: hi}, true
		}
	case String:
		if bv, ok := b.(String); ok {
			return av, av == bv
		}
	}
	return nil, false
}

// intersectList intersects every entry of l with other, keeping l's order.
// swapped keeps the argument order stable for asymmetric callers.
func intersectList(l List, other Value, swapped bool) (Value, bool) {
	var out List
	for _, e := range l {
		var (
			v  Value
			ok bool
		)
		if swapped {
			v, ok = intersectValues(other, e)
		} else {
			v, ok = intersectValues(e, other)
		}
		if !ok {
			continue
		}
		if nested, isList := v.(List); isList {
			for _, n := range nested {
				out = appendUnique(out, n)
			}
			continue
		}
		out = appendUnique(out, v)
	}

	switch len(out) {
	case 0:
		return nil, false
	case 1:
		return out[0], true
	default:
		return out, true
	}
}

func appendUnique(l List, v Value) List {
	for _, e := range l {
		if valuesEqual(e, v) {
			return l
		}
	}
	return append(l, v)
}

// fixateValue resolves a value to a single concrete value:
// ranges collapse to their minimum and lists to their first entry.
func fixateValue(v Value) Value {
	switch tv := v.(type) {
	case IntRange:
		return Int(tv.Min)
	case FractionRange:
		return tv.Min
	case List:
		if len(tv) == 0 {
			return tv
		}
		return fixateValue(tv[0])
	default:
		return v
	}
}
