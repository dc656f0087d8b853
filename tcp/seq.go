package tcp

// Value represents the value of a sequence number in the 32-bit modular
// sequence space defined by RFC 9293.
type Value uint32

// Size represents the size (length) of a span of the sequence space.
type Size uint32

// LessThan reports whether v is before w modulo 2**32, i.e. v < w.
func LessThan(v, w Value) bool {
	return int32(v-w) < 0
}

// LessThanEq reports whether v==w or v is before w modulo 2**32.
func LessThanEq(v, w Value) bool {
	return v == w || LessThan(v, w)
}

// GreaterThan reports whether v is after w modulo 2**32, i.e. v > w.
func GreaterThan(v, w Value) bool { return LessThan(w, v) }

// GreaterThanEq reports whether v==w or v is after w modulo 2**32.
func GreaterThanEq(v, w Value) bool { return LessThanEq(w, v) }

// InRange reports whether v is in [a,b) modulo 2**32.
func InRange(v, a, b Value) bool {
	return v-a < b-a
}

// InWindow reports whether v lies in the window [first, first+size) modulo 2**32.
func InWindow(v, first Value, size Size) bool {
	return InRange(v, first, Add(first, size))
}

// Add returns the sequence number following the window [v, v+s).
func Add(v Value, s Size) Value {
	return v + Value(s)
}

// Sub returns the signed distance from v to w, i.e. the number of sequence
// positions that must be added to v to reach w. Wraparound is silent.
func Sub(w, v Value) int32 {
	return int32(w - v)
}

// Sizeof returns the size of the window defined by [v, w).
func Sizeof(v, w Value) Size {
	return Size(w - v)
}

// Max returns the sequence number that is furthest ahead of the other,
// modulo 2**32. Ties return v.
func Max(v, w Value) Value {
	if LessThan(v, w) {
		return w
	}
	return v
}

// UpdateForward advances v by s in place.
func (v *Value) UpdateForward(s Size) {
	*v += Value(s)
}

// Incr returns v+1.
func (v Value) Incr() Value { return v + 1 }
