// value.go - typed accessors over a metadata value
package gguf

// Value wraps a metadata value whose concrete type depends on the tag it
// was decoded with.
type Value struct {
	v any
}

// Int returns the value as an int64, accepting any of the container's
// signed/unsigned integer types.
func (v Value) Int() (int64, bool) {
	switch n := v.v.(type) {
	case uint8:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// Uint32 returns the value as a uint32.
func (v Value) Uint32() (uint32, bool) {
	n, ok := v.Int()
	return uint32(n), ok
}

// Float returns the value as a float64.
func (v Value) Float() (float64, bool) {
	switch n := v.v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// String returns the value as a string.
func (v Value) String() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Strings returns the value as a string array.
func (v Value) Strings() ([]string, bool) {
	s, ok := v.v.([]string)
	return s, ok
}

// Any returns the value's underlying data, whatever its decoded type.
func (v Value) Any() any {
	return v.v
}

// Valid reports whether the value holds any underlying data.
func (v Value) Valid() bool {
	return v.v != nil
}
