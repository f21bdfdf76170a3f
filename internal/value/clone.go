package value

// Clone returns a deep copy of v. Arrays keep their order; objects are copied
// recursively. Scalars are immutable and returned as-is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		if val == nil {
			return Array(nil)
		}
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		if val == nil {
			return Object(nil)
		}
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether a and b are deep-equal.
// nil and Null are considered equal. Int and Float are distinct kinds.
func Equal(a, b Value) bool {
	if IsAbsent(a) || IsAbsent(b) {
		return IsAbsent(a) && IsAbsent(b)
	}

	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, present := bv[k]
			if !present || !Equal(elem, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
