package key

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Range is an interval of keys. An unbounded side ignores its key and
// inclusivity flag.
type Range struct {
	Start          Key
	End            Key
	StartInclusive bool
	EndInclusive   bool
	StartUnbounded bool
	EndUnbounded   bool
}

// NewRange returns a bounded range.
func NewRange(start Key, startInclusive bool, end Key, endInclusive bool) Range {
	return Range{Start: start, StartInclusive: startInclusive, End: end, EndInclusive: endInclusive}
}

// All returns the range covering every key.
func All() Range {
	return Range{StartUnbounded: true, EndUnbounded: true}
}

// RowRange returns the range covering every key of row.
func RowRange(row string) Range {
	return NewRange(New(row, "", ""), true, FollowingKey(New(row, "", ""), PartialRow), false)
}

// Exact returns the range covering every key sharing k's prefix selected by p.
func Exact(k Key, p Partial) Range {
	start := k
	switch p {
	case PartialRow:
		start = New(k.Row, "", "")
	case PartialRowFamily:
		start = New(k.Row, k.Family, "")
	default:
		start = New(k.Row, k.Family, k.Qualifier)
	}
	return NewRange(start, true, FollowingKey(k, p), false)
}

// BeforeStartKey reports whether k sorts before the range.
func (r Range) BeforeStartKey(k Key) bool {
	if r.StartUnbounded {
		return false
	}
	c := Compare(k, r.Start)
	if r.StartInclusive {
		return c < 0
	}
	return c <= 0
}

// AfterEndKey reports whether k sorts after the range.
func (r Range) AfterEndKey(k Key) bool {
	if r.EndUnbounded {
		return false
	}
	c := Compare(k, r.End)
	if r.EndInclusive {
		return c > 0
	}
	return c >= 0
}

// Contains reports whether k lies inside the range.
func (r Range) Contains(k Key) bool {
	return !r.BeforeStartKey(k) && !r.AfterEndKey(k)
}

// ContainsRange reports whether every key of o lies inside r.
func (r Range) ContainsRange(o Range) bool {
	if !r.StartUnbounded {
		if o.StartUnbounded {
			return false
		}
		c := Compare(o.Start, r.Start)
		if c < 0 || (c == 0 && o.StartInclusive && !r.StartInclusive) {
			return false
		}
	}
	if !r.EndUnbounded {
		if o.EndUnbounded {
			return false
		}
		c := Compare(o.End, r.End)
		if c > 0 || (c == 0 && o.EndInclusive && !r.EndInclusive) {
			return false
		}
	}
	return true
}

// Empty reports whether no key can lie inside the range.
func (r Range) Empty() bool {
	if r.StartUnbounded || r.EndUnbounded {
		return false
	}
	c := Compare(r.Start, r.End)
	if c > 0 {
		return true
	}
	return c == 0 && !(r.StartInclusive && r.EndInclusive)
}

// WithStart returns a copy of r starting at k.
func (r Range) WithStart(k Key, inclusive bool) Range {
	r.Start = k
	r.StartInclusive = inclusive
	r.StartUnbounded = false
	return r
}

// Clip returns the intersection of r and o and whether it is non-empty.
func (r Range) Clip(o Range) (Range, bool) {
	out := r
	if !o.StartUnbounded {
		c := 1
		if !r.StartUnbounded {
			c = Compare(o.Start, r.Start)
		}
		if c > 0 || (c == 0 && !o.StartInclusive) {
			out.Start, out.StartInclusive, out.StartUnbounded = o.Start, o.StartInclusive, false
		}
	}
	if !o.EndUnbounded {
		c := -1
		if !r.EndUnbounded {
			c = Compare(o.End, r.End)
		}
		if c < 0 || (c == 0 && !o.EndInclusive) {
			out.End, out.EndInclusive, out.EndUnbounded = o.End, o.EndInclusive, false
		}
	}
	return out, !out.Empty()
}

// Hash returns a stable 64-bit digest of the range bounds.
func (r Range) Hash() uint64 {
	var flags [1]byte
	if r.StartInclusive {
		flags[0] |= 1
	}
	if r.EndInclusive {
		flags[0] |= 2
	}
	if r.StartUnbounded {
		flags[0] |= 4
	}
	if r.EndUnbounded {
		flags[0] |= 8
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, flags[:]...)
	start := Encode(r.Start)
	buf = binary.AppendUvarint(buf, uint64(len(start)))
	buf = append(buf, start...)
	buf = append(buf, Encode(r.End)...)
	return xxh3.Hash(buf)
}

func (r Range) String() string {
	lo, hi := "(-inf", "+inf)"
	if !r.StartUnbounded {
		b := "("
		if r.StartInclusive {
			b = "["
		}
		lo = b + r.Start.String()
	}
	if !r.EndUnbounded {
		b := ")"
		if r.EndInclusive {
			b = "]"
		}
		hi = r.End.String() + b
	}
	return fmt.Sprintf("%s, %s", lo, hi)
}
