package key

import (
	"cmp"
	"fmt"
	"math"
	"strings"
)

// Key is a cell coordinate in the sorted store.
//
// Keys order by row, family and qualifier ascending and then by timestamp
// descending, so the newest version of a cell sorts first.
type Key struct {
	Row       string
	Family    string
	Qualifier string
	Timestamp int64
}

// Partial selects the key prefix used by FollowingKey.
type Partial int

const (
	// PartialRow addresses every key sharing the row.
	PartialRow Partial = iota
	// PartialRowFamily addresses every key sharing row and family.
	PartialRowFamily
	// PartialRowFamilyQualifier addresses every version of a cell.
	PartialRowFamilyQualifier
)

// New returns a key with the latest possible timestamp, which sorts before
// every other version of the same cell.
func New(row, family, qualifier string) Key {
	return Key{Row: row, Family: family, Qualifier: qualifier, Timestamp: math.MaxInt64}
}

// Compare returns -1, 0 or +1 depending on the order of a and b.
func Compare(a, b Key) int {
	if c := strings.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	if c := strings.Compare(a.Family, b.Family); c != 0 {
		return c
	}
	if c := strings.Compare(a.Qualifier, b.Qualifier); c != 0 {
		return c
	}
	return cmp.Compare(b.Timestamp, a.Timestamp)
}

// Equal reports whether a and b address the same cell version.
func (k Key) Equal(o Key) bool { return Compare(k, o) == 0 }

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool { return Compare(k, o) < 0 }

// EqualPartial reports whether k and o share the prefix selected by p.
func (k Key) EqualPartial(o Key, p Partial) bool {
	switch p {
	case PartialRow:
		return k.Row == o.Row
	case PartialRowFamily:
		return k.Row == o.Row && k.Family == o.Family
	default:
		return k.Row == o.Row && k.Family == o.Family && k.Qualifier == o.Qualifier
	}
}

// FollowingKey returns the smallest key that sorts after every key sharing
// k's prefix selected by p.
func FollowingKey(k Key, p Partial) Key {
	switch p {
	case PartialRow:
		return New(k.Row+"\x00", "", "")
	case PartialRowFamily:
		return New(k.Row, k.Family+"\x00", "")
	default:
		return New(k.Row, k.Family, k.Qualifier+"\x00")
	}
}

func (k Key) String() string {
	if k.Timestamp == math.MaxInt64 {
		return fmt.Sprintf("%q %q:%q", k.Row, k.Family, k.Qualifier)
	}
	return fmt.Sprintf("%q %q:%q [%d]", k.Row, k.Family, k.Qualifier, k.Timestamp)
}
