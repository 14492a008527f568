package ivarator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hupe1980/ivarator/key"
)

// RangeSplitter describes one predicate: which parts of a field index it
// has to scan, and which values it matches.
type RangeSplitter interface {
	// Ranges returns the bounding ranges of field within row. Ranges must
	// be sorted ascending, disjoint and confined to the field's index.
	Ranges(row, field string) []key.Range
	// Match reports whether an index value satisfies the predicate. It is
	// called concurrently.
	Match(value string) bool
	// String identifies the predicate. It is part of every task identity.
	String() string
}

// valueRange covers every index entry whose value lies in [lo, hi).
// Values are followed by a NUL in the qualifier, so lo+"\x00" starts
// exactly at lo itself.
func valueRange(row, field, lo, hi string, hiUnbounded bool) key.Range {
	fam := FieldIndexFamily(field)
	r := key.NewRange(key.New(row, fam, lo), true, key.New(row, fam, hi), false)
	if hiUnbounded {
		r.End = key.FollowingKey(r.Start, key.PartialRowFamily)
	}
	return r
}

// EqualitySplitter matches a single value.
type EqualitySplitter struct {
	Value string
}

func (s EqualitySplitter) Ranges(row, field string) []key.Range {
	return []key.Range{valueRange(row, field, s.Value+"\x00", s.Value+"\x01", false)}
}

func (s EqualitySplitter) Match(value string) bool { return value == s.Value }

func (s EqualitySplitter) String() string { return fmt.Sprintf("eq(%q)", s.Value) }

// RegexSplitter matches a regular expression. A literal prefix narrows the
// scan to one range; otherwise the field is split into up to MaxSplit
// ranges by the first byte of the value.
type RegexSplitter struct {
	re       *regexp.Regexp
	prefix   string
	maxSplit int
}

// NewRegexSplitter compiles pattern. The pattern is anchored at both ends.
func NewRegexSplitter(pattern string, maxSplit int) (*RegexSplitter, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("ivarator: compile regex: %w", err)
	}
	// The anchored program starts with an empty-width op and reports no
	// prefix, so take it from the bare pattern.
	var prefix string
	if bare, err := regexp.Compile(pattern); err == nil {
		prefix, _ = bare.LiteralPrefix()
	}
	return &RegexSplitter{re: re, prefix: prefix, maxSplit: max(maxSplit, 1)}, nil
}

func (s *RegexSplitter) Ranges(row, field string) []key.Range {
	if s.prefix != "" {
		hi, ok := prefixEnd(s.prefix)
		return []key.Range{valueRange(row, field, s.prefix, hi, !ok)}
	}
	if s.maxSplit == 1 {
		return []key.Range{fieldRange(row, field)}
	}

	ranges := make([]key.Range, 0, s.maxSplit)
	lo := ""
	for i := 1; i < s.maxSplit; i++ {
		hi := string([]byte{byte(i * 256 / s.maxSplit)})
		if hi <= lo {
			continue
		}
		ranges = append(ranges, valueRange(row, field, lo, hi, false))
		lo = hi
	}
	return append(ranges, valueRange(row, field, lo, "", true))
}

func (s *RegexSplitter) Match(value string) bool { return s.re.MatchString(value) }

func (s *RegexSplitter) String() string { return fmt.Sprintf("regex(%s)", s.re) }

// prefixEnd returns the smallest string greater than every string with
// the given prefix, or false when no such string exists.
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// BoundedRangeSplitter matches values between Lower and Upper.
type BoundedRangeSplitter struct {
	Lower          string
	Upper          string
	LowerInclusive bool
	UpperInclusive bool
}

func (s BoundedRangeSplitter) Ranges(row, field string) []key.Range {
	lo := s.Lower + "\x00"
	if !s.LowerInclusive {
		lo = s.Lower + "\x01"
	}
	hi := s.Upper + "\x00"
	if s.UpperInclusive {
		hi = s.Upper + "\x01"
	}
	if lo >= hi {
		return nil
	}
	return []key.Range{valueRange(row, field, lo, hi, false)}
}

func (s BoundedRangeSplitter) Match(value string) bool {
	c := strings.Compare(value, s.Lower)
	if c < 0 || (c == 0 && !s.LowerInclusive) {
		return false
	}
	c = strings.Compare(value, s.Upper)
	return c < 0 || (c == 0 && s.UpperInclusive)
}

func (s BoundedRangeSplitter) String() string {
	lo, hi := "(", ")"
	if s.LowerInclusive {
		lo = "["
	}
	if s.UpperInclusive {
		hi = "]"
	}
	return fmt.Sprintf("range%s%q,%q%s", lo, s.Lower, s.Upper, hi)
}

// ListSplitter matches any of a set of values, one range per value.
type ListSplitter struct {
	values []string
	set    map[string]struct{}
}

// NewListSplitter returns a splitter over the distinct values.
func NewListSplitter(values ...string) *ListSplitter {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	set := make(map[string]struct{}, len(sorted))
	for _, v := range sorted {
		set[v] = struct{}{}
	}
	return &ListSplitter{values: sorted, set: set}
}

func (s *ListSplitter) Ranges(row, field string) []key.Range {
	ranges := make([]key.Range, 0, len(s.values))
	for _, v := range s.values {
		ranges = append(ranges, valueRange(row, field, v+"\x00", v+"\x01", false))
	}
	return ranges
}

func (s *ListSplitter) Match(value string) bool {
	_, ok := s.set[value]
	return ok
}

func (s *ListSplitter) String() string {
	return fmt.Sprintf("list(%d:%x)", len(s.values), strings.Join(s.values, "\x00"))
}
