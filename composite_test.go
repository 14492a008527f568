package ivarator

import (
	"strings"
	"testing"

	"github.com/hupe1980/ivarator/key"
	"github.com/hupe1980/ivarator/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// suffixSeeker accepts composite values "a,b" whose second component is
// "x". Out-of-bounds entries seek to the next candidate.
type suffixSeeker struct{}

func (suffixSeeker) InBounds(k key.Key, _ key.Range) bool {
	e, ok := ParseFieldIndexKey(k)
	return ok && strings.HasSuffix(e.Value, ",x")
}

func (suffixSeeker) NextSeekKey(k key.Key, _ key.Range) (key.Key, bool) {
	e, ok := ParseFieldIndexKey(k)
	if !ok {
		return key.Key{}, false
	}
	first, second, _ := strings.Cut(e.Value, ",")
	if second < "x" {
		return key.New(k.Row, k.Family, first+",x"), true
	}
	next, ok := prefixEnd(first + ",")
	return key.New(k.Row, k.Family, next), ok
}

func compositeKey(value string) key.Key {
	return FieldIndexKey("row", "F", value, "dt", "u")
}

func TestCompositeSkip_Threshold(t *testing.T) {
	bound := fieldRange("row", "F")
	c := &compositeSkip{seeker: suffixSeeker{}, bound: bound, threshold: 2}

	_, ok := c.step(compositeKey("a,a"))
	assert.False(t, ok)
	_, ok = c.step(compositeKey("a,b"))
	assert.False(t, ok)
	target, ok := c.step(compositeKey("a,c"))
	require.True(t, ok)
	assert.Equal(t, key.New("row", FieldIndexFamily("F"), "a,x"), target)

	// A new run starts counting again.
	_, ok = c.step(compositeKey("b,a"))
	assert.False(t, ok)
}

func TestCompositeSkip_ImmediateSeek(t *testing.T) {
	bound := fieldRange("row", "F")
	c := &compositeSkip{seeker: suffixSeeker{}, bound: bound, threshold: 0}

	target, ok := c.step(compositeKey("a,a"))
	require.True(t, ok)
	assert.Equal(t, key.New("row", FieldIndexFamily("F"), "a,x"), target)
}

func TestCompositeSkip_TargetOutsideBound(t *testing.T) {
	bound := EqualitySplitter{Value: "a,a"}.Ranges("row", "F")[0]
	c := &compositeSkip{seeker: suffixSeeker{}, bound: bound, threshold: 0}

	_, ok := c.step(compositeKey("a,a"))
	assert.False(t, ok)
}

func TestBuilder_CompositeSeek(t *testing.T) {
	var entries []source.Entry
	for _, first := range []string{"a", "b", "c"} {
		for _, second := range []string{"a", "b", "c", "d", "x", "y"} {
			entries = append(entries, source.Entry{Key: FieldIndexKey("row", testField, first+","+second, "csv", first+second)})
		}
	}
	env := newTestEnv(t, entries, nil)
	cfg := testConfig(BoundedRangeSplitter{Lower: "a", Upper: "d", LowerInclusive: true})
	cfg.CompositeSeeker = suffixSeeker{}
	cfg.CompositeSeekThreshold = 1
	b := env.builder(t, cfg)

	got, _ := drain(t, b, key.All())
	assert.Equal(t, []key.Key{
		key.New("row", "csv\x00ax", ""),
		key.New("row", "csv\x00bx", ""),
		key.New("row", "csv\x00cx", ""),
	}, got)
}
