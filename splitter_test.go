package ivarator

import (
	"testing"

	"github.com/hupe1980/ivarator/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualitySplitter(t *testing.T) {
	s := EqualitySplitter{Value: "red"}
	assert.True(t, s.Match("red"))
	assert.False(t, s.Match("reddish"))

	ranges := s.Ranges("row1", "COLOR")
	require.Len(t, ranges, 1)
	r := ranges[0]
	assert.True(t, r.Contains(FieldIndexKey("row1", "COLOR", "red", "csv", "u1")))
	assert.False(t, r.Contains(FieldIndexKey("row1", "COLOR", "reddish", "csv", "u1")))
	assert.False(t, r.Contains(FieldIndexKey("row1", "COLOR", "re", "csv", "u1")))
	assert.False(t, r.Contains(FieldIndexKey("row2", "COLOR", "red", "csv", "u1")))
	assert.False(t, r.Contains(FieldIndexKey("row1", "SHAPE", "red", "csv", "u1")))
}

func TestRegexSplitter(t *testing.T) {
	t.Run("literal prefix", func(t *testing.T) {
		s, err := NewRegexSplitter("bl.*", 8)
		require.NoError(t, err)
		assert.True(t, s.Match("blue"))
		assert.False(t, s.Match("xblue"))

		ranges := s.Ranges("r", "F")
		require.Len(t, ranges, 1)
		assert.True(t, ranges[0].Contains(FieldIndexKey("r", "F", "black", "dt", "u")))
		assert.False(t, ranges[0].Contains(FieldIndexKey("r", "F", "bm", "dt", "u")))
		assert.False(t, ranges[0].Contains(FieldIndexKey("r", "F", "ak", "dt", "u")))
	})

	t.Run("split", func(t *testing.T) {
		s, err := NewRegexSplitter(".*x", 4)
		require.NoError(t, err)
		assert.True(t, s.Match("box"))
		assert.False(t, s.Match("boxes"))

		ranges := s.Ranges("r", "F")
		require.Len(t, ranges, 4)
		for i := 1; i < len(ranges); i++ {
			assert.Equal(t, ranges[i-1].End, ranges[i].Start)
		}
		for _, v := range []string{"", "a", "zzz", "\xff\xff"} {
			k := FieldIndexKey("r", "F", v, "dt", "u")
			n := 0
			for _, r := range ranges {
				if r.Contains(k) {
					n++
				}
			}
			assert.Equal(t, 1, n, "value %q", v)
		}
		assert.False(t, ranges[3].Contains(FieldIndexKey("r", "G", "a", "dt", "u")))
	})

	t.Run("single range", func(t *testing.T) {
		s, err := NewRegexSplitter(".*", 1)
		require.NoError(t, err)
		assert.Equal(t, []key.Range{fieldRange("r", "F")}, s.Ranges("r", "F"))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewRegexSplitter("(", 1)
		assert.Error(t, err)
	})
}

func TestBoundedRangeSplitter(t *testing.T) {
	tests := []struct {
		name    string
		s       BoundedRangeSplitter
		inside  []string
		outside []string
	}{
		{
			name:    "exclusive",
			s:       BoundedRangeSplitter{Lower: "b", Upper: "d"},
			inside:  []string{"ba", "c", "cz"},
			outside: []string{"a", "b", "d", "da"},
		},
		{
			name:    "inclusive",
			s:       BoundedRangeSplitter{Lower: "b", Upper: "d", LowerInclusive: true, UpperInclusive: true},
			inside:  []string{"b", "c", "d"},
			outside: []string{"a", "da"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges := tt.s.Ranges("r", "F")
			require.Len(t, ranges, 1)
			for _, v := range tt.inside {
				assert.True(t, tt.s.Match(v), v)
				assert.True(t, ranges[0].Contains(FieldIndexKey("r", "F", v, "dt", "u")), v)
			}
			for _, v := range tt.outside {
				assert.False(t, tt.s.Match(v), v)
				assert.False(t, ranges[0].Contains(FieldIndexKey("r", "F", v, "dt", "u")), v)
			}
		})
	}

	assert.Empty(t, BoundedRangeSplitter{Lower: "d", Upper: "b"}.Ranges("r", "F"))
	assert.Empty(t, BoundedRangeSplitter{Lower: "b", Upper: "b"}.Ranges("r", "F"))
}

func TestListSplitter(t *testing.T) {
	s := NewListSplitter("white", "black", "white")
	assert.True(t, s.Match("black"))
	assert.False(t, s.Match("blue"))

	ranges := s.Ranges("r", "F")
	require.Len(t, ranges, 2)
	assert.True(t, ranges[0].Contains(FieldIndexKey("r", "F", "black", "dt", "u")))
	assert.True(t, ranges[1].Contains(FieldIndexKey("r", "F", "white", "dt", "u")))

	assert.Equal(t, s.String(), NewListSplitter("black", "white").String())
	assert.NotEqual(t, s.String(), NewListSplitter("black").String())
}
