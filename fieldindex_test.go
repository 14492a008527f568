package ivarator

import (
	"math"
	"testing"

	"github.com/hupe1980/ivarator/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldIndexKey(t *testing.T) {
	e, ok := ParseFieldIndexKey(FieldIndexKey("row", "COLOR", "red", "csv", "u1"))
	require.True(t, ok)
	assert.Equal(t, FieldIndexEntry{Field: "COLOR", Value: "red", Datatype: "csv", UID: "u1"}, e)

	e, ok = ParseFieldIndexKey(FieldIndexKey("row", "NAME", "a\x00b", "csv", "u1"))
	require.True(t, ok)
	assert.Equal(t, "a\x00b", e.Value)
	assert.Equal(t, "csv", e.Datatype)

	_, ok = ParseFieldIndexKey(key.New("row", "csv\x00u1", "COLOR\x00red"))
	assert.False(t, ok)
	_, ok = ParseFieldIndexKey(key.New("row", FieldIndexFamily("COLOR"), "red\x00csv"))
	assert.False(t, ok)
}

func TestEventKey(t *testing.T) {
	k := FieldIndexKey("row", "COLOR", "red", "csv", "u1")
	k.Timestamp = 42
	e, _ := ParseFieldIndexKey(k)

	doc := eventKey(k, e, ReturnDocument)
	assert.Equal(t, key.New("row", "csv\x00u1", ""), doc)

	ev := eventKey(k, e, ReturnEvent)
	assert.Equal(t, key.Key{Row: "row", Family: "csv\x00u1", Qualifier: "COLOR\x00red", Timestamp: 42}, ev)

	back, ok := indexKeyOf(ev, true)
	require.True(t, ok)
	assert.Equal(t, k.Row, back.Row)
	assert.Equal(t, k.Family, back.Family)
	assert.Equal(t, k.Qualifier, back.Qualifier)
	assert.Equal(t, int64(math.MaxInt64), back.Timestamp)

	after, ok := indexKeyOf(ev, false)
	require.True(t, ok)
	assert.True(t, k.Less(after))
	assert.True(t, after.Less(FieldIndexKey("row", "COLOR", "red", "csv", "u2")))

	_, ok = indexKeyOf(doc, true)
	assert.False(t, ok)
}

func TestFilters(t *testing.T) {
	f := Datatypes("csv", "json")
	assert.True(t, f("csv"))
	assert.False(t, f("xml"))

	tf := TimeFilter{Start: 10, End: 20}
	assert.True(t, tf.Contains(10))
	assert.True(t, tf.Contains(20))
	assert.False(t, tf.Contains(9))
	assert.False(t, tf.Contains(21))

	assert.Equal(t, "document", ReturnDocument.String())
	assert.Equal(t, "event", ReturnEvent.String())
}
