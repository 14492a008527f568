package ivarator

import (
	"strings"

	"github.com/hupe1980/ivarator/key"
)

// FieldIndexPrefix starts the column family of every field index key.
//
// A field index key is laid out as
//
//	row : fi\x00FIELD : value\x00datatype\x00uid
//
// and the document it points to is row : datatype\x00uid.
const FieldIndexPrefix = "fi\x00"

// ReturnKeyType selects the shape of the keys a Builder returns.
type ReturnKeyType int

const (
	// ReturnDocument returns row : datatype\x00uid.
	ReturnDocument ReturnKeyType = iota
	// ReturnEvent returns row : datatype\x00uid : FIELD\x00value with the
	// timestamp of the index entry.
	ReturnEvent
)

func (t ReturnKeyType) String() string {
	if t == ReturnEvent {
		return "event"
	}
	return "document"
}

// FieldIndexFamily returns the column family holding field's index.
func FieldIndexFamily(field string) string {
	return FieldIndexPrefix + field
}

// FieldIndexKey builds the index key of one field value.
func FieldIndexKey(row, field, value, datatype, uid string) key.Key {
	return key.New(row, FieldIndexFamily(field), value+"\x00"+datatype+"\x00"+uid)
}

// FieldIndexEntry is a parsed field index key.
type FieldIndexEntry struct {
	Field    string
	Value    string
	Datatype string
	UID      string
}

// ParseFieldIndexKey splits a field index key into its parts. The value
// may itself contain NUL bytes; datatype and uid may not.
func ParseFieldIndexKey(k key.Key) (FieldIndexEntry, bool) {
	field, ok := strings.CutPrefix(k.Family, FieldIndexPrefix)
	if !ok {
		return FieldIndexEntry{}, false
	}
	last := strings.LastIndexByte(k.Qualifier, 0)
	if last < 0 {
		return FieldIndexEntry{}, false
	}
	sep := strings.LastIndexByte(k.Qualifier[:last], 0)
	if sep < 0 {
		return FieldIndexEntry{}, false
	}
	return FieldIndexEntry{
		Field:    field,
		Value:    k.Qualifier[:sep],
		Datatype: k.Qualifier[sep+1 : last],
		UID:      k.Qualifier[last+1:],
	}, true
}

// eventKey turns a field index key into the key returned to the caller.
func eventKey(k key.Key, e FieldIndexEntry, t ReturnKeyType) key.Key {
	doc := e.Datatype + "\x00" + e.UID
	if t == ReturnEvent {
		return key.Key{Row: k.Row, Family: doc, Qualifier: e.Field + "\x00" + e.Value, Timestamp: k.Timestamp}
	}
	return key.New(k.Row, doc, "")
}

// indexKeyOf reverses an event key into the index key it was built from.
// inclusive false positions the result after every version of that entry.
func indexKeyOf(k key.Key, inclusive bool) (key.Key, bool) {
	field, value, ok := strings.Cut(k.Qualifier, "\x00")
	if !ok || k.Family == "" {
		return key.Key{}, false
	}
	q := value + "\x00" + k.Family
	if !inclusive {
		q += "\x00"
	}
	return key.New(k.Row, FieldIndexFamily(field), q), true
}

// fieldRange covers the whole index of field within row.
func fieldRange(row, field string) key.Range {
	return key.Exact(key.New(row, FieldIndexFamily(field), ""), key.PartialRowFamily)
}

// DatatypeFilter accepts or rejects index entries by datatype.
type DatatypeFilter func(datatype string) bool

// Datatypes returns a filter accepting only the named datatypes.
func Datatypes(names ...string) DatatypeFilter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(dt string) bool {
		_, ok := set[dt]
		return ok
	}
}

// TimeFilter accepts index entries whose timestamp lies in [Start, End].
type TimeFilter struct {
	Start int64
	End   int64
}

// Contains reports whether ts passes the filter.
func (f TimeFilter) Contains(ts int64) bool {
	return ts >= f.Start && ts <= f.End
}
