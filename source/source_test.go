package source

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/hupe1980/ivarator/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	return []Entry{
		{Key: key.New("r2", "fi\x00NAME", "carol\x00dt\x00u3"), Value: []byte("3")},
		{Key: key.New("r1", "fi\x00NAME", "alice\x00dt\x00u1"), Value: []byte("1")},
		{Key: key.New("r1", "fi\x00NAME", "bob\x00dt\x00u2"), Value: []byte("2")},
		{Key: key.New("r1", "dt\x00u1", "NAME\x00alice"), Value: []byte("e1")},
	}
}

func collect(t *testing.T, s Source, r key.Range) []key.Key {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, s.Seek(ctx, r))
	var out []key.Key
	for s.HasTop() {
		out = append(out, s.Key())
		require.NoError(t, s.Next(ctx))
	}
	return out
}

func TestSliceSource(t *testing.T) {
	s := NewSliceSource(testEntries())
	require.Equal(t, 4, s.Len())

	all := collect(t, s, key.All())
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Less(all[i]))
	}

	fi := collect(t, s, key.Exact(key.New("r1", "fi\x00NAME", ""), key.PartialRowFamily))
	require.Len(t, fi, 2)
	assert.Equal(t, "alice\x00dt\x00u1", fi[0].Qualifier)
	assert.Equal(t, "bob\x00dt\x00u2", fi[1].Qualifier)

	exclusive := key.NewRange(fi[0], false, key.FollowingKey(fi[0], key.PartialRowFamily), false)
	got := collect(t, s, exclusive)
	require.Len(t, got, 1)
	assert.Equal(t, fi[1], got[0])

	assert.Empty(t, collect(t, s, key.RowRange("r3")))
}

func TestSliceSourceCopyIsIndependent(t *testing.T) {
	s := NewSliceSource(testEntries())
	ctx := t.Context()
	require.NoError(t, s.Seek(ctx, key.All()))

	c, err := s.Copy()
	require.NoError(t, err)
	assert.False(t, c.HasTop())
	require.NoError(t, c.Seek(ctx, key.RowRange("r2")))
	require.True(t, c.HasTop())

	assert.Equal(t, "r1", s.Key().Row)
	assert.Equal(t, "r2", c.Key().Row)
}

func TestPoolBorrowReturn(t *testing.T) {
	template := NewSliceSource(testEntries())
	pool := NewPool(2, CopyFactory(template))
	ctx := t.Context()

	h1, err := pool.Borrow(ctx)
	require.NoError(t, err)
	h2, err := pool.Borrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Borrowed())

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = pool.Borrow(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, pool.Return(h1))
	assert.ErrorIs(t, pool.Return(h1), ErrAlreadyReturned)
	assert.Equal(t, 1, pool.Borrowed())

	h3, err := pool.Borrow(ctx)
	require.NoError(t, err)
	assert.Same(t, h1.Source, h3.Source)

	require.NoError(t, pool.Return(h2))
	require.NoError(t, pool.Return(h3))
	assert.Equal(t, 0, pool.Borrowed())

	require.NoError(t, pool.Close())
	_, err = pool.Borrow(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPebbleSource(t *testing.T) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Load(db, testEntries()))

	s := NewPebbleSource(db)
	defer s.Close()

	want := collect(t, NewSliceSource(testEntries()), key.All())
	assert.Equal(t, want, collect(t, s, key.All()))

	fi := collect(t, s, key.Exact(key.New("r1", "fi\x00NAME", ""), key.PartialRowFamily))
	require.Len(t, fi, 2)

	require.NoError(t, s.Seek(t.Context(), key.RowRange("r2")))
	require.True(t, s.HasTop())
	assert.Equal(t, []byte("3"), s.Value())

	c, err := s.Copy()
	require.NoError(t, err)
	assert.Len(t, collect(t, c, key.RowRange("r1")), 3)
	require.NoError(t, c.(*PebbleSource).Close())
}
