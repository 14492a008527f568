package sortedcache

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hupe1980/ivarator/blobstore"
	"golang.org/x/sync/errgroup"
)

// Dir is one cache location: a blob store and a name prefix inside it.
type Dir struct {
	Store  blobstore.Store
	Prefix string
}

func (d Dir) String() string {
	return fmt.Sprintf("%T:%s", d.Store, d.Prefix)
}

// RowPrefix returns the prefix of every blob the cache writes for row,
// including the trailing slash.
func (d Dir) RowPrefix(row string) string {
	return path.Join(d.Prefix, escapeRow(row)) + "/"
}

// escapeRow maps a row to a single path element. "%" alone never results
// from PathEscape and stands for the empty row.
func escapeRow(row string) string {
	if row == "" {
		return "%"
	}
	return url.PathEscape(row)
}

const (
	segmentPrefix = "seg-"
	segmentSuffix = ".ivs"
)

func segmentName(rowPrefix string, seq uint64) string {
	return fmt.Sprintf("%s%s%016x-%s%s", rowPrefix, segmentPrefix, seq, uuid.NewString()[:8], segmentSuffix)
}

// parseSegmentSeq extracts the sequence number of a segment blob name.
func parseSegmentSeq(rowPrefix, name string) (uint64, bool) {
	base, ok := strings.CutPrefix(name, rowPrefix+segmentPrefix)
	if !ok || !strings.HasSuffix(base, segmentSuffix) {
		return 0, false
	}
	hex, _, ok := strings.Cut(base, "-")
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// prepareDir creates the row directory on stores that need one.
func prepareDir(ctx context.Context, d Dir, row string) error {
	if dm, ok := d.Store.(blobstore.DirMaker); ok {
		return dm.MkdirAll(ctx, d.RowPrefix(row))
	}
	return nil
}

// Invalidate removes every trace of row from dirs so the row is rebuilt
// from scratch. The completion marker in the control dir (dirs[0]) is
// deleted first: if any later delete fails the row is incomplete rather
// than complete with missing data.
func Invalidate(ctx context.Context, dirs []Dir, row string) error {
	if len(dirs) == 0 {
		return ErrNoDirs
	}
	control := dirs[0]
	if err := control.Store.Delete(ctx, control.RowPrefix(row)+CompleteMarker); err != nil {
		return fmt.Errorf("sortedcache: clear complete marker of %q: %w", row, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, d := range dirs {
		g.Go(func() error {
			if err := blobstore.DeletePrefix(ctx, d.Store, d.RowPrefix(row)); err != nil {
				return fmt.Errorf("sortedcache: invalidate %q in %s: %w", row, d, err)
			}
			return nil
		})
	}
	return g.Wait()
}
