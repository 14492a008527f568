package sortedcache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hupe1980/ivarator/blobstore"
)

// Marker names inside a row directory of the control dir.
const (
	OwnershipMarker = "ownership"
	CompleteMarker  = "complete"
)

var completeContent = []byte("complete")

// NewOwnerID returns a process-unique owner id of the form hostname://uuid.
func NewOwnerID() string {
	return hostname() + "://" + uuid.NewString()
}

func hostname() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	h, err := os.Hostname()
	if err != nil || h == "localhost" || strings.Contains(h, ":") {
		return ""
	}
	return h
}

// Control manages the ownership and completion markers of rows in the
// control dir.
type Control struct {
	dir        Dir
	numRetries int
	logger     *slog.Logger
}

// NewControl creates a Control over dir. Only the NumRetries and Logger
// options apply.
func NewControl(dir Dir, opts ...Option) *Control {
	o := buildOptions(opts)
	return &Control{dir: dir, numRetries: o.NumRetries, logger: o.Logger}
}

// Dir returns the control dir.
func (c *Control) Dir() Dir { return c.dir }

func (c *Control) marker(row, name string) string {
	return c.dir.RowPrefix(row) + name
}

// TakeOwnership records owner as the single writer of row.
func (c *Control) TakeOwnership(ctx context.Context, row, owner string) error {
	if err := prepareDir(ctx, c.dir, row); err != nil {
		return err
	}
	return c.writeFile(ctx, c.marker(row, OwnershipMarker), []byte(owner))
}

// Owner returns the recorded owner of row, or "" if there is none.
func (c *Control) Owner(ctx context.Context, row string) (string, error) {
	data, err := blobstore.ReadAll(ctx, c.dir.Store, c.marker(row, OwnershipMarker))
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasOwnership reports whether owner still owns row.
func (c *Control) HasOwnership(ctx context.Context, row, owner string) (bool, error) {
	return c.hasContents(ctx, c.marker(row, OwnershipMarker), []byte(owner))
}

// MarkComplete records that row's cache is complete and persisted.
func (c *Control) MarkComplete(ctx context.Context, row string) error {
	return c.writeFile(ctx, c.marker(row, CompleteMarker), completeContent)
}

// IsComplete reports whether row's cache may be reused.
func (c *Control) IsComplete(ctx context.Context, row string) (bool, error) {
	return c.dir.Store.Exists(ctx, c.marker(row, CompleteMarker))
}

// ClearComplete removes the completion marker of row.
func (c *Control) ClearComplete(ctx context.Context, row string) error {
	return c.dir.Store.Delete(ctx, c.marker(row, CompleteMarker))
}

func (c *Control) hasContents(ctx context.Context, name string, want []byte) (bool, error) {
	got, err := blobstore.ReadAll(ctx, c.dir.Store, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(got, want), nil
}

// writeFile writes a marker with up to NumRetries retries. After a failure
// an existing marker switches the next attempt to append, and a marker
// that already holds value counts as written. A missing directory means
// the cache root was removed underneath us, which is not retried.
func (c *Control) writeFile(ctx context.Context, name string, value []byte) error {
	var (
		lastErr  error
		attempts int
		appendTo bool
	)
	for attempts <= c.numRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++

		lastErr = c.put(ctx, name, value, appendTo)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, blobstore.ErrNotFound) {
			c.logger.Warn("marker dir does not exist", "name", name, "error", lastErr)
			break
		}

		exists, err := c.dir.Store.Exists(ctx, name)
		if err != nil {
			c.logger.Warn("marker write failed", "name", name, "attempt", attempts, "error", lastErr)
			continue
		}
		if !exists {
			c.logger.Warn("marker write failed, marker does not exist", "name", name, "attempt", attempts, "error", lastErr)
			continue
		}
		appendTo = true
		if ok, _ := c.hasContents(ctx, name, value); ok {
			return nil
		}
		c.logger.Warn("marker write failed, marker exists", "name", name, "attempt", attempts, "error", lastErr)
	}
	return &WriteError{Name: name, Attempts: attempts, Err: lastErr}
}

func (c *Control) put(ctx context.Context, name string, value []byte, appendTo bool) error {
	if appendTo {
		if a, ok := c.dir.Store.(blobstore.Appender); ok {
			err := a.Append(ctx, name, value)
			if !errors.Is(err, blobstore.ErrAppendNotSupported) {
				return err
			}
		}
	}
	return c.dir.Store.Put(ctx, name, value)
}
