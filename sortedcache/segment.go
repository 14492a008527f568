package sortedcache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/ivarator/blobstore"
)

const (
	segmentMagic   = "IVSC"
	segmentEnd     = "IVSE"
	segmentVersion = 1

	segmentHeaderSize = 8
	segmentFooterSize = 16

	defaultBlockSize = 64 * 1024
)

// segmentWriter streams strictly ascending encoded keys into a segment.
type segmentWriter struct {
	w           io.Writer
	compression Compression
	blockSize   int

	block   []byte
	framed  []byte
	last    []byte
	keys    uint64
	blocks  uint32
	written int64
}

func newSegmentWriter(w io.Writer, c Compression, blockSize int) (*segmentWriter, error) {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	sw := &segmentWriter{
		w:           w,
		compression: c,
		blockSize:   blockSize,
		block:       make([]byte, 0, blockSize+256),
	}
	hdr := [segmentHeaderSize]byte{segmentMagic[0], segmentMagic[1], segmentMagic[2], segmentMagic[3], segmentVersion, byte(c)}
	if err := sw.write(hdr[:]); err != nil {
		return nil, err
	}
	return sw, nil
}

func (sw *segmentWriter) write(p []byte) error {
	n, err := sw.w.Write(p)
	sw.written += int64(n)
	return err
}

// add appends one encoded key. Keys must be strictly ascending.
func (sw *segmentWriter) add(enc []byte) error {
	if sw.keys > 0 && bytes.Compare(enc, sw.last) <= 0 {
		return ErrOutOfOrder
	}
	sw.last = append(sw.last[:0], enc...)
	sw.block = binary.AppendUvarint(sw.block, uint64(len(enc)))
	sw.block = append(sw.block, enc...)
	sw.keys++
	if len(sw.block) >= sw.blockSize {
		return sw.flushBlock()
	}
	return nil
}

func (sw *segmentWriter) flushBlock() error {
	if len(sw.block) == 0 {
		return nil
	}
	var err error
	sw.framed, err = appendBlock(sw.framed[:0], sw.block, sw.compression)
	if err != nil {
		return err
	}
	if err := sw.write(sw.framed); err != nil {
		return err
	}
	sw.blocks++
	sw.block = sw.block[:0]
	return nil
}

// finish flushes the last block and writes the footer.
func (sw *segmentWriter) finish() error {
	if err := sw.flushBlock(); err != nil {
		return err
	}
	var footer [segmentFooterSize]byte
	binary.LittleEndian.PutUint64(footer[0:], sw.keys)
	binary.LittleEndian.PutUint32(footer[8:], sw.blocks)
	copy(footer[12:], segmentEnd)
	return sw.write(footer[:])
}

// segmentReader streams the keys of one segment in order.
type segmentReader struct {
	blob        blobstore.Blob
	body        io.ReadCloser
	br          *bufio.Reader
	compression Compression
	keys        uint64
	blocks      uint32

	hdr     [blockHeaderSize]byte
	payload []byte
	scratch []byte
	block   []byte
	cur     []byte
	closed  bool
}

// openSegment validates the header and footer of name and positions the
// reader before the first key.
func openSegment(ctx context.Context, store blobstore.Store, name string) (*segmentReader, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	r, err := newSegmentReader(ctx, blob)
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return r, nil
}

func newSegmentReader(ctx context.Context, blob blobstore.Blob) (*segmentReader, error) {
	size := blob.Size()
	if size < segmentHeaderSize+segmentFooterSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, size)
	}

	var hdr [segmentHeaderSize]byte
	if _, err := blob.ReadAt(ctx, hdr[:], 0); err != nil && err != io.EOF {
		return nil, err
	}
	if string(hdr[:4]) != segmentMagic || hdr[4] != segmentVersion {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}

	var footer [segmentFooterSize]byte
	if _, err := blob.ReadAt(ctx, footer[:], size-segmentFooterSize); err != nil && err != io.EOF {
		return nil, err
	}
	if string(footer[12:]) != segmentEnd {
		return nil, fmt.Errorf("%w: bad footer", ErrCorrupt)
	}

	body, err := blob.ReadRange(ctx, segmentHeaderSize, size-segmentHeaderSize-segmentFooterSize)
	if err != nil {
		return nil, err
	}
	return &segmentReader{
		blob:        blob,
		body:        body,
		br:          bufio.NewReaderSize(body, 64*1024),
		compression: Compression(hdr[5]),
		keys:        binary.LittleEndian.Uint64(footer[0:]),
		blocks:      binary.LittleEndian.Uint32(footer[8:]),
	}, nil
}

// next advances to the next key. It returns false at the end.
func (r *segmentReader) next() (bool, error) {
	if r.closed {
		return false, ErrClosed
	}
	for len(r.block) == 0 {
		if r.blocks == 0 {
			r.cur = nil
			return false, nil
		}
		if err := r.readBlock(); err != nil {
			return false, err
		}
	}
	n, sz := binary.Uvarint(r.block)
	if sz <= 0 || uint64(len(r.block)-sz) < n {
		return false, fmt.Errorf("%w: truncated key", ErrCorrupt)
	}
	r.cur = r.block[sz : sz+int(n)]
	r.block = r.block[sz+int(n):]
	return true, nil
}

func (r *segmentReader) readBlock() error {
	if _, err := io.ReadFull(r.br, r.hdr[:]); err != nil {
		return fmt.Errorf("%w: block header: %v", ErrCorrupt, err)
	}
	h := parseBlockHeader(r.hdr[:])
	n := h.payloadLen()
	if cap(r.payload) < n {
		r.payload = make([]byte, n)
	}
	r.payload = r.payload[:n]
	if _, err := io.ReadFull(r.br, r.payload); err != nil {
		return fmt.Errorf("%w: block payload: %v", ErrCorrupt, err)
	}
	raw, err := decodeBlock(r.scratch, h, r.payload, r.compression)
	if err != nil {
		return err
	}
	if h.storedLen != 0 {
		r.scratch = raw
	}
	r.block = raw
	r.blocks--
	return nil
}

func (r *segmentReader) current() []byte { return r.cur }

func (r *segmentReader) close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.body.Close()
	if cerr := r.blob.Close(); err == nil {
		err = cerr
	}
	return err
}
