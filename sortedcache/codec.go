package sortedcache

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression of new segments.
type Compression uint8

const (
	// CompressionNone stores blocks as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses Zstandard (better ratio).
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("sortedcache: unknown compression %q", s)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

const blockHeaderSize = 16

// appendBlock appends the framed block for raw to dst.
// Blocks that do not shrink below 90% are stored uncompressed.
func appendBlock(dst, raw []byte, c Compression) ([]byte, error) {
	var stored []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, err
		}
		stored = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		stored = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	}
	if len(stored) == 0 || float64(len(stored)) > float64(len(raw))*0.9 {
		stored = nil
	}

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(stored)))
	binary.LittleEndian.PutUint64(hdr[8:], xxhash.Sum64(raw))
	dst = append(dst, hdr[:]...)
	if stored == nil {
		return append(dst, raw...), nil
	}
	return append(dst, stored...), nil
}

type blockHeader struct {
	rawLen    uint32
	storedLen uint32
	checksum  uint64
}

func parseBlockHeader(b []byte) blockHeader {
	return blockHeader{
		rawLen:    binary.LittleEndian.Uint32(b[0:]),
		storedLen: binary.LittleEndian.Uint32(b[4:]),
		checksum:  binary.LittleEndian.Uint64(b[8:]),
	}
}

// payloadLen is the number of bytes following the header.
func (h blockHeader) payloadLen() int {
	if h.storedLen == 0 {
		return int(h.rawLen)
	}
	return int(h.storedLen)
}

// decodeBlock restores and verifies the raw block bytes. dst is reused when
// large enough.
func decodeBlock(dst []byte, h blockHeader, payload []byte, c Compression) ([]byte, error) {
	var raw []byte
	if h.storedLen == 0 {
		raw = payload
	} else {
		if cap(dst) < int(h.rawLen) {
			dst = make([]byte, h.rawLen)
		}
		dst = dst[:h.rawLen]

		switch c {
		case CompressionLZ4:
			n, err := lz4.UncompressBlock(payload, dst)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			if uint32(n) != h.rawLen {
				return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
			}
			raw = dst
		case CompressionZstd:
			dec := getZstdDecoder()
			decoded, err := dec.DecodeAll(payload, dst[:0])
			zstdDecoderPool.Put(dec)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			if uint32(len(decoded)) != h.rawLen {
				return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
			}
			raw = decoded
		default:
			return nil, fmt.Errorf("%w: compressed block in %s segment", ErrCorrupt, c)
		}
	}
	if xxhash.Sum64(raw) != h.checksum {
		return nil, fmt.Errorf("%w: block checksum mismatch", ErrCorrupt)
	}
	return raw, nil
}
