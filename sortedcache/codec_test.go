package sortedcache

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("row1\x00\x01fi\x00FIELD\x00\x01"), 512)
	random := make([]byte, 4096)
	_, _ = rand.Read(random)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			for _, raw := range [][]byte{compressible, random} {
				framed, err := appendBlock(nil, raw, c)
				require.NoError(t, err)

				h := parseBlockHeader(framed)
				require.Equal(t, uint32(len(raw)), h.rawLen)
				payload := framed[blockHeaderSize:]
				require.Len(t, payload, h.payloadLen())

				if c == CompressionNone || bytes.Equal(raw, random) {
					assert.Zero(t, h.storedLen, "incompressible blocks are stored raw")
				}

				got, err := decodeBlock(nil, h, payload, c)
				require.NoError(t, err)
				assert.Equal(t, raw, got)
			}
		})
	}
}

func TestBlockChecksumMismatch(t *testing.T) {
	framed, err := appendBlock(nil, []byte("abcdefgh"), CompressionNone)
	require.NoError(t, err)
	framed[len(framed)-1] ^= 0xFF

	_, err = decodeBlock(nil, parseBlockHeader(framed), framed[blockHeaderSize:], CompressionNone)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, " zstd ": CompressionZstd} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}
