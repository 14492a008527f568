package key

import (
	"encoding/binary"
	"errors"
)

// ErrMalformed is returned when decoding bytes that were not produced by Encode.
var ErrMalformed = errors.New("key: malformed encoding")

const (
	escapeByte = 0x00
	escapedNul = 0xFF
	terminator = 0x01
)

// Encode returns an order-preserving byte encoding of k:
// bytes.Compare(Encode(a), Encode(b)) == Compare(a, b).
//
// Each string component has 0x00 escaped as 0x00 0xFF and is terminated by
// 0x00 0x01. The timestamp follows as 8 big-endian bytes, inverted so newer
// versions sort first.
func Encode(k Key) []byte {
	return AppendEncoded(make([]byte, 0, len(k.Row)+len(k.Family)+len(k.Qualifier)+14), k)
}

// AppendEncoded appends the encoding of k to dst.
func AppendEncoded(dst []byte, k Key) []byte {
	dst = appendComponent(dst, k.Row)
	dst = appendComponent(dst, k.Family)
	dst = appendComponent(dst, k.Qualifier)
	return binary.BigEndian.AppendUint64(dst, ^(uint64(k.Timestamp) ^ (1 << 63)))
}

// EncodeRowPrefix returns the encoding prefix shared by every key of row.
func EncodeRowPrefix(row string) []byte {
	return appendComponent(nil, row)
}

func appendComponent(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == escapeByte {
			dst = append(dst, escapeByte, escapedNul)
			continue
		}
		dst = append(dst, s[i])
	}
	return append(dst, escapeByte, terminator)
}

// Decode reverses Encode.
func Decode(b []byte) (Key, error) {
	var (
		k    Key
		err  error
		rest = b
	)
	if k.Row, rest, err = decodeComponent(rest); err != nil {
		return Key{}, err
	}
	if k.Family, rest, err = decodeComponent(rest); err != nil {
		return Key{}, err
	}
	if k.Qualifier, rest, err = decodeComponent(rest); err != nil {
		return Key{}, err
	}
	if len(rest) != 8 {
		return Key{}, ErrMalformed
	}
	k.Timestamp = int64(^binary.BigEndian.Uint64(rest) ^ (1 << 63))
	return k, nil
}

func decodeComponent(b []byte) (string, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return "", nil, ErrMalformed
		}
		switch b[i+1] {
		case escapedNul:
			out = append(out, escapeByte)
			i++
		case terminator:
			return string(out), b[i+2:], nil
		default:
			return "", nil, ErrMalformed
		}
	}
	return "", nil, ErrMalformed
}

// EncodedBound returns the encoded key bounds of r suitable for half-open
// [lower, upper) iteration. A nil slice means unbounded.
func EncodedBound(r Range) (lower, upper []byte) {
	if !r.StartUnbounded {
		lower = Encode(r.Start)
		if !r.StartInclusive {
			lower = append(lower, 0x00)
		}
	}
	if !r.EndUnbounded {
		upper = Encode(r.End)
		if r.EndInclusive {
			upper = append(upper, 0x00)
		}
	}
	return lower, upper
}
