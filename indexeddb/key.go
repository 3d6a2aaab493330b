// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package indexeddb

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/winutil"
)

// KeyType tags the variant of a Key's encoded union.
type KeyType int

const (
	KeyTypeNull KeyType = iota
	KeyTypeString
	KeyTypeDate
	KeyTypeNumber
	KeyTypeArray
	KeyTypeMinKey
	KeyTypeBinary
)

// Wire tag bytes for an encoded IndexedDBKey.
const (
	keyTagNull   = 0
	keyTagString = 1
	keyTagDate   = 2
	keyTagNumber = 3
	keyTagArray  = 4
	keyTagMinKey = 5
	keyTagBinary = 6
)

// Key is a decoded IndexedDBKey: a tagged union mirroring the variants
// IndexedDB allows as object store keys and index terms.
type Key struct {
	Type   KeyType
	Str    string
	Date   time.Time
	Number float64
	Array  []Key
	Binary []byte
}

// String renders k the way a caller inspecting a decoded record would
// want to see it: the key's own type-appropriate textual form.
func (k Key) String() string {
	switch k.Type {
	case KeyTypeNull:
		return "null"
	case KeyTypeMinKey:
		return "minkey"
	case KeyTypeString:
		return k.Str
	case KeyTypeDate:
		return k.Date.Format(time.RFC3339)
	case KeyTypeNumber:
		return fmt.Sprintf("%g", k.Number)
	case KeyTypeBinary:
		return fmt.Sprintf("%x", k.Binary)
	case KeyTypeArray:
		return fmt.Sprintf("%v", k.Array)
	default:
		return "<unknown key>"
	}
}

// DecodeKey decodes one IndexedDBKey from the front of data and
// returns it with the number of bytes consumed.
func DecodeKey(data []byte) (Key, int, error) {
	if len(data) < 1 {
		return Key{}, 0, fmt.Errorf("%w: empty IndexedDB key", dberrors.ErrTruncated)
	}

	switch data[0] {
	case keyTagNull:
		return Key{Type: KeyTypeNull}, 1, nil
	case keyTagMinKey:
		return Key{Type: KeyTypeMinKey}, 1, nil

	case keyTagNumber:
		if len(data) < 9 {
			return Key{}, 0, fmt.Errorf("%w: truncated IndexedDB number key", dberrors.ErrTruncated)
		}
		bits := binary.LittleEndian.Uint64(data[1:9])
		return Key{Type: KeyTypeNumber, Number: math.Float64frombits(bits)}, 9, nil

	case keyTagDate:
		if len(data) < 9 {
			return Key{}, 0, fmt.Errorf("%w: truncated IndexedDB date key", dberrors.ErrTruncated)
		}
		bits := binary.LittleEndian.Uint64(data[1:9])
		ms := math.Float64frombits(bits)
		t := time.Unix(0, int64(ms)*int64(time.Millisecond)).UTC()
		return Key{Type: KeyTypeDate, Date: t}, 9, nil

	case keyTagString:
		n, lenBytes, err := decodeVarint(data[1:])
		if err != nil {
			return Key{}, 0, err
		}
		off := 1 + lenBytes
		byteLen := int(n) * 2
		if len(data) < off+byteLen {
			return Key{}, 0, fmt.Errorf("%w: truncated IndexedDB string key", dberrors.ErrTruncated)
		}
		s, err := winutil.DecodeUTF16BE(data[off : off+byteLen])
		if err != nil {
			return Key{}, 0, fmt.Errorf("decoding IndexedDB string key: %w", err)
		}
		return Key{Type: KeyTypeString, Str: s}, off + byteLen, nil

	case keyTagBinary:
		n, lenBytes, err := decodeVarint(data[1:])
		if err != nil {
			return Key{}, 0, err
		}
		off := 1 + lenBytes
		if len(data) < off+int(n) {
			return Key{}, 0, fmt.Errorf("%w: truncated IndexedDB binary key", dberrors.ErrTruncated)
		}
		b := make([]byte, n)
		copy(b, data[off:off+int(n)])
		return Key{Type: KeyTypeBinary, Binary: b}, off + int(n), nil

	case keyTagArray:
		n, lenBytes, err := decodeVarint(data[1:])
		if err != nil {
			return Key{}, 0, err
		}
		off := 1 + lenBytes
		elems := make([]Key, 0, n)
		for i := int64(0); i < n; i++ {
			elem, consumed, err := DecodeKey(data[off:])
			if err != nil {
				return Key{}, 0, fmt.Errorf("decoding IndexedDB array key element %d: %w", i, err)
			}
			elems = append(elems, elem)
			off += consumed
		}
		return Key{Type: KeyTypeArray, Array: elems}, off, nil

	default:
		return Key{}, 0, fmt.Errorf("%w: unrecognized IndexedDB key tag 0x%02x", dberrors.ErrInvalidFormat, data[0])
	}
}

// decodeVarint reads a LevelDB-style base-128 varint (7 data bits per
// byte, continuation in the high bit, least-significant group first)
// and returns its value and the number of bytes it occupied.
func decodeVarint(data []byte) (int64, int, error) {
	var result int64
	for i := 0; i < len(data); i++ {
		b := data[i]
		result |= int64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated varint", dberrors.ErrTruncated)
}
