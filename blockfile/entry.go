// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/winutil"
)

// EntryStore is a decoded cache entry header: a fixed 256-byte
// EntryStore record, always allocated out of the BLOCK_256 block
// file regardless of how large its data streams are.
type EntryStore struct {
	Hash          uint32
	Next          CacheAddress
	RankingsNode  CacheAddress
	ReuseCount    int32
	RefetchCount  int32
	State         int32
	CreationTime  int64
	KeyLen        int32
	LongKey       CacheAddress
	DataSize      [4]int32
	DataAddr      [4]CacheAddress
	Flags         int32
	SelfHash      uint32
	InlineKey     []byte
}

// parseEntryStore decodes the fixed-layout 256-byte EntryStore record
// at the front of data.
func parseEntryStore(data []byte) (EntryStore, error) {
	if len(data) < entryStoreSize {
		return EntryStore{}, fmt.Errorf("%w: EntryStore record truncated", dberrors.ErrTruncated)
	}

	e := EntryStore{
		Hash:         binary.LittleEndian.Uint32(data[0:4]),
		Next:         DecodeAddress(binary.LittleEndian.Uint32(data[4:8])),
		RankingsNode: DecodeAddress(binary.LittleEndian.Uint32(data[8:12])),
		ReuseCount:   int32(binary.LittleEndian.Uint32(data[12:16])),
		RefetchCount: int32(binary.LittleEndian.Uint32(data[16:20])),
		State:        int32(binary.LittleEndian.Uint32(data[20:24])),
		CreationTime: int64(binary.LittleEndian.Uint64(data[24:32])),
		KeyLen:       int32(binary.LittleEndian.Uint32(data[32:36])),
		LongKey:      DecodeAddress(binary.LittleEndian.Uint32(data[36:40])),
	}
	for i := 0; i < 4; i++ {
		e.DataSize[i] = int32(binary.LittleEndian.Uint32(data[40+4*i : 44+4*i]))
	}
	for i := 0; i < 4; i++ {
		e.DataAddr[i] = DecodeAddress(binary.LittleEndian.Uint32(data[56+4*i : 60+4*i]))
	}
	e.Flags = int32(binary.LittleEndian.Uint32(data[72:76]))
	e.SelfHash = binary.LittleEndian.Uint32(data[entryStoreKeyOffset-4 : entryStoreKeyOffset])
	e.InlineKey = data[entryStoreKeyOffset:entryStoreSize]

	return e, nil
}

// Entry is a fully resolved cache entry: its header plus the means to
// read its key and stream payloads from the owning DiskCache.
type Entry struct {
	cache *DiskCache
	store EntryStore
	addr  CacheAddress
}

// Address returns the CacheAddress this entry was read from.
func (e *Entry) Address() CacheAddress { return e.addr }

// CreationTime returns the entry's creation time as a WebKit
// timestamp.
func (e *Entry) CreationTime() time.Time {
	return winutil.WebKitTimestamp(e.store.CreationTime)
}

// State returns the entry's EntryStore state (normal/evicted/doomed).
func (e *Entry) State() int32 { return e.store.State }

// Key decodes the entry's request key: either the inline 96-byte key
// field, or (when KeyLen exceeds it) the externally-stored long key.
func (e *Entry) Key() (string, error) {
	if e.store.LongKey.Initialized {
		raw, err := e.cache.readAddress(e.store.LongKey, int(e.store.KeyLen))
		if err != nil {
			return "", fmt.Errorf("reading long key: %w", err)
		}
		return string(raw), nil
	}

	n := bytes.IndexByte(e.store.InlineKey, 0)
	if n < 0 {
		n = len(e.store.InlineKey)
	}
	return string(e.store.InlineKey[:n]), nil
}

// Next returns the next entry in this hash bucket's collision chain,
// or (nil, nil) when this entry is the chain's tail.
func (e *Entry) Next() (*Entry, error) {
	if !e.store.Next.Initialized {
		return nil, nil
	}
	return e.cache.entryAt(e.store.Next)
}

// rawStream reads stream i's raw (still possibly compressed) bytes.
func (e *Entry) rawStream(i int) ([]byte, error) {
	if i < 0 || i > 3 {
		return nil, fmt.Errorf("%w: stream index %d", dberrors.ErrInvalidArgument, i)
	}
	size := int(e.store.DataSize[i])
	if size == 0 {
		return nil, nil
	}
	return e.cache.readAddress(e.store.DataAddr[i], size)
}

// Metadata returns stream 0's raw bytes: the cached HTTP response
// headers / metadata blob.
func (e *Entry) Metadata() ([]byte, error) {
	return e.rawStream(0)
}

// Data returns stream 1's payload, decompressed according to the
// content-encoding sniffed from its magic bytes or, failing that, the
// metadata blob's "content-encoding" header text.
func (e *Entry) Data() ([]byte, error) {
	raw, err := e.rawStream(1)
	if err != nil || raw == nil {
		return raw, err
	}
	meta, _ := e.Metadata()
	return decompress(raw, meta)
}
