// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package simplecache reads the Chromium Disk Cache "Simple Cache"
// backend: a flat directory of one data file per key plus a
// the-real-index summary, the backend that replaced the blockfile
// format (see the sibling blockfile package) on platforms where a
// B-tree-free on-disk layout is cheaper to maintain.
package simplecache

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/winutil"
)

const (
	indexMagic      uint64 = 0x656E74657220796F
	indexHeaderSize        = 8 + 4 + 4 // magic, version, crc32
	indexEntrySize          = 24       // hash, last_used, size, in_memory_data
)

// IndexHeader is the fixed header of "index-dir/the-real-index".
type IndexHeader struct {
	Magic   uint64
	Version uint32
	CRC32   uint32
}

// IndexTableEntry is one the-real-index summary row: a quick lookup
// of a cached entry's key hash, last-used time, and on-disk size
// without opening its data file.
type IndexTableEntry struct {
	Hash          uint64
	LastUsed      int64
	Size          int32
	InMemoryData  int32
}

// LastUsedTime returns the entry's last-used time as a WebKit
// timestamp.
func (e IndexTableEntry) LastUsedTime() time.Time {
	return winutil.WebKitTimestamp(e.LastUsed)
}

// ParseIndex decodes "the-real-index": a fixed header followed by a
// packed array of IndexTableEntry running to the end of data.
func ParseIndex(data []byte) (IndexHeader, []IndexTableEntry, error) {
	if len(data) < indexHeaderSize {
		return IndexHeader{}, nil, fmt.Errorf("%w: simple cache index header truncated", dberrors.ErrTruncated)
	}

	h := IndexHeader{
		Magic:   binary.LittleEndian.Uint64(data[0:8]),
		Version: binary.LittleEndian.Uint32(data[8:12]),
		CRC32:   binary.LittleEndian.Uint32(data[12:16]),
	}
	if h.Magic != indexMagic {
		return IndexHeader{}, nil, fmt.Errorf("%w: simple cache index magic 0x%016x", dberrors.ErrInvalidMagic, h.Magic)
	}

	rest := data[indexHeaderSize:]
	n := len(rest) / indexEntrySize
	entries := make([]IndexTableEntry, n)
	for i := 0; i < n; i++ {
		row := rest[i*indexEntrySize:]
		entries[i] = IndexTableEntry{
			Hash:         binary.LittleEndian.Uint64(row[0:8]),
			LastUsed:     int64(binary.LittleEndian.Uint64(row[8:16])),
			Size:         int32(binary.LittleEndian.Uint32(row[16:20])),
			InMemoryData: int32(binary.LittleEndian.Uint32(row[20:24])),
		}
	}

	return h, entries, nil
}

// LastUsed returns the cache's overall last-used timestamp: the
// last_used field of the index's final entry.
func LastUsed(entries []IndexTableEntry) (time.Time, bool) {
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[len(entries)-1].LastUsedTime(), true
}
