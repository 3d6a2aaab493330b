// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockfile

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/winutil"
)

const (
	indexMagic   uint32 = 0xC103CAC3
	indexVersion uint32 = 0x00030000

	blockMagic   uint32 = 0xC104CAC3
	blockVersion uint32 = 0x00020000

	// kBlockHeaderSize is the fixed size of a block file's header
	// region; block N's payload begins at kBlockHeaderSize +
	// entrySize*startBlock.
	kBlockHeaderSize = 8192

	// entryStoreSize is the fixed on-disk size of an EntryStore
	// record (the BLOCK_256 block size it is always allocated in).
	entryStoreSize = 256
	// entryStoreKeyOffset is the byte offset of the inline key field
	// within an EntryStore record.
	entryStoreKeyOffset = 160
)

// IndexHeader is the fixed header of a blockfile cache's "index" file.
type IndexHeader struct {
	Magic        uint32
	Version      uint32
	NumEntries   int32
	NumBytes     int64
	LastFile     int32
	ThisID       int32
	Stats        CacheAddress
	TableLen     int32
	CrashFlag    int32
	CreateTime   int64
}

// ParseIndexHeader decodes the fixed-layout header at the start of a
// blockfile cache's "index" file and validates its magic/version.
// Trailing LruData/padding fields of the real Chromium struct are not
// modeled since nothing in this reader consumes them.
func ParseIndexHeader(data []byte) (IndexHeader, error) {
	if len(data) < 44 {
		return IndexHeader{}, fmt.Errorf("%w: index header truncated", dberrors.ErrTruncated)
	}

	h := IndexHeader{
		Magic:      binary.LittleEndian.Uint32(data[0:4]),
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		NumEntries: int32(binary.LittleEndian.Uint32(data[8:12])),
		NumBytes:   int64(int32(binary.LittleEndian.Uint32(data[12:16]))),
		LastFile:   int32(binary.LittleEndian.Uint32(data[16:20])),
		ThisID:     int32(binary.LittleEndian.Uint32(data[20:24])),
		Stats:      DecodeAddress(binary.LittleEndian.Uint32(data[24:28])),
		TableLen:   int32(binary.LittleEndian.Uint32(data[28:32])),
		CrashFlag:  int32(binary.LittleEndian.Uint32(data[32:36])),
	}
	h.CreateTime = int64(binary.LittleEndian.Uint64(data[36:44]))

	if h.Magic != indexMagic {
		return IndexHeader{}, fmt.Errorf("%w: index magic 0x%08x", dberrors.ErrInvalidMagic, h.Magic)
	}
	if h.Version != indexVersion {
		return IndexHeader{}, fmt.Errorf("%w: index version 0x%08x", dberrors.ErrUnsupportedVersion, h.Version)
	}

	return h, nil
}

// CreationTime returns the cache's creation time as a WebKit
// timestamp.
func (h IndexHeader) CreationTime() time.Time {
	return winutil.WebKitTimestamp(h.CreateTime)
}

// BlockFileHeader is the fixed header of a shared "data_N" block
// file.
type BlockFileHeader struct {
	Magic      uint32
	Version    uint32
	ThisFile   int16
	NextFile   int16
	EntrySize  int32
	NumEntries int32
	MaxEntries int32
}

// ParseBlockFileHeader decodes and validates a data_N block file's
// header.
func ParseBlockFileHeader(data []byte) (BlockFileHeader, error) {
	if len(data) < 24 {
		return BlockFileHeader{}, fmt.Errorf("%w: block file header truncated", dberrors.ErrTruncated)
	}

	h := BlockFileHeader{
		Magic:      binary.LittleEndian.Uint32(data[0:4]),
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		ThisFile:   int16(binary.LittleEndian.Uint16(data[8:10])),
		NextFile:   int16(binary.LittleEndian.Uint16(data[10:12])),
		EntrySize:  int32(binary.LittleEndian.Uint32(data[12:16])),
		NumEntries: int32(binary.LittleEndian.Uint32(data[16:20])),
		MaxEntries: int32(binary.LittleEndian.Uint32(data[20:24])),
	}

	if h.Magic != blockMagic {
		return BlockFileHeader{}, fmt.Errorf("%w: block file magic 0x%08x", dberrors.ErrInvalidMagic, h.Magic)
	}
	if h.Version&0xFFFF0000 != blockVersion&0xFFFF0000 {
		return BlockFileHeader{}, fmt.Errorf("%w: block file version 0x%08x", dberrors.ErrUnsupportedVersion, h.Version)
	}

	return h, nil
}
