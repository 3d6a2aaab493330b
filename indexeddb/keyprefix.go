// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package indexeddb decodes the Chromium IndexedDB backing store as
// it is laid out inside a LevelDB directory: the per-record
// KeyPrefix, the tagged-union IndexedDBKey, and the V8-serialized
// IndexedDBValue.
package indexeddb

import (
	"fmt"

	"github.com/dissect-go/dissect/dberrors"
)

// ObjectStoreDataIndexID is the reserved index_id a KeyPrefix carries
// for records holding an object store's actual row data (as opposed
// to one of its secondary indexes or metadata).
const ObjectStoreDataIndexID = 1

// KeyPrefix identifies which database, object store, and index a
// LevelDB record belongs to. It is packed into the record key's
// leading bytes: byte 0 holds three length-minus-one fields (3+3+2
// bits), followed by that many little-endian bytes for each of
// database_id, object_store_id, and index_id in turn.
type KeyPrefix struct {
	DatabaseID    int64
	ObjectStoreID int64
	IndexID       int64
}

// ParseKeyPrefix decodes the KeyPrefix at the start of data and
// returns it along with the number of bytes it consumed, so the
// caller can continue decoding whatever follows (an IndexedDBKey, a
// metadata sub-tag, ...).
func ParseKeyPrefix(data []byte) (KeyPrefix, int, error) {
	if len(data) < 1 {
		return KeyPrefix{}, 0, fmt.Errorf("%w: empty IndexedDB record key", dberrors.ErrTruncated)
	}

	b := data[0]
	dbLen := int((b>>5)&0x7) + 1
	storeLen := int((b>>2)&0x7) + 1
	indexLen := int(b&0x3) + 1

	need := 1 + dbLen + storeLen + indexLen
	if len(data) < need {
		return KeyPrefix{}, 0, fmt.Errorf("%w: IndexedDB KeyPrefix truncated", dberrors.ErrTruncated)
	}

	off := 1
	dbID := leUint(data[off : off+dbLen])
	off += dbLen
	storeID := leUint(data[off : off+storeLen])
	off += storeLen
	indexID := leUint(data[off : off+indexLen])
	off += indexLen

	return KeyPrefix{
		DatabaseID:    int64(dbID),
		ObjectStoreID: int64(storeID),
		IndexID:       int64(indexID),
	}, off, nil
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// IsObjectStoreData reports whether p addresses an object store's own
// row data rather than a secondary index or store/database metadata.
func (p KeyPrefix) IsObjectStoreData() bool {
	return p.IndexID == ObjectStoreDataIndexID
}
