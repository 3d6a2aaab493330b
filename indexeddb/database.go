// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package indexeddb

import (
	"fmt"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/winutil"
	"github.com/dissect-go/dissect/leveldb"
)

// Global metadata key type bytes (IndexedDBMetaDataKey::Type), scoped
// under KeyPrefix{0,0,0}.
const globalMetaDatabaseName = 3

// Per-database metadata key type byte (ObjectStoreMetaDataKey),
// scoped under KeyPrefix{dbID,0,0}.
const dbMetaObjectStoreMetaData = 50

// Object store metadata sub-type for the store's display name.
const storeMetaName = 0

// Database is one IndexedDB database discovered via global metadata.
type Database struct {
	ID   int64
	Name string
}

// ObjectStore is one object store discovered under a Database's
// per-database metadata records.
type ObjectStore struct {
	ID   int64
	Name string
}

// Record is a fully decoded object store row: its IndexedDB key, its
// deserialized value, and the sequence it was written at (so callers
// doing forensic salvage can see superseded versions too).
type Record struct {
	Key      Key
	Value    Value
	Sequence uint64
	State    leveldb.State
}

// ListDatabases scans src's global metadata for DatabaseNameKey
// records and returns every database they name.
func ListDatabases(src leveldb.Source) ([]Database, error) {
	var out []Database
	var decodeErr error

	src.Records(func(r leveldb.Record) bool {
		prefix, n, err := ParseKeyPrefix(r.Key)
		if err != nil || prefix != (KeyPrefix{}) {
			return true
		}
		rest := r.Key[n:]
		if len(rest) < 1 || rest[0] != globalMetaDatabaseName {
			return true
		}
		rest = rest[1:]

		// origin string, then database name string, both
		// length-prefixed UTF-16BE the way IndexedDBKey strings are.
		_, consumed, err := decodeLengthPrefixedString(rest)
		if err != nil {
			return true
		}
		rest = rest[consumed:]
		name, _, err := decodeLengthPrefixedString(rest)
		if err != nil {
			return true
		}

		id, _, err := decodeVarint(r.Value)
		if err != nil {
			return true
		}

		out = append(out, Database{ID: id, Name: name})
		return true
	})

	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// ListObjectStores scans src's per-database metadata for a database's
// object stores.
func ListObjectStores(src leveldb.Source, dbID int64) ([]ObjectStore, error) {
	byID := make(map[int64]*ObjectStore)
	var order []int64

	src.Records(func(r leveldb.Record) bool {
		prefix, n, err := ParseKeyPrefix(r.Key)
		if err != nil || prefix.DatabaseID != dbID || prefix.ObjectStoreID != 0 || prefix.IndexID != 0 {
			return true
		}
		rest := r.Key[n:]
		if len(rest) < 1 || rest[0] != dbMetaObjectStoreMetaData {
			return true
		}
		rest = rest[1:]

		storeID, consumed, err := decodeVarint(rest)
		if err != nil {
			return true
		}
		rest = rest[consumed:]
		if len(rest) < 1 || rest[0] != storeMetaName {
			return true
		}
		rest = rest[1:]

		name, _, err := decodeLengthPrefixedString(rest)
		if err != nil {
			return true
		}

		if _, ok := byID[storeID]; !ok {
			order = append(order, storeID)
		}
		byID[storeID] = &ObjectStore{ID: storeID, Name: name}
		return true
	})

	out := make([]ObjectStore, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// ObjectStoreRecords iterates the data rows (index_id ==
// ObjectStoreDataIndexID) of one object store, decoding each row's
// key and value. A row whose key fails to decode is skipped rather
// than aborting the whole store, mirroring the surrounding LevelDB
// surfacer's log-and-skip policy; a row whose value fails to decode
// is kept with a ValueRaw value holding the undecoded bytes.
func ObjectStoreRecords(src leveldb.Source, dbID, storeID int64) []Record {
	var out []Record

	src.Records(func(r leveldb.Record) bool {
		prefix, n, err := ParseKeyPrefix(r.Key)
		if err != nil || prefix.DatabaseID != dbID || prefix.ObjectStoreID != storeID || !prefix.IsObjectStoreData() {
			return true
		}

		key, _, err := DecodeKey(r.Key[n:])
		if err != nil {
			return true
		}

		val, err := DecodeValue(r.Value)
		if err != nil {
			val = Value{Kind: ValueRaw, Raw: r.Value}
		}

		out = append(out, Record{Key: key, Value: val, Sequence: r.Sequence, State: r.State})
		return true
	})

	return out
}

// decodeLengthPrefixedString reads a varint character count followed
// by that many UTF-16BE code units, the format IndexedDB metadata
// keys use for origin/database/object-store names.
func decodeLengthPrefixedString(data []byte) (string, int, error) {
	n, lenBytes, err := decodeVarint(data)
	if err != nil {
		return "", 0, err
	}
	off := lenBytes
	byteLen := int(n) * 2
	if len(data) < off+byteLen {
		return "", 0, fmt.Errorf("%w: truncated IndexedDB metadata string", dberrors.ErrTruncated)
	}
	s, err := winutil.DecodeUTF16BE(data[off : off+byteLen])
	if err != nil {
		return "", 0, err
	}
	return s, off + byteLen, nil
}
