// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package leveldb declares the interface a LevelDB block/log decoder
// must provide. Decoding the on-disk block format of .ldb tables and
// the record framing of .log write-ahead logs - turning a directory
// of files into a flat stream of (key, value, sequence, state)
// records - is an external collaborator out of this module's scope
// (spec.md §1); this package only describes the shape of capability
// the Chromium LocalStorage/SessionStorage/IndexedDB readers consume,
// plus a small in-memory reference implementation used to build test
// fixtures that stand in for a real LevelDB directory.
package leveldb

import "sort"

// State is the type byte a LevelDB internal key carries: whether the
// record is a live value or a tombstone for a deleted key.
type State int

const (
	// StateLive is a normal value record (internal kTypeValue).
	StateLive State = iota
	// StateDeleted is a tombstone (internal kTypeDeletion): the key
	// existed but was removed by the time this record was written.
	StateDeleted
	// StatePriorVersion marks a record that is neither the newest
	// live value nor the newest tombstone for its key: an older
	// version retained for forensic salvage rather than overwritten
	// on disk the way a live database would compact it away.
	StatePriorVersion
)

// Record is one logical entry surfaced from a .ldb table or .log
// write-ahead log: a key/value pair tagged with the sequence number
// it was written at and whether it is still logically live.
type Record struct {
	Key      []byte
	Value    []byte
	Sequence uint64
	State    State
}

// Source is an opened LevelDB directory capable of yielding every
// record across every manifest-listed table and every write-ahead
// log, newest-first (the highest sequence number for a given key
// comes first). Implementations are expected to include overwritten
// and deleted versions of a key rather than compacting them away,
// since this reader's purpose is forensic salvage.
type Source interface {
	Records(yield func(Record) bool)
}

// All drains src into a slice, for callers that don't need streaming.
func All(src Source) []Record {
	var out []Record
	src.Records(func(r Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// MemSource is an in-memory Source used to build fixtures for tests:
// records may be supplied in any order and are yielded newest-first,
// exactly as a real decoder would yield them.
type MemSource struct {
	records []Record
}

// NewMemSource builds a MemSource and sorts its records newest-first
// by sequence, descending, stably preserving the caller's tie-break
// order for equal sequences.
func NewMemSource(records []Record) *MemSource {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence > out[j].Sequence
	})
	return &MemSource{records: out}
}

// Records implements Source.
func (m *MemSource) Records(yield func(Record) bool) {
	for _, r := range m.records {
		if !yield(r) {
			return
		}
	}
}

// LatestPerKey reduces records to the single newest record (by
// sequence) observed for each distinct key, preserving newest-first
// overall order. This mirrors how LocalStorage/SessionStorage/
// IndexedDB read their *current* state while the raw Source stream
// keeps every version for salvage.
func LatestPerKey(records []Record) []Record {
	seen := make(map[string]bool, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		k := string(r.Key)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
