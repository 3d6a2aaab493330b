// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package esedb declares the interfaces an Extensible Storage Engine
// (ESE) page/B-tree decoder must provide. The ESE decoder itself -
// parsing database pages into named-column, ordered-index tables - is
// an external collaborator out of this module's scope (spec.md §1);
// this package only describes the shape of capability the NTDS reader
// consumes, plus a small in-memory reference implementation used to
// build test fixtures that stand in for a real NTDS.dit.
package esedb

import "errors"

// ErrNoSuchRecord is returned by Cursor.Find when no record matches
// the requested key, and by Cursor.Next/Record when a cursor has run
// past the end of its index.
var ErrNoSuchRecord = errors.New("esedb: no such record")

// Row is a single ESE record: column name to decoded storage value.
// Values are Go-native: int32/int64 for integers, []byte for binary
// columns, string for text columns, or []any for multivalued columns.
type Row map[string]any

// Get returns the value stored in the named column, or nil if absent.
func (r Row) Get(column string) any {
	if r == nil {
		return nil
	}
	return r[column]
}

// Database is a single opened ESE file, exposing its tables by name.
type Database interface {
	Table(name string) (Table, error)
}

// Table is one ESE table (e.g. "datatable", "link_table", "sd_table").
type Table interface {
	Name() string
	Index(name string) (Index, error)
	// FindIndex returns the first index covering exactly the given
	// ordered column list, or nil if none exists.
	FindIndex(columns []string) (Index, error)
}

// Index is an ordered B-tree index over one or more columns of a
// Table, supporting point and range queries via a Cursor.
type Index interface {
	Name() string
	Columns() []string
	Cursor() Cursor
}

// Cursor is a single-owner, non-reentrant iterator over an Index.
// Every Cursor is positioned at a record (or past-the-end) after any
// Seek/Find/Next call.
type Cursor interface {
	// Seek positions the cursor at the first record whose key is >=
	// the given composite key (as many columns as are relevant).
	Seek(key ...any) error
	// Find is Seek followed by an exact-match check; it returns
	// ErrNoSuchRecord when the seeked record's key does not exactly
	// equal the requested key.
	Find(key ...any) (Row, error)
	// FindAll returns every record whose indexed column values equal
	// columnValues (keyed by column name), in index order.
	FindAll(columnValues map[string]any) ([]Row, error)
	// Record returns the record at the cursor's current position, or
	// ErrNoSuchRecord if the cursor is past the end of the index.
	Record() (Row, error)
	// Next advances the cursor by one record and returns it.
	Next() (Row, error)
	// Reset returns the cursor to its pre-seek, start-of-index state.
	Reset()
}
