// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package esedb

import (
	"fmt"
	"sort"
)

// MemDatabase is an in-memory Database used to build fixtures for
// tests and for any caller that already has decoded ESE rows (e.g.
// from a JSON export) rather than a raw .dit file. It is not a
// general-purpose ESE decoder: callers needing one must supply their
// own Database implementation over a real page-level reader.
type MemDatabase struct {
	tables map[string]*MemTable
}

// NewMemDatabase returns an empty in-memory database.
func NewMemDatabase() *MemDatabase {
	return &MemDatabase{tables: make(map[string]*MemTable)}
}

// Table implements Database.
func (d *MemDatabase) Table(name string) (Table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("esedb: no such table %q", name)
	}
	return t, nil
}

// AddTable registers a new empty table and returns it for population.
func (d *MemDatabase) AddTable(name string) *MemTable {
	t := &MemTable{name: name, indexes: make(map[string]*MemIndex)}
	d.tables[name] = t
	return t
}

// MemTable is an in-memory Table: an insertion-ordered slice of rows,
// plus a set of named secondary indexes each sorted on its own key.
type MemTable struct {
	name    string
	rows    []Row
	indexes map[string]*MemIndex
}

// Name implements Table.
func (t *MemTable) Name() string { return t.name }

// Insert appends a row to the table only; existing indexes are not
// updated. Indexes must be (re)built via BuildIndex after all rows are
// inserted, since MemIndex sorts eagerly.
func (t *MemTable) Insert(row Row) {
	t.rows = append(t.rows, row)
}

// BuildIndex creates (or rebuilds) a named index sorted ascending on
// the given columns.
func (t *MemTable) BuildIndex(name string, columns ...string) *MemIndex {
	rows := make([]Row, len(t.rows))
	copy(rows, t.rows)

	sort.SliceStable(rows, func(i, j int) bool {
		return lessKey(keyOf(rows[i], columns), keyOf(rows[j], columns))
	})

	idx := &MemIndex{name: name, columns: columns, rows: rows}
	t.indexes[name] = idx
	return idx
}

// Index implements Table.
func (t *MemTable) Index(name string) (Index, error) {
	idx, ok := t.indexes[name]
	if !ok {
		return nil, fmt.Errorf("esedb: table %q has no index %q", t.name, name)
	}
	return idx, nil
}

// FindIndex implements Table.
func (t *MemTable) FindIndex(columns []string) (Index, error) {
	for _, idx := range t.indexes {
		if sameColumns(idx.columns, columns) {
			return idx, nil
		}
	}
	return nil, fmt.Errorf("esedb: table %q has no index over %v", t.name, columns)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func keyOf(row Row, columns []string) []any {
	key := make([]any, len(columns))
	for i, c := range columns {
		key[i] = row.Get(c)
	}
	return key
}

// lessKey provides a total order over heterogeneous composite keys
// sufficient for test fixtures: it compares int64-like, string, and
// []byte values component-wise, treating nil as less than any value.
func lessKey(a, b []any) bool {
	for i := range a {
		c := compareValue(a[i], b[i])
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func compareValue(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	if aok && bok {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}

	as := toComparableString(a)
	bs := toComparableString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func toComparableString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// MemIndex is an in-memory Index: a sorted slice of rows plus the
// columns it was built over.
type MemIndex struct {
	name    string
	columns []string
	rows    []Row
}

// Name implements Index.
func (i *MemIndex) Name() string { return i.name }

// Columns implements Index.
func (i *MemIndex) Columns() []string { return i.columns }

// Cursor implements Index.
func (i *MemIndex) Cursor() Cursor {
	return &memCursor{idx: i, pos: -1}
}

type memCursor struct {
	idx *MemIndex
	pos int
}

func (c *memCursor) Reset() { c.pos = -1 }

func (c *memCursor) Seek(key ...any) error {
	n := sort.Search(len(c.idx.rows), func(i int) bool {
		return !lessKey(keyOf(c.idx.rows[i], c.idx.columns), key)
	})
	c.pos = n
	return nil
}

func (c *memCursor) Find(key ...any) (Row, error) {
	if err := c.Seek(key...); err != nil {
		return nil, err
	}
	row, err := c.Record()
	if err != nil {
		return nil, err
	}
	if !lessKey(key, keyOf(row, c.idx.columns)) && !lessKey(keyOf(row, c.idx.columns), key) {
		return row, nil
	}
	return nil, ErrNoSuchRecord
}

func (c *memCursor) FindAll(columnValues map[string]any) ([]Row, error) {
	var out []Row
	for _, row := range c.idx.rows {
		match := true
		for col, want := range columnValues {
			if !valueMatchesColumn(row.Get(col), want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
	}
	return out, nil
}

// valueMatchesColumn reports whether a stored column value equals want,
// treating a multivalued column (NTDS stores e.g. objectClass as a list
// of governed class ids) as matching if any element equals want - the
// same membership semantics a real ESE multivalued-column index gives a
// point lookup.
func valueMatchesColumn(have, want any) bool {
	switch v := have.(type) {
	case []int32:
		for _, e := range v {
			if compareValue(e, want) == 0 {
				return true
			}
		}
		return false
	case []any:
		for _, e := range v {
			if compareValue(e, want) == 0 {
				return true
			}
		}
		return false
	default:
		return compareValue(have, want) == 0
	}
}

func (c *memCursor) Record() (Row, error) {
	if c.pos < 0 || c.pos >= len(c.idx.rows) {
		return nil, ErrNoSuchRecord
	}
	return c.idx.rows[c.pos], nil
}

func (c *memCursor) Next() (Row, error) {
	c.pos++
	return c.Record()
}
