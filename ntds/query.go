// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ntds

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/esedb"
	"github.com/dissect-go/dissect/ldapfilter"
)

// Query evaluates a parsed LDAP filter against a Database's datatable.
//
// Atomic filters run in index mode: the filtered attribute must carry
// a datatable index, which is seeked (or range-scanned, for a
// trailing-wildcard filter) directly. A composed AND reuses its first
// child's index-mode result set as a base and evaluates every
// remaining child in filter mode - decoding each candidate row's
// attribute and testing it against the sub-filter directly - rather
// than re-deriving an index scan per child. A composed OR unions its
// children's results.
//
// When optimize is enabled, an AND's children are reordered so the
// most selective indexed predicate (an equality test) supplies the
// base set, cutting the number of per-candidate filter-mode
// evaluations; a non-optimizing caller gets the planner
// run with AND children in the order the filter was written.
type Query struct {
	db *Database

	// Stats accumulates across every processQuery call of the most
	// recent Process run (Process resets it), for callers (and tests)
	// that need to observe the planner's actual work - e.g. confirming
	// optimize=true performs fewer node evaluations than
	// optimize=false for the same filter.
	Stats QueryStats
}

// QueryStats counts the planner operations a single Search/Process
// call performed: IndexScans is incremented once per atomic filter
// evaluated in index mode (an index-backed Find/FindAll/range scan);
// NodeEvaluations is incremented once per atomic filter tested in
// filter mode against an already-materialized candidate row.
type QueryStats struct {
	IndexScans      int
	NodeEvaluations int
}

// NewQuery returns a Query bound to db.
func NewQuery(db *Database) *Query {
	return &Query{db: db}
}

// Search parses filterString and evaluates it, returning every
// matching object. optimize controls whether AND children are
// reordered by selectivity before evaluation (§4.3).
func (q *Query) Search(filterString string, optimize bool) ([]*Object, error) {
	f, err := ldapfilter.Parse(filterString)
	if err != nil {
		return nil, err
	}
	return q.Process(f, optimize)
}

// Process evaluates an already-parsed filter.
func (q *Query) Process(f *ldapfilter.Filter, optimize bool) ([]*Object, error) {
	q.Stats = QueryStats{}
	rows, err := q.processQuery(f, optimize)
	if err != nil {
		return nil, err
	}
	out := make([]*Object, 0, len(rows))
	for _, row := range rows {
		out = append(out, newObject(q.db, row))
	}
	return out, nil
}

func (q *Query) processQuery(f *ldapfilter.Filter, optimize bool) ([]esedb.Row, error) {
	switch {
	case f.Kind == ldapfilter.KindAnd:
		return q.processAnd(f, optimize)
	case f.Kind == ldapfilter.KindOr:
		return q.processOr(f, optimize)
	default:
		q.Stats.IndexScans++
		return q.queryDatabase(f)
	}
}

// queryDatabase runs a single atomic filter in index mode.
func (q *Query) queryDatabase(f *ldapfilter.Filter) ([]esedb.Row, error) {
	entry, err := q.db.schema.Lookup(SchemaLookup{LDAPName: &f.Attribute})
	if err != nil {
		return nil, fmt.Errorf("%w: attribute %q", dberrors.ErrAttributeNotFound, f.Attribute)
	}
	if entry.ColumnName == "" {
		return nil, fmt.Errorf("%w: attribute %q is not column-backed", dberrors.ErrInvalidArgument, f.Attribute)
	}

	idx, err := q.db.data.indexByColumns(entry.ColumnName)
	if err != nil {
		return nil, fmt.Errorf("%w: attribute %q has no index", dberrors.ErrIndexNotFound, f.Attribute)
	}

	switch f.Kind {
	case ldapfilter.KindPresence:
		return q.scanPresent(idx, entry.ColumnName)
	case ldapfilter.KindSubstring:
		return q.scanWildcardTail(idx, entry.ColumnName, f.Value)
	default: // KindEquality
		// NTDS equality columns are frequently non-unique (objectClass,
		// objectCategory, sAMAccountName on the person index, ...), so
		// every matching row must come back, not just the first one
		// the index happens to seek to.
		encoded, err := encodeForIndex(q.db, entry, f.Value)
		if err != nil {
			return nil, err
		}
		return idx.Cursor().FindAll(map[string]any{entry.ColumnName: encoded})
	}
}

func (q *Query) scanPresent(idx esedb.Index, column string) ([]esedb.Row, error) {
	var out []esedb.Row
	cur := idx.Cursor()
	for {
		row, err := cur.Next()
		if err != nil {
			break
		}
		if row.Get(column) != nil {
			out = append(out, row)
		}
	}
	return out, nil
}

// scanWildcardTail performs a range scan over [value, incrementLastChar(value))
// on an ascending-sorted index, collecting every row whose column
// value case-insensitively starts with value.
func (q *Query) scanWildcardTail(idx esedb.Index, column, value string) ([]esedb.Row, error) {
	lower := strings.ToLower(value)
	upper := incrementLastChar(lower)

	var out []esedb.Row
	cur := idx.Cursor()
	if err := cur.Seek(lower); err != nil {
		return nil, err
	}
	for {
		row, err := cur.Record()
		if err != nil {
			break
		}
		s, _ := row.Get(column).(string)
		ls := strings.ToLower(s)
		if ls >= upper {
			break
		}
		if strings.HasPrefix(ls, lower) {
			out = append(out, row)
		}
		if _, err := cur.Next(); err != nil {
			break
		}
	}
	return out, nil
}

// incrementLastChar increments the filter value's final character to
// produce the exclusive upper bound of a trailing-wildcard range
// search: the last character that is not 'z'/'Z' is incremented and
// everything after it dropped; if every character is 'z'/'Z' (or the
// value is empty), "a" is appended instead (a full carry-over).
func incrementLastChar(value string) string {
	chars := []rune(value)
	i := len(chars) - 1
	for i >= 0 && (chars[i] == 'z' || chars[i] == 'Z') {
		i--
	}
	if i < 0 {
		return value + "a"
	}
	chars[i]++
	return string(chars[:i+1])
}

// encodeForIndex converts a filter's textual value into the raw
// storage representation entry's index is sorted on, using the
// attribute's syntax codec when it defines one and falling back to
// the literal string otherwise (the common case: string-syntax
// attributes store their decoded form as-is).
func encodeForIndex(db *Database, entry *SchemaEntry, value string) (any, error) {
	if entry.TypeOID == "" {
		return value, nil
	}
	codec, ok := oidEncodeDecodeMap[entry.TypeOID]
	if !ok || codec.encode == nil {
		return value, nil
	}
	return codec.encode(db, value)
}

// processAnd evaluates the first child in index mode as the candidate
// base set, then filters every remaining candidate in filter mode
// against each other child - avoiding an index scan per AND operand.
//
// When optimize is set, children are reordered first so the most
// selective predicate (an atomic equality test) becomes the base: it
// is the one that runs in index mode, and everything else is only
// ever tested in cheap filter mode against that base's candidates.
// With optimize off, the filter's own child order is used unchanged,
// so a caller-supplied filter that puts a wide presence/substring test
// first pays for it with a much larger base set and correspondingly
// more per-candidate filter-mode evaluations.
func (q *Query) processAnd(f *ldapfilter.Filter, optimize bool) ([]esedb.Row, error) {
	if len(f.Children) == 0 {
		return nil, fmt.Errorf("%w: empty AND filter", dberrors.ErrInvalidArgument)
	}

	children := f.Children
	if optimize {
		children = reorderBySelectivity(children)
	}

	base, err := q.processQuery(children[0], optimize)
	if err != nil {
		return nil, err
	}

	rest := children[1:]
	var out []esedb.Row
	for _, row := range base {
		obj := newObject(q.db, row)
		match := true
		for _, child := range rest {
			ok, err := q.valueMatchesFilter(obj, child)
			if err != nil {
				return nil, err
			}
			if !ok {
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

// reorderBySelectivity returns children in a new slice stably sorted by
// selectivityRank, so children already in optimal order are untouched.
func reorderBySelectivity(children []*ldapfilter.Filter) []*ldapfilter.Filter {
	out := make([]*ldapfilter.Filter, len(children))
	copy(out, children)
	sort.SliceStable(out, func(i, j int) bool {
		return selectivityRank(out[i]) < selectivityRank(out[j])
	})
	return out
}

// selectivityRank orders filter kinds by how cheaply they narrow the
// candidate set when run in index mode: an equality test seeks
// straight to its matches, a trailing-wildcard test range-scans a
// bounded span, a presence test walks the whole index, and a nested
// AND/OR has no single indexed predicate to rank at all.
func selectivityRank(f *ldapfilter.Filter) int {
	switch f.Kind {
	case ldapfilter.KindEquality:
		return 0
	case ldapfilter.KindSubstring:
		return 1
	case ldapfilter.KindPresence:
		return 2
	default: // KindAnd, KindOr
		return 3
	}
}

// processOr unions every child's result set, deduplicating by DNT.
func (q *Query) processOr(f *ldapfilter.Filter, optimize bool) ([]esedb.Row, error) {
	seen := make(map[int32]bool)
	var out []esedb.Row
	for _, child := range f.Children {
		rows, err := q.processQuery(child, optimize)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			dnt, _ := row.Get("DNT_col").(int32)
			if seen[dnt] {
				continue
			}
			seen[dnt] = true
			out = append(out, row)
		}
	}
	return out, nil
}

// valueMatchesFilter evaluates an atomic or composed sub-filter
// against an already-materialized object, used for the non-base
// operands of an AND and recursively within nested filters.
func (q *Query) valueMatchesFilter(obj *Object, f *ldapfilter.Filter) (bool, error) {
	switch f.Kind {
	case ldapfilter.KindAnd:
		for _, c := range f.Children {
			ok, err := q.valueMatchesFilter(obj, c)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case ldapfilter.KindOr:
		for _, c := range f.Children {
			ok, err := q.valueMatchesFilter(obj, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	q.Stats.NodeEvaluations++
	v, err := obj.Get(f.Attribute, false)
	if err != nil {
		return false, nil
	}

	switch f.Kind {
	case ldapfilter.KindPresence:
		return v != nil, nil
	case ldapfilter.KindSubstring:
		return valueContainsPrefix(v, f.Value), nil
	default: // KindEquality
		return valueEquals(v, f.Value), nil
	}
}

func valueContainsPrefix(v any, prefix string) bool {
	prefix = strings.ToLower(prefix)
	switch x := v.(type) {
	case string:
		return strings.HasPrefix(strings.ToLower(x), prefix)
	case []any:
		for _, e := range x {
			if valueContainsPrefix(e, prefix) {
				return true
			}
		}
	}
	return false
}

func valueEquals(v any, want string) bool {
	switch x := v.(type) {
	case string:
		return strings.EqualFold(x, want)
	case []any:
		for _, e := range x {
			if valueEquals(e, want) {
				return true
			}
		}
		return false
	default:
		return fmt.Sprintf("%v", x) == want
	}
}
