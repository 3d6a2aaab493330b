// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package esedb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFixtureDB() *MemDatabase {
	db := NewMemDatabase()
	dt := db.AddTable("datatable")
	dt.Insert(Row{"DNT_col": int32(1), "sAMAccountName": "ernesto", "objectClass": "user"})
	dt.Insert(Row{"DNT_col": int32(2), "sAMAccountName": "alice", "objectClass": "user"})
	dt.Insert(Row{"DNT_col": int32(3), "sAMAccountName": "bob", "objectClass": "group"})
	dt.BuildIndex("INDEX_sAMAccountName", "sAMAccountName")
	dt.BuildIndex("INDEX_objectClass", "objectClass")
	return db
}

func TestMemDatabaseTableLookup(t *testing.T) {
	db := buildFixtureDB()

	tbl, err := db.Table("datatable")
	require.NoError(t, err)
	assert.Equal(t, "datatable", tbl.Name())

	_, err = db.Table("no_such_table")
	assert.Error(t, err)
}

func TestMemIndexFindExactMatch(t *testing.T) {
	db := buildFixtureDB()
	tbl, err := db.Table("datatable")
	require.NoError(t, err)

	idx, err := tbl.Index("INDEX_sAMAccountName")
	require.NoError(t, err)
	assert.Equal(t, []string{"sAMAccountName"}, idx.Columns())

	cur := idx.Cursor()
	row, err := cur.Find("alice")
	require.NoError(t, err)
	assert.Equal(t, int32(2), row.Get("DNT_col"))

	_, err = cur.Find("nobody")
	assert.True(t, errors.Is(err, ErrNoSuchRecord))
}

func TestMemIndexFindAll(t *testing.T) {
	db := buildFixtureDB()
	tbl, err := db.Table("datatable")
	require.NoError(t, err)

	idx, err := tbl.Index("INDEX_objectClass")
	require.NoError(t, err)

	rows, err := idx.Cursor().FindAll(map[string]any{"objectClass": "user"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestMemIndexCursorIteratesInOrder(t *testing.T) {
	db := buildFixtureDB()
	tbl, err := db.Table("datatable")
	require.NoError(t, err)

	idx, err := tbl.Index("INDEX_sAMAccountName")
	require.NoError(t, err)

	cur := idx.Cursor()
	var names []string
	for {
		row, err := cur.Next()
		if errors.Is(err, ErrNoSuchRecord) {
			break
		}
		require.NoError(t, err)
		names = append(names, row.Get("sAMAccountName").(string))
	}
	assert.Equal(t, []string{"alice", "bob", "ernesto"}, names)
}

func TestFindIndexByColumns(t *testing.T) {
	db := buildFixtureDB()
	tbl, err := db.Table("datatable")
	require.NoError(t, err)

	idx, err := tbl.FindIndex([]string{"sAMAccountName"})
	require.NoError(t, err)
	assert.Equal(t, "INDEX_sAMAccountName", idx.Name())

	_, err = tbl.FindIndex([]string{"no_such_column"})
	assert.Error(t, err)
}

func TestRowGetOnNilRow(t *testing.T) {
	var r Row
	assert.Nil(t, r.Get("anything"))
}
