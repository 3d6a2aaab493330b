// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemSourceNewestFirst(t *testing.T) {
	src := NewMemSource([]Record{
		{Key: []byte("k"), Sequence: 1, State: StateLive},
		{Key: []byte("k"), Sequence: 3, State: StateLive},
		{Key: []byte("k"), Sequence: 2, State: StateDeleted},
	})

	var seqs []uint64
	src.Records(func(r Record) bool {
		seqs = append(seqs, r.Sequence)
		return true
	})
	require.Equal(t, []uint64{3, 2, 1}, seqs)
}

func TestLatestPerKey(t *testing.T) {
	records := All(NewMemSource([]Record{
		{Key: []byte("a"), Sequence: 5},
		{Key: []byte("b"), Sequence: 4},
		{Key: []byte("a"), Sequence: 2},
	}))

	latest := LatestPerKey(records)
	require.Len(t, latest, 2)
	assert.Equal(t, "a", string(latest[0].Key))
	assert.Equal(t, uint64(5), latest[0].Sequence)
	assert.Equal(t, "b", string(latest[1].Key))
}

func TestRecordsYieldStopsEarly(t *testing.T) {
	src := NewMemSource([]Record{{Sequence: 1}, {Sequence: 2}, {Sequence: 3}})
	count := 0
	src.Records(func(Record) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}
