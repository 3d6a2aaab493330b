// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package simplecache

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T, entries []IndexTableEntry) []byte {
	t.Helper()
	buf := make([]byte, indexHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], indexMagic)
	binary.LittleEndian.PutUint32(buf[8:12], 9)
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	for _, e := range entries {
		row := make([]byte, indexEntrySize)
		binary.LittleEndian.PutUint64(row[0:8], e.Hash)
		binary.LittleEndian.PutUint64(row[8:16], uint64(e.LastUsed))
		binary.LittleEndian.PutUint32(row[16:20], uint32(e.Size))
		binary.LittleEndian.PutUint32(row[20:24], uint32(e.InMemoryData))
		buf = append(buf, row...)
	}
	return buf
}

func TestParseIndexRoundTrip(t *testing.T) {
	raw := buildIndex(t, []IndexTableEntry{
		{Hash: 0xdeadbeef, LastUsed: 11644473600000000 + 1_000_000, Size: 128},
		{Hash: 0xfeedface, LastUsed: 11644473600000000 + 2_000_000, Size: 256},
	})

	hdr, entries, err := ParseIndex(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), hdr.Version)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(0xdeadbeef), entries[0].Hash)
	assert.Equal(t, int32(256), entries[1].Size)

	last, ok := LastUsed(entries)
	require.True(t, ok)
	assert.Equal(t, int64(2), last.Unix())
}

func TestParseIndexRejectsBadMagic(t *testing.T) {
	raw := make([]byte, indexHeaderSize)
	_, _, err := ParseIndex(raw)
	require.Error(t, err)
}

func TestLastUsedEmpty(t *testing.T) {
	_, ok := LastUsed(nil)
	assert.False(t, ok)
}
