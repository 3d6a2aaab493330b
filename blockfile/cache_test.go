// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockfile

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildFixture lays out a minimal one-entry blockfile disk cache
// directory: an index file with a single table slot pointing at a
// BLOCK_256 address, and a data_0 file holding that EntryStore.
func buildFixture(t *testing.T, key string, data []byte) string {
	t.Helper()
	dir := t.TempDir()

	entryAddr := CacheAddress{Initialized: true, Type: FileTypeBlock256, NumBlocks: 1, FileSelector: 0, StartBlock: 0}

	index := make([]byte, kBlockHeaderSize+4)
	binary.LittleEndian.PutUint32(index[0:4], indexMagic)
	binary.LittleEndian.PutUint32(index[4:8], indexVersion)
	binary.LittleEndian.PutUint32(index[28:32], 1) // table_len
	binary.LittleEndian.PutUint32(index[kBlockHeaderSize:], entryAddr.Encode())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index"), index, 0o600))

	// data_0: BlockFileHeader (24 bytes) + one BLOCK_256 slot holding
	// the EntryStore, plus a second BLOCK_256 slot (start_block=1)
	// holding the body so the test can exercise a BLOCK-addressed
	// stream.
	dataFile := make([]byte, kBlockHeaderSize+256*2)
	binary.LittleEndian.PutUint32(dataFile[0:4], blockMagic)
	binary.LittleEndian.PutUint32(dataFile[4:8], blockVersion)
	binary.LittleEndian.PutUint16(dataFile[8:10], 0) // this_file

	bodyAddr := CacheAddress{Initialized: true, Type: FileTypeBlock256, NumBlocks: 1, FileSelector: 0, StartBlock: 1}
	copy(dataFile[kBlockHeaderSize+256:], data)

	es := make([]byte, entryStoreSize)
	binary.LittleEndian.PutUint32(es[4:8], 0)  // next = 0
	binary.LittleEndian.PutUint32(es[32:36], uint32(len(key)+1))
	binary.LittleEndian.PutUint32(es[56:60], bodyAddr.Encode()) // data_addr[0]
	binary.LittleEndian.PutUint32(es[40:44], uint32(len(data))) // data_size[0]
	copy(es[entryStoreKeyOffset:], key)
	copy(dataFile[kBlockHeaderSize:], es)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_0"), dataFile, 0o600))
	return dir
}

func TestDiskCacheRoundTrip(t *testing.T) {
	dir := buildFixture(t, "http://example.com/", []byte("hello world"))

	cache, err := Open(dir, nil)
	require.NoError(t, err)
	defer cache.Close()

	var keys []string
	cache.Entries(func(e *Entry) bool {
		k, err := e.Key()
		require.NoError(t, err)
		keys = append(keys, k)

		meta, err := e.Metadata()
		require.NoError(t, err)
		require.Equal(t, []byte("hello world"), meta)
		return true
	})

	require.Equal(t, []string{"http://example.com/"}, keys)
}

func TestParseIndexHeaderRejectsBadMagic(t *testing.T) {
	data := make([]byte, 44)
	_, err := ParseIndexHeader(data)
	require.Error(t, err)
}
