// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package localstorage

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dissect-go/dissect/internal/winutil"
	"github.com/dissect-go/dissect/leveldb"
)

func utf16leValue(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := winutil.EncodeUTF16LE(s)
	require.NoError(t, err)
	return append([]byte{encodingUTF16LE}, enc...)
}

func metaValue(micros int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(micros+11644473600000000))
	return b
}

func TestBuildStoresAssociatesNearestMeta(t *testing.T) {
	hostKey := func(name string) []byte {
		k := append([]byte{recordPrefix}, []byte("example.com")...)
		k = append(k, 0)
		k = append(k, encodingUTF16LE)
		enc, _ := winutil.EncodeUTF16LE(name)
		return append(k, enc...)
	}

	src := leveldb.NewMemSource([]leveldb.Record{
		{Key: []byte(metaPrefix + "example.com"), Value: metaValue(100), Sequence: 1},
		{Key: []byte(metaPrefix + "example.com"), Value: metaValue(200), Sequence: 5},
		{Key: hostKey("theme"), Value: utf16leValue(t, "dark"), Sequence: 10},
	})

	stores, err := BuildStores(src)
	require.NoError(t, err)

	store, ok := stores["example.com"]
	require.True(t, ok)
	require.Len(t, store.Records, 1)

	rec := store.Records[0]
	assert.Equal(t, "theme", rec.Name)
	assert.Equal(t, "dark", rec.Value)
	require.NotNil(t, rec.LastModified)
	require.NotNil(t, rec.Created)
	assert.Nil(t, rec.LastAccessed)
}

func TestBuildStoresNoMetaLeavesTimestampsNil(t *testing.T) {
	hostKey := append([]byte{recordPrefix}, []byte("nometa.com\x00")...)
	hostKey = append(hostKey, encodingUTF16LE)
	enc, _ := winutil.EncodeUTF16LE("k")
	hostKey = append(hostKey, enc...)

	src := leveldb.NewMemSource([]leveldb.Record{
		{Key: hostKey, Value: utf16leValue(t, "v"), Sequence: 1},
	})

	stores, err := BuildStores(src)
	require.NoError(t, err)
	store := stores["nometa.com"]
	require.Len(t, store.Records, 1)
	rec := store.Records[0]
	assert.Nil(t, rec.Created)
	assert.Nil(t, rec.LastModified)
	assert.Nil(t, rec.LastAccessed)
}
