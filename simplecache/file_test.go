// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package simplecache

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildKeyFile lays out a minimal "_0" Simple Cache file: header,
// stream 1 body + EOF, stream 0 body + EOF (stream 0 follows stream
// 1 on disk, with its EOF record occupying the file's final 24 bytes,
// per §4.7).
func buildKeyFile(t *testing.T, key string, stream0, stream1 []byte) string {
	t.Helper()
	return buildKeyFileIn(t, t.TempDir(), key, stream0, stream1)
}

// buildKeyFileIn is buildKeyFile with an explicit destination directory,
// for tests that need the key file alongside other cache state.
func buildKeyFileIn(t *testing.T, dir, key string, stream0, stream1 []byte) string {
	t.Helper()
	path := filepath.Join(dir, "0123456789abcdef_0")

	var buf []byte
	hdr := make([]byte, fileHeaderFixedSize+len(key))
	binary.LittleEndian.PutUint64(hdr[0:8], fileHeaderMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], 1)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(key)))
	copy(hdr[32:], key)
	buf = append(buf, hdr...)

	// Stream 1 body, then its EOF record.
	buf = append(buf, stream1...)
	eof1 := make([]byte, eofRecordSize)
	binary.LittleEndian.PutUint64(eof1[0:8], fileEOFMagic)
	binary.LittleEndian.PutUint32(eof1[16:20], uint32(len(stream1)))
	buf = append(buf, eof1...)

	// Stream 0 body, then its EOF record at the file's very end.
	buf = append(buf, stream0...)
	eof0 := make([]byte, eofRecordSize)
	binary.LittleEndian.PutUint64(eof0[0:8], fileEOFMagic)
	binary.LittleEndian.PutUint32(eof0[16:20], uint32(len(stream0)))
	buf = append(buf, eof0...)

	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestEntryStream01RoundTrip(t *testing.T) {
	path := buildKeyFile(t, "http://example.com/", []byte("HTTP/1.1 200 OK"), []byte("hello world"))

	e, err := OpenEntry(path)
	require.NoError(t, err)
	defer e.Close()

	require.Equal(t, "0123456789abcdef", e.KeyHash)
	require.Equal(t, StreamType01, e.Stream)
	require.Equal(t, []byte("http://example.com/"), e.Header().Key)

	s0, err := e.Stream0()
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK", string(s0))

	s1, err := e.Stream1()
	require.NoError(t, err)
	require.Equal(t, "hello world", string(s1))
}

func TestParseFileName(t *testing.T) {
	hash, stream, err := ParseFileName("0123456789abcdef_0")
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdef", hash)
	require.Equal(t, StreamType01, stream)

	_, _, err = ParseFileName("not-a-cache-file")
	require.Error(t, err)
}
