// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package contentcodec

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompressGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("hello gzip"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got, err := Decompress(buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(got))
}

func TestDecompressBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte("hello brotli"))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	got, err := Decompress(buf.Bytes(), []byte("content-encoding:br\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello brotli", string(got))
}

func TestDecompressPassthrough(t *testing.T) {
	got, err := Decompress([]byte("plain text"), nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(got))
}
