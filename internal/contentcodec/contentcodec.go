// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package contentcodec implements the content-encoding heuristic
// shared by the Chromium blockfile and Simple Cache readers (spec.md
// §4.6/§4.7): sniff gzip magic at the body's start, otherwise look
// for a "content-encoding" hint in the entry's metadata blob.
package contentcodec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
)

// Decompress returns body's plaintext, picking a codec by: gzip magic
// at the start of body; else "content-encoding:br"/"content-encoding:
// deflate" substrings in meta; else body is returned unchanged.
func Decompress(body, meta []byte) ([]byte, error) {
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gunzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}

	switch {
	case bytes.Contains(meta, []byte("content-encoding:br")):
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case bytes.Contains(meta, []byte("content-encoding:deflate")):
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return body, nil
	}
}
