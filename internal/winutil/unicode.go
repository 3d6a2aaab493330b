// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winutil

import (
	"golang.org/x/text/encoding/unicode"
)

// DecodeUTF16LE decodes a little-endian UTF-16 byte string without a
// byte-order mark, the encoding NTDS Unicode attributes and Chromium
// LocalStorage/SessionStorage/IndexedDB string values use on disk.
func DecodeUTF16LE(b []byte) (string, error) {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeUTF16BE decodes a big-endian UTF-16 byte string, the encoding
// IndexedDB uses for its length-prefixed string keys and values.
func DecodeUTF16BE(b []byte) (string, error) {
	decoder := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeUTF16LE is the inverse of DecodeUTF16LE.
func EncodeUTF16LE(s string) ([]byte, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	return encoder.Bytes([]byte(s))
}

// DecodeLatin1 decodes an ISO-8859-1 (latin-1) byte string, used as
// the alternate string encoding selector in LocalStorage.
func DecodeLatin1(b []byte) string {
	out := make([]rune, len(b))
	for i, c := range b {
		out[i] = rune(c)
	}
	return string(out)
}
