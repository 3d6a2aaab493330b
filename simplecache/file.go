// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package simplecache

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/contentcodec"
	"github.com/dissect-go/dissect/internal/mmapfile"
)

const (
	fileHeaderMagic uint64 = 0xFCFB6D1BA7725C30
	fileEOFMagic    uint64 = 0xF4FA6F45970D41D8
	sparseRangeMagic uint64 = 0xEB97BF016553676B

	fileHeaderFixedSize = 8 + 4 + 4 + 16 // magic, version, key_length, key_hash(md5)
	eofRecordSize       = 24
	sha256Size          = 32

	// eofFlagHasSHA256Mask marks EOF records preceded by the stream's
	// SHA256 checksum: set in flag values 2 and 3, per §4.7.
	eofFlagHasSHA256Mask = 0x2
)

// StreamType identifies which of a Simple Cache entry's logical
// streams a "<hash>_{0|1|s}" file holds.
type StreamType int

const (
	// StreamType01 is the combined file holding both stream 0 (HTTP
	// headers/metadata) and stream 1 (response body), suffix "_0".
	StreamType01 StreamType = iota
	// StreamType2 is stream 2 (a secondary body, e.g. for range
	// requests); not implemented (spec.md §9(c)).
	StreamType2
	// StreamTypeSparse holds sparse byte ranges, suffix "_s".
	StreamTypeSparse
)

// keyFileName matches a Simple Cache per-key file name: a 16-hex-
// character key hash, an underscore, and a single-character stream
// suffix (0, 1, or s).
var keyFileName = regexp.MustCompile(`^([0-9a-fA-F]{16})_([01s])$`)

// SimpleFileHeader is the fixed-layout header every per-key stream
// file begins with.
type SimpleFileHeader struct {
	Magic     uint64
	Version   uint32
	KeyLength uint32
	KeyHash   [16]byte
	Key       []byte
}

// SimpleFileEOF is the fixed-layout trailer a stream's data is
// bracketed by.
type SimpleFileEOF struct {
	Magic      uint64
	Flags      uint32
	DataCRC32  uint32
	StreamSize uint32
}

// HasSHA256 reports whether a 32-byte SHA256 checksum of the stream
// precedes this EOF record.
func (e SimpleFileEOF) HasSHA256() bool {
	return e.Flags&eofFlagHasSHA256Mask != 0
}

// Entry is one opened Simple Cache per-key file.
type Entry struct {
	KeyHash string
	Stream  StreamType
	path    string
	mapped  *mmapfile.File
	header  SimpleFileHeader
}

// ParseFileName splits a per-key file's base name into its key hash
// and stream type, per the naming convention of §4.7/§6.
func ParseFileName(name string) (keyHash string, stream StreamType, err error) {
	m := keyFileName.FindStringSubmatch(name)
	if m == nil {
		return "", 0, fmt.Errorf("%w: %q is not a simple cache key file", dberrors.ErrUnknownStreamKey, name)
	}
	switch m[2] {
	case "0":
		return strings.ToLower(m[1]), StreamType01, nil
	case "1":
		return strings.ToLower(m[1]), StreamType2, nil
	case "s":
		return strings.ToLower(m[1]), StreamTypeSparse, nil
	default:
		return "", 0, fmt.Errorf("%w: %q is not a simple cache key file", dberrors.ErrUnknownStreamKey, name)
	}
}

// OpenEntry memory-maps a per-key stream file and decodes its fixed
// SimpleFileHeader.
func OpenEntry(path string) (*Entry, error) {
	hash, stream, err := ParseFileName(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	mapped, err := mmapfile.Open(path)
	if err != nil {
		return nil, err
	}

	hdr, err := parseFileHeader(mapped.Data)
	if err != nil {
		mapped.Close()
		return nil, err
	}

	return &Entry{KeyHash: hash, Stream: stream, path: path, mapped: mapped, header: hdr}, nil
}

// Close releases the entry's memory-mapped file.
func (e *Entry) Close() error {
	return e.mapped.Close()
}

// Header returns the entry's decoded SimpleFileHeader.
func (e *Entry) Header() SimpleFileHeader { return e.header }

func parseFileHeader(data []byte) (SimpleFileHeader, error) {
	if len(data) < fileHeaderFixedSize {
		return SimpleFileHeader{}, fmt.Errorf("%w: simple cache file header truncated", dberrors.ErrTruncated)
	}
	h := SimpleFileHeader{
		Magic:     binary.LittleEndian.Uint64(data[0:8]),
		Version:   binary.LittleEndian.Uint32(data[8:12]),
		KeyLength: binary.LittleEndian.Uint32(data[12:16]),
	}
	copy(h.KeyHash[:], data[16:32])
	if h.Magic != fileHeaderMagic {
		return SimpleFileHeader{}, fmt.Errorf("%w: simple cache file magic 0x%016x", dberrors.ErrInvalidMagic, h.Magic)
	}
	end := fileHeaderFixedSize + int(h.KeyLength)
	if len(data) < end {
		return SimpleFileHeader{}, fmt.Errorf("%w: simple cache key truncated", dberrors.ErrTruncated)
	}
	h.Key = data[fileHeaderFixedSize:end]
	return h, nil
}

func parseEOF(data []byte) (SimpleFileEOF, error) {
	if len(data) < eofRecordSize {
		return SimpleFileEOF{}, fmt.Errorf("%w: simple cache EOF record truncated", dberrors.ErrTruncated)
	}
	e := SimpleFileEOF{
		Magic:      binary.LittleEndian.Uint64(data[0:8]),
		Flags:      binary.LittleEndian.Uint32(data[8:12]),
		DataCRC32:  binary.LittleEndian.Uint32(data[12:16]),
		StreamSize: binary.LittleEndian.Uint32(data[16:20]),
	}
	if e.Magic != fileEOFMagic {
		return SimpleFileEOF{}, fmt.Errorf("%w: simple cache EOF magic 0x%016x", dberrors.ErrInvalidMagic, e.Magic)
	}
	return e, nil
}

// Stream0 returns stream 0's raw bytes (the cached HTTP response
// metadata), walking backward from the file's end per §4.7.
func (e *Entry) Stream0() ([]byte, error) {
	if e.Stream != StreamType01 {
		return nil, fmt.Errorf("%w: stream 0 only exists in a _0 file", dberrors.ErrInvalidArgument)
	}
	body, _, err := e.readStream01(0)
	return body, err
}

// Stream1 returns stream 1's raw bytes (the response body), walking
// backward from the file's end per §4.7.
func (e *Entry) Stream1() ([]byte, error) {
	if e.Stream != StreamType01 {
		return nil, fmt.Errorf("%w: stream 1 only exists in a _0 file", dberrors.ErrInvalidArgument)
	}
	body, _, err := e.readStream01(1)
	return body, err
}

// readStream01 implements the backward walk of §4.7. On disk, stream
// 1 comes right after the header, bounded by its own EOF record; then
// stream 0 follows, with its own EOF record occupying the file's final
// 24 bytes. Reading therefore starts at EOF-24 (stream 0) and walks
// backward to locate stream 1's EOF and body.
func (e *Entry) readStream01(which int) ([]byte, SimpleFileEOF, error) {
	end := len(e.mapped.Data)
	if end < eofRecordSize {
		return nil, SimpleFileEOF{}, fmt.Errorf("%w: simple cache file too short for EOF record", dberrors.ErrTruncated)
	}

	eof0Off := end - eofRecordSize
	eof0, err := parseEOF(e.mapped.Data[eof0Off:])
	if err != nil {
		return nil, SimpleFileEOF{}, err
	}

	stream0BodyEnd := eof0Off
	if eof0.HasSHA256() {
		stream0BodyEnd -= sha256Size
	}
	stream0BodyStart := stream0BodyEnd - int(eof0.StreamSize)
	if stream0BodyStart < 0 {
		return nil, SimpleFileEOF{}, fmt.Errorf("%w: simple cache stream 0 body underruns file", dberrors.ErrTruncated)
	}

	if which == 0 {
		return cloneBytes(e.mapped.Data[stream0BodyStart:stream0BodyEnd]), eof0, nil
	}

	eof1Off := stream0BodyStart - eofRecordSize
	if eof1Off < 0 {
		return nil, SimpleFileEOF{}, fmt.Errorf("%w: simple cache stream 1 EOF record underruns file", dberrors.ErrTruncated)
	}
	eof1, err := parseEOF(e.mapped.Data[eof1Off:])
	if err != nil {
		return nil, SimpleFileEOF{}, err
	}

	stream1BodyStart := fileHeaderFixedSize + int(e.header.KeyLength)
	stream1BodyEnd := eof1Off
	if stream1BodyEnd < stream1BodyStart {
		return nil, SimpleFileEOF{}, fmt.Errorf("%w: simple cache stream 1 body overlaps header", dberrors.ErrTruncated)
	}

	return cloneBytes(e.mapped.Data[stream1BodyStart:stream1BodyEnd]), eof1, nil
}

// SimpleFileSparseRangeHeader precedes one range of a "_s" sparse
// stream file.
type SimpleFileSparseRangeHeader struct {
	Magic      uint64
	Offset     int64
	Length     int64
	TruncatedSize int32
	DataCRC32  uint32
}

// SparseRange reads the single sparse range this reader supports
// (§4.7: "exactly one range is expected") from a "_s" file.
func (e *Entry) SparseRange() (SimpleFileSparseRangeHeader, []byte, error) {
	if e.Stream != StreamTypeSparse {
		return SimpleFileSparseRangeHeader{}, nil, fmt.Errorf("%w: sparse range only exists in a _s file", dberrors.ErrInvalidArgument)
	}

	off := fileHeaderFixedSize + int(e.header.KeyLength)
	const rangeHeaderSize = 8 + 8 + 8 + 4 + 4
	if off+rangeHeaderSize > len(e.mapped.Data) {
		return SimpleFileSparseRangeHeader{}, nil, fmt.Errorf("%w: sparse range header truncated", dberrors.ErrTruncated)
	}

	row := e.mapped.Data[off:]
	h := SimpleFileSparseRangeHeader{
		Magic:         binary.LittleEndian.Uint64(row[0:8]),
		Offset:        int64(binary.LittleEndian.Uint64(row[8:16])),
		Length:        int64(binary.LittleEndian.Uint64(row[16:24])),
		TruncatedSize: int32(binary.LittleEndian.Uint32(row[24:28])),
		DataCRC32:     binary.LittleEndian.Uint32(row[28:32]),
	}
	if h.Magic != sparseRangeMagic {
		return SimpleFileSparseRangeHeader{}, nil, fmt.Errorf("%w: sparse range magic 0x%016x", dberrors.ErrInvalidMagic, h.Magic)
	}

	dataStart := off + rangeHeaderSize
	dataEnd := dataStart + int(h.Length)
	if dataEnd > len(e.mapped.Data) {
		return h, nil, fmt.Errorf("%w: sparse range data truncated", dberrors.ErrTruncated)
	}
	return h, cloneBytes(e.mapped.Data[dataStart:dataEnd]), nil
}

// Data returns the decompressed response body of a "_0" entry: stream
// 1, run through the same gzip/brotli/deflate heuristic the blockfile
// cache reader uses, driven by stream 0's metadata blob.
func (e *Entry) Data() ([]byte, error) {
	meta, err := e.Stream0()
	if err != nil {
		return nil, err
	}
	body, err := e.Stream1()
	if err != nil {
		return nil, err
	}
	return contentcodec.Decompress(body, meta)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
