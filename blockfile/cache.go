// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockfile

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/contentcodec"
	"github.com/dissect-go/dissect/internal/mmapfile"
)

// Options configures an opened DiskCache.
type Options struct {
	// Logger receives warnings for malformed entries encountered
	// while walking the index table; a nil Logger defaults to
	// logrus.StandardLogger().
	Logger *logrus.Logger
}

// mappedFile is one memory-mapped cache container file (index,
// data_N, or an external f_XXXXXX file).
type mappedFile = mmapfile.File

func openMapped(path string) (*mappedFile, error) {
	return mmapfile.Open(path)
}

// DiskCache is an opened Chromium blockfile disk cache directory: the
// index file plus the shared data_0..data_3 block files and whatever
// external f_XXXXXX files the entries within reference.
type DiskCache struct {
	dir   string
	log   *logrus.Entry
	index *mappedFile
	table []CacheAddress

	blockFiles map[int]*blockFile
	external   map[int]*mappedFile
}

type blockFile struct {
	mapped *mappedFile
	header BlockFileHeader
}

// Open opens a blockfile disk cache rooted at dir, validating the
// index header and reading its address table.
func Open(dir string, opts *Options) (*DiskCache, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	idx, err := openMapped(filepath.Join(dir, "index"))
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	hdr, err := ParseIndexHeader(idx.Data)
	if err != nil {
		idx.Close()
		return nil, err
	}

	c := &DiskCache{
		dir:        dir,
		log:        logger.WithField("component", "blockfile"),
		index:      idx,
		blockFiles: make(map[int]*blockFile),
		external:   make(map[int]*mappedFile),
	}

	tableStart := kBlockHeaderSize
	tableEnd := tableStart + int(hdr.TableLen)*4
	if tableEnd > len(idx.Data) {
		c.Close()
		return nil, fmt.Errorf("%w: index table overruns file", dberrors.ErrTruncated)
	}
	c.table = make([]CacheAddress, hdr.TableLen)
	for i := 0; i < int(hdr.TableLen); i++ {
		raw := leUint32(idx.Data[tableStart+4*i:])
		c.table[i] = DecodeAddress(raw)
	}

	return c, nil
}

// Close releases every memory-mapped file the cache has opened.
func (c *DiskCache) Close() error {
	var first error
	if c.index != nil {
		first = c.index.Close()
	}
	for _, bf := range c.blockFiles {
		if err := bf.mapped.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, ef := range c.external {
		if err := ef.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// blockFileFor returns the open block file whose header.ThisFile
// equals fileNumber, opening data_<fileNumber> on first use.
func (c *DiskCache) blockFileFor(fileNumber int) (*blockFile, error) {
	if bf, ok := c.blockFiles[fileNumber]; ok {
		return bf, nil
	}
	name := fmt.Sprintf("data_%d", fileNumber)
	mapped, err := openMapped(filepath.Join(c.dir, name))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	hdr, err := ParseBlockFileHeader(mapped.Data)
	if err != nil {
		mapped.Close()
		return nil, err
	}
	if int(hdr.ThisFile) != fileNumber {
		mapped.Close()
		return nil, fmt.Errorf("%w: %s header this_file is %d", dberrors.ErrInvalidFormat, name, hdr.ThisFile)
	}
	bf := &blockFile{mapped: mapped, header: hdr}
	c.blockFiles[fileNumber] = bf
	return bf, nil
}

func (c *DiskCache) externalFile(fileNumber int) (*mappedFile, error) {
	if ef, ok := c.external[fileNumber]; ok {
		return ef, nil
	}
	name := fmt.Sprintf("f_%06x", fileNumber)
	mapped, err := openMapped(filepath.Join(c.dir, name))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	c.external[fileNumber] = mapped
	return mapped, nil
}

// readAddress resolves a CacheAddress to n bytes of raw content,
// following the EXTERNAL vs BLOCK_* dereferencing rules of §4.6.
func (c *DiskCache) readAddress(addr CacheAddress, n int) ([]byte, error) {
	if !addr.Initialized {
		return nil, nil
	}
	if addr.IsSeparateFile() {
		ef, err := c.externalFile(addr.FileNumber)
		if err != nil {
			return nil, err
		}
		if n <= 0 || n > len(ef.Data) {
			n = len(ef.Data)
		}
		out := make([]byte, n)
		copy(out, ef.Data[:n])
		return out, nil
	}

	bf, err := c.blockFileFor(addr.FileSelector)
	if err != nil {
		return nil, err
	}
	blockSize, err := addr.BlockSize()
	if err != nil {
		return nil, err
	}
	start := kBlockHeaderSize + blockSize*addr.StartBlock
	total := blockSize * addr.NumBlocks
	if n <= 0 || n > total {
		n = total
	}
	if start+n > len(bf.mapped.Data) {
		return nil, fmt.Errorf("%w: block read overruns %s", dberrors.ErrTruncated, bf.mapped.Name())
	}
	out := make([]byte, n)
	copy(out, bf.mapped.Data[start:start+n])
	return out, nil
}

// entryAt reads and decodes the EntryStore at addr.
func (c *DiskCache) entryAt(addr CacheAddress) (*Entry, error) {
	raw, err := c.readAddress(addr, entryStoreSize)
	if err != nil {
		return nil, err
	}
	store, err := parseEntryStore(raw)
	if err != nil {
		return nil, err
	}
	return &Entry{cache: c, store: store, addr: addr}, nil
}

// Entries walks every initialized slot of the index table and yields
// the hash-bucket chain rooted there, following EntryStore.Next until
// it reaches zero. Malformed chain links are logged and the chain is
// abandoned rather than aborting the whole walk.
func (c *DiskCache) Entries(yield func(*Entry) bool) {
	for _, addr := range c.table {
		if !addr.Initialized {
			continue
		}
		e, err := c.entryAt(addr)
		if err != nil {
			c.log.WithError(err).Warn("reading index table entry")
			continue
		}
		for e != nil {
			if !yield(e) {
				return
			}
			next, err := e.Next()
			if err != nil {
				c.log.WithError(err).Warn("following entry chain")
				break
			}
			e = next
		}
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// decompress applies the content-encoding heuristic of §4.6.
func decompress(body, meta []byte) ([]byte, error) {
	return contentcodec.Decompress(body, meta)
}
