// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package simplecache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dissect-go/dissect/dberrors"
)

// Options configures an opened Cache.
type Options struct {
	// Logger receives warnings for per-key files that fail to parse;
	// a nil Logger defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

// Cache is an opened Simple Cache directory: its the-real-index
// summary plus the per-key stream files alongside it.
type Cache struct {
	dir     string
	log     *logrus.Entry
	Header  IndexHeader
	Entries []IndexTableEntry
}

// Open validates and reads "index-dir/the-real-index" under dir.
// Per-key files are opened lazily via Keys/OpenKey rather than eagerly
// memory-mapping the whole directory.
func Open(dir string, opts *Options) (*Cache, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	raw, err := os.ReadFile(filepath.Join(dir, "index-dir", "the-real-index"))
	if err != nil {
		return nil, fmt.Errorf("reading the-real-index: %w", err)
	}

	hdr, entries, err := ParseIndex(raw)
	if err != nil {
		return nil, err
	}

	return &Cache{
		dir:     dir,
		log:     logger.WithField("component", "simplecache"),
		Header:  hdr,
		Entries: entries,
	}, nil
}

// KeyFileName is the base name of one per-key stream file: a 16-hex-
// character key hash, an underscore, and a single-character stream
// suffix, exactly 18 characters long (§4.7).
type KeyFileName struct {
	Name     string
	KeyHash  string
	Stream   StreamType
}

// ListKeyFiles enumerates every per-key stream file in the cache
// directory: any entry whose name is exactly 18 characters and
// contains an underscore.
func (c *Cache) ListKeyFiles() ([]KeyFileName, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	var out []KeyFileName
	for _, de := range dirEntries {
		name := de.Name()
		if len(name) != 18 || !strings.Contains(name, "_") {
			continue
		}
		hash, stream, err := ParseFileName(name)
		if err != nil {
			c.log.WithError(err).Warn("skipping unrecognized cache file")
			continue
		}
		out = append(out, KeyFileName{Name: name, KeyHash: hash, Stream: stream})
	}
	return out, nil
}

// OpenKey opens one per-key stream file by its base name. STREAM_2
// ("_1") files are rejected outright with dberrors.ErrStream2Unsupported
// rather than handed back half-usable (spec.md §9(c)).
func (c *Cache) OpenKey(name string) (*Entry, error) {
	e, err := OpenEntry(filepath.Join(c.dir, name))
	if err != nil {
		return nil, err
	}
	if e.Stream == StreamType2 {
		e.Close()
		return nil, fmt.Errorf("opening %s: %w", name, dberrors.ErrStream2Unsupported)
	}
	return e, nil
}
