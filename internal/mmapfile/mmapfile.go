// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package mmapfile memory-maps a read-only file, the pattern every
// container format in this module (blockfile's index/data_N files,
// Simple Cache's per-key files) opens its backing storage with.
package mmapfile

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// File is one memory-mapped, read-only on-disk file.
type File struct {
	Data mmap.MMap
	f    *os.File
}

// Open memory-maps path for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Data: data, f: f}, nil
}

// Close unmaps the file and closes its descriptor.
func (m *File) Close() error {
	_ = m.Data.Unmap()
	return m.f.Close()
}

// Name returns the path the file was opened with.
func (m *File) Name() string {
	return m.f.Name()
}
