// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package dberrors collects the sentinel errors shared across the
// forensic readers in this module, grouped by the kind of failure
// they represent rather than by the subsystem that raises them.
package dberrors

import "errors"

// NotFound errors: a path, key, index, or attribute could not be located.
var (
	ErrNotFound          = errors.New("not found")
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrIndexNotFound     = errors.New("index not found")
	ErrNoRoot            = errors.New("no root object")
	ErrNoRootDomain      = errors.New("no root domain object")
)

// InvalidFormat errors: magic mismatch, unsupported version, truncated
// header, or a wildcard in an unsupported position.
var (
	ErrInvalidFormat       = errors.New("invalid format")
	ErrInvalidMagic        = errors.New("invalid magic")
	ErrUnsupportedVersion  = errors.New("unsupported version")
	ErrTruncated           = errors.New("truncated data")
	ErrWildcardUnsupported = errors.New("wildcard not supported in this position")
)

// InvalidArgument errors: caller supplied a malformed request.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAmbiguousLookup  = errors.New("exactly one lookup key must be provided")
	ErrUnknownFileType  = errors.New("unknown file type")
	ErrUnknownStreamKey = errors.New("unknown simple cache file suffix")
)

// Unsupported marks a recognised-but-unimplemented variant, e.g. an ACE
// type this reader doesn't decode, or simple cache STREAM_2 files.
var (
	ErrUnsupported       = errors.New("unsupported")
	ErrStream2Unsupported = errors.New("simple cache STREAM_2 is not implemented")
)
