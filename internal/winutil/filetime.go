// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package winutil holds small byte-level conversions shared by the
// NTDS and Chromium readers: Windows FILETIME / WebKit timestamps,
// SID encode/decode, and UTF-16 transcoding.
package winutil

import (
	"math"
	"time"
)

// windowsEpochDelta is the number of 100-nanosecond intervals between
// the Windows FILETIME epoch (1601-01-01) and the Unix epoch
// (1970-01-01).
const windowsEpochDelta = 116444736000000000

// webkitEpochDelta is the number of microseconds between the WebKit
// epoch (1601-01-01) and the Unix epoch (1970-01-01).
const webkitEpochDelta = 11644473600000000

// PositiveInfinity is returned by WinTimestamp for the well-known
// accountExpires "never expires" sentinel (1<<63)-1.
var PositiveInfinity = time.Unix(1<<62, 0).UTC()

// WinTimestamp converts a 64-bit Windows FILETIME value (100ns
// intervals since 1601-01-01 UTC) into a time.Time.
func WinTimestamp(value int64) time.Time {
	const accountExpiresNever = math.MaxInt64
	if value == accountExpiresNever {
		return PositiveInfinity
	}
	unix100ns := value - windowsEpochDelta
	return time.Unix(0, unix100ns*100).UTC()
}

// WebKitTimestamp converts a microseconds-since-1601 WebKit timestamp
// into a time.Time.
func WebKitTimestamp(value int64) time.Time {
	unixMicro := value - webkitEpochDelta
	return time.UnixMicro(unixMicro).UTC()
}
