// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSIDRoundTrip(t *testing.T) {
	sid := "S-1-5-21-1004336348-1177238915-682003330-512"

	raw, err := WriteSID(sid, false)
	require.NoError(t, err)

	got, err := ReadSID(raw, false)
	require.NoError(t, err)
	assert.Equal(t, sid, got)
}

func TestSIDRoundTripSwapLast(t *testing.T) {
	sid := "S-1-5-21-1004336348-1177238915-682003330-512"

	raw, err := WriteSID(sid, true)
	require.NoError(t, err)

	got, err := ReadSID(raw, true)
	require.NoError(t, err)
	assert.Equal(t, sid, got)

	// Decoding the same bytes without swapLast should yield a
	// different final sub-authority, proving swapLast actually
	// changes the byte order read back.
	gotNoSwap, err := ReadSID(raw, false)
	require.NoError(t, err)
	assert.NotEqual(t, got, gotNoSwap)
}

func TestReadSIDRejectsTruncated(t *testing.T) {
	_, err := ReadSID([]byte{1, 2, 3}, false)
	require.Error(t, err)
}

func TestWriteSIDRejectsMalformed(t *testing.T) {
	_, err := WriteSID("not-a-sid", false)
	require.Error(t, err)
}
