// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winutil

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/dissect-go/dissect/dberrors"
)

// ReadSID decodes a binary SID in the wire format used both by
// LDAP_SID (security descriptors, §4.5) and by the NTDS attribute
// storage encoding (§4.1, OID 2.5.5.17).
//
// Layout: revision(u8), sub_authority_count(u8), authority(6 bytes,
// big-endian), sub_authorities (little-endian 32-bit each). When
// swapLast is set (the NTDS attribute-storage encoding), the final
// sub-authority is stored byte-reversed relative to the others so
// that RIDs sort naturally within the index.
func ReadSID(data []byte, swapLast bool) (string, error) {
	if len(data) < 8 {
		return "", fmt.Errorf("%w: SID too short", dberrors.ErrTruncated)
	}

	revision := data[0]
	subAuthorityCount := int(data[1])
	authority := uint64(0)
	for _, b := range data[2:8] {
		authority = (authority << 8) | uint64(b)
	}

	want := 8 + 4*subAuthorityCount
	if len(data) < want {
		return "", fmt.Errorf("%w: SID sub-authority count %d exceeds data length", dberrors.ErrTruncated, subAuthorityCount)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", revision, authority)

	for i := 0; i < subAuthorityCount; i++ {
		off := 8 + 4*i
		var v uint32
		if swapLast && i == subAuthorityCount-1 {
			v = binary.BigEndian.Uint32(data[off : off+4])
		} else {
			v = binary.LittleEndian.Uint32(data[off : off+4])
		}
		fmt.Fprintf(&sb, "-%d", v)
	}

	return sb.String(), nil
}

// WriteSID is the inverse of ReadSID: it encodes a "S-1-5-..." string
// back to its binary wire form.
func WriteSID(sid string, swapLast bool) ([]byte, error) {
	parts := strings.Split(sid, "-")
	if len(parts) < 3 || parts[0] != "S" {
		return nil, fmt.Errorf("%w: malformed SID string %q", dberrors.ErrInvalidFormat, sid)
	}

	revision, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed SID revision in %q", dberrors.ErrInvalidFormat, sid)
	}

	authority, err := strconv.ParseUint(parts[2], 10, 48)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed SID authority in %q", dberrors.ErrInvalidFormat, sid)
	}

	subAuthorities := parts[3:]
	out := make([]byte, 8+4*len(subAuthorities))
	out[0] = byte(revision)
	out[1] = byte(len(subAuthorities))
	for i := 0; i < 6; i++ {
		out[7-i] = byte(authority)
		authority >>= 8
	}

	for i, raw := range subAuthorities {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed SID sub-authority %q in %q", dberrors.ErrInvalidFormat, raw, sid)
		}

		off := 8 + 4*i
		if swapLast && i == len(subAuthorities)-1 {
			binary.BigEndian.PutUint32(out[off:off+4], uint32(v))
		} else {
			binary.LittleEndian.PutUint32(out[off:off+4], uint32(v))
		}
	}

	return out, nil
}
