// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package localstorage decodes Chromium's DOM LocalStorage backing
// store, which is kept as plain LevelDB records: a META:/METAACCESS:
// timestamp record per host, and a "_"-prefixed record per stored
// key/value pair.
package localstorage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/winutil"
	"github.com/dissect-go/dissect/leveldb"
)

const (
	metaPrefix       = "META:"
	metaAccessPrefix = "METAACCESS:"
	recordPrefix     = '_'

	encodingUTF16LE = 0x00
	encodingLatin1  = 0x01
)

// Record is one decoded LocalStorage key/value pair for a host.
//
// Metadata association is explicitly heuristic (spec.md §9): the
// most recent META key with a sequence strictly less than the
// record's supplies LastModified, and the earliest such key supplies
// Created; LastAccessed comes the same way from the host's METAACCESS
// keys. A host with no qualifying META key leaves LastModified and
// Created nil, and one with no qualifying METAACCESS key leaves
// LastAccessed nil.
type Record struct {
	Name     string
	Value    string
	Sequence uint64
	State    leveldb.State

	Created      *time.Time
	LastModified *time.Time
	LastAccessed *time.Time
}

// Store is every record belonging to one host (origin).
type Store struct {
	Host    string
	Records []Record
}

type metaEntry struct {
	sequence  uint64
	timestamp time.Time
}

// BuildStores scans every record in src and groups them into
// per-host Stores, associating each record with its nearest-preceding
// META/METAACCESS timestamp per the heuristic above.
func BuildStores(src leveldb.Source) (map[string]*Store, error) {
	type rawRecord struct {
		host     string
		name     string
		value    string
		sequence uint64
		state    leveldb.State
	}

	metasByHost := make(map[string][]metaEntry)
	accessByHost := make(map[string][]metaEntry)
	var rawRecords []rawRecord

	var firstErr error
	src.Records(func(r leveldb.Record) bool {
		switch {
		case bytes.HasPrefix(r.Key, []byte(metaPrefix)):
			host := string(r.Key[len(metaPrefix):])
			ts := decodeMetaTimestamp(r.Value)
			metasByHost[host] = append(metasByHost[host], metaEntry{sequence: r.Sequence, timestamp: ts})

		case bytes.HasPrefix(r.Key, []byte(metaAccessPrefix)):
			host := string(r.Key[len(metaAccessPrefix):])
			ts := decodeMetaTimestamp(r.Value)
			accessByHost[host] = append(accessByHost[host], metaEntry{sequence: r.Sequence, timestamp: ts})

		case len(r.Key) > 0 && r.Key[0] == recordPrefix:
			host, name, err := parseRecordKey(r.Key)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			value, err := decodeEncoded(r.Value)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			rawRecords = append(rawRecords, rawRecord{
				host: host, name: name, value: value,
				sequence: r.Sequence, state: r.State,
			})
		}
		return true
	})

	for _, metas := range metasByHost {
		sort.Slice(metas, func(i, j int) bool { return metas[i].sequence < metas[j].sequence })
	}
	for _, metas := range accessByHost {
		sort.Slice(metas, func(i, j int) bool { return metas[i].sequence < metas[j].sequence })
	}

	stores := make(map[string]*Store)
	storeOf := func(host string) *Store {
		s, ok := stores[host]
		if !ok {
			s = &Store{Host: host}
			stores[host] = s
		}
		return s
	}

	for host := range metasByHost {
		storeOf(host)
	}
	for host := range accessByHost {
		storeOf(host)
	}

	for _, rr := range rawRecords {
		s := storeOf(rr.host)
		rec := Record{Name: rr.name, Value: rr.value, Sequence: rr.sequence, State: rr.state}

		modMetas := metasByHost[rr.host]
		if latest, first, ok := nearestPreceding(modMetas, rr.sequence); ok {
			t := latest
			rec.LastModified = &t
			c := first
			rec.Created = &c
		}
		accMetas := accessByHost[rr.host]
		if latest, _, ok := nearestPreceding(accMetas, rr.sequence); ok {
			t := latest
			rec.LastAccessed = &t
		}

		s.Records = append(s.Records, rec)
	}

	return stores, firstErr
}

// nearestPreceding returns the timestamp of the meta entry with the
// greatest sequence strictly less than seq (the "latest" result), and
// separately the timestamp of the earliest meta entry with a sequence
// less than seq (the "first"/Created result). metas must be sorted
// ascending by sequence.
func nearestPreceding(metas []metaEntry, seq uint64) (latest, first time.Time, ok bool) {
	var have bool
	for _, m := range metas {
		if m.sequence >= seq {
			break
		}
		if !have {
			first = m.timestamp
			have = true
		}
		latest = m.timestamp
	}
	return latest, first, have
}

// decodeMetaTimestamp reads the WebKit-epoch microsecond timestamp
// LocalStorageAreaWriteMetaData/LocalStorageAreaAccessMetaData carry
// as their leading 8-byte little-endian field. Values shorter than
// that are treated as carrying no timestamp.
func decodeMetaTimestamp(value []byte) time.Time {
	if len(value) < 8 {
		return time.Time{}
	}
	return winutil.WebKitTimestamp(int64(binary.LittleEndian.Uint64(value[:8])))
}

// parseRecordKey splits a "_<host>\x00<rest>" record key into its
// host and (encoding-decoded) name.
func parseRecordKey(key []byte) (host, name string, err error) {
	rest := key[1:]
	sep := bytes.IndexByte(rest, 0)
	if sep < 0 {
		return "", "", fmt.Errorf("%w: LocalStorage record key missing host separator", dberrors.ErrInvalidFormat)
	}
	host = string(rest[:sep])
	name, err = decodeEncoded(rest[sep+1:])
	return host, name, err
}

// decodeEncoded decodes a LocalStorage string payload: a leading
// selector byte (0x00 = utf-16-le, 0x01 = latin-1) followed by the
// encoded bytes.
func decodeEncoded(data []byte) (string, error) {
	if len(data) < 1 {
		return "", nil
	}
	switch data[0] {
	case encodingUTF16LE:
		return winutil.DecodeUTF16LE(data[1:])
	case encodingLatin1:
		return winutil.DecodeLatin1(data[1:]), nil
	default:
		return "", fmt.Errorf("%w: unrecognized LocalStorage string encoding selector 0x%02x", dberrors.ErrInvalidFormat, data[0])
	}
}
