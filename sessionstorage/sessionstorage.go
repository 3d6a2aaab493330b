// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package sessionstorage decodes Chromium's DOM SessionStorage
// backing store: a "namespace-<uuid>-<host>" record per tab/host
// session, and a "map-<id>-<name>" record per stored key.
package sessionstorage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/internal/winutil"
	"github.com/dissect-go/dissect/leveldb"
)

const (
	namespacePrefix = "namespace-"
	mapPrefix       = "map-"
)

// Namespace is one SessionStorage session, identified by the UUID
// Chromium assigns a tab/session and the host it was recorded for.
type Namespace struct {
	UUID  uuid.UUID
	Host  string
	ID    int64
	Items []Item
}

// Item is one key/value pair stored under a Namespace's map-<id>.
type Item struct {
	Name  string
	Value string
}

// BuildNamespaces scans every record in src and groups "map-<id>-*"
// records under the "namespace-<uuid>-<host>" record that shares the
// same map id.
func BuildNamespaces(src leveldb.Source) ([]*Namespace, error) {
	byID := make(map[int64]*Namespace)
	var order []int64
	itemsByID := make(map[int64][]Item)

	var firstErr error
	src.Records(func(r leveldb.Record) bool {
		key := string(r.Key)
		switch {
		case strings.HasPrefix(key, namespacePrefix):
			ns, err := parseNamespaceKey(key)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			id, _, err := decodeVarintBytes(r.Value)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			ns.ID = id
			if _, ok := byID[id]; !ok {
				order = append(order, id)
			}
			byID[id] = ns

		case strings.HasPrefix(key, mapPrefix):
			id, name, err := parseMapKey(key)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			value, err := winutil.DecodeUTF16LE(r.Value)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return true
			}
			itemsByID[id] = append(itemsByID[id], Item{Name: name, Value: value})
		}
		return true
	})

	out := make([]*Namespace, 0, len(order))
	for _, id := range order {
		ns := byID[id]
		ns.Items = itemsByID[id]
		out = append(out, ns)
	}
	return out, firstErr
}

// parseNamespaceKey splits "namespace-<uuid>-<host>" into its UUID
// and host components.
func parseNamespaceKey(key string) (*Namespace, error) {
	rest := key[len(namespacePrefix):]
	// A UUID is 36 characters (8-4-4-4-12); the host is whatever
	// follows the separating dash.
	if len(rest) < 37 || rest[36] != '-' {
		return nil, fmt.Errorf("%w: malformed SessionStorage namespace key %q", dberrors.ErrInvalidFormat, key)
	}
	id, err := uuid.Parse(rest[:36])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed SessionStorage namespace uuid: %v", dberrors.ErrInvalidFormat, err)
	}
	host := rest[37:]
	return &Namespace{UUID: id, Host: host}, nil
}

// parseMapKey splits "map-<id>-<name>" into the namespace id it
// belongs to and the stored item's name.
func parseMapKey(key string) (int64, string, error) {
	rest := key[len(mapPrefix):]
	dash := strings.IndexByte(rest, '-')
	if dash < 0 {
		return 0, "", fmt.Errorf("%w: malformed SessionStorage map key %q", dberrors.ErrInvalidFormat, key)
	}
	id, err := strconv.ParseInt(rest[:dash], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: malformed SessionStorage map id in %q", dberrors.ErrInvalidFormat, key)
	}
	return id, rest[dash+1:], nil
}

// decodeVarintBytes reads the LevelDB-style base-128 varint encoding
// of a namespace's integer id.
func decodeVarintBytes(data []byte) (int64, int, error) {
	var result int64
	for i := 0; i < len(data); i++ {
		b := data[i]
		result |= int64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated varint", dberrors.ErrTruncated)
}
