// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package ntds reads an Active Directory NTDS.dit database: the
// schema-driven object model layered on top of an ESE datatable, its
// link table, and its security-descriptor table.
package ntds

import (
	"fmt"

	"github.com/dissect-go/dissect/dberrors"
)

// Fixed governsID (ATTRTYP) values for the three bootstrap classes that every NTDS.dit
// carries before any schema row can be read from the datatable.
const (
	classTop             = 0x00010000
	classClassSchema     = 0x0003000D
	classAttributeSchema = 0x0003000E
)

// fixedColumnMap maps the handful of ESE columns whose physical name
// never follows the ATT<type><id> convention, because they predate
// the attribute-driven schema or are ESE/NTDS bookkeeping columns.
var fixedColumnMap = map[string]string{
	"DNT":          "DNT_col",
	"PDNT":         "PDNT_col",
	"OBJ":          "OBJ_col",
	"RDNtyp":       "RDNtyp_col",
	"cnt":          "cnt_col",
	"ab_cnt":       "ab_cnt_col",
	"time":         "time_col",
	"NCDNT":        "NCDNT_col",
	"recycleTime":  "recycle_time_col",
	"Ancestors":    "Ancestors_col",
	"objectClass":  "ATTc0",
	"cn":              "ATTm3",
	"isDeleted":       "ATTi131120",
	"instanceType":    "ATTj131073",
	"lDAPDisplayName": "ATTm131532",
	"attributeSyntax": "ATTc131104",
	"attributeID":     "ATTc131102",
	"governsID":       "ATTc131094",
	"objectCategory":  "ATTb590606",
	"linkId":          "ATTj131122",
}

// oidToType maps an LDAP attribute-syntax OID (2.5.5.x) to the single
// character ESE encodes into the ATT<type><id> column name for any
// attribute carrying that syntax.
var oidToType = map[string]byte{
	"2.5.5.1":  'b', // DN
	"2.5.5.2":  'c', // OID
	"2.5.5.3":  'm', // CaseExact String
	"2.5.5.4":  'm', // CaseIgnore String
	"2.5.5.5":  'm', // Printable/IA5 String
	"2.5.5.6":  'n', // Numeric String
	"2.5.5.7":  'b', // DN-Binary
	"2.5.5.8":  'f', // Boolean
	"2.5.5.9":  'i', // Integer/Enumeration
	"2.5.5.10": 'd', // Octet String
	"2.5.5.11": 'l', // Generalized Time
	"2.5.5.12": 'm', // Unicode
	"2.5.5.13": 'd', // Presentation Address
	"2.5.5.14": 'b', // DN-String
	"2.5.5.15": 'd', // NT Security Descriptor
	"2.5.5.16": 'j', // Large Integer/Interval
	"2.5.5.17": 'r', // SID (Octet String variant)
}

// oidPrefix maps the upper 16 bits of an ATTRTYP value to the OID arc
// it belongs to; attrtypToOID appends the lower 16 bits as the final
// arc component.
var oidPrefix = map[uint32]string{
	0x00000000: "2.5.4",
	0x00010000: "2.5.6",
	0x00020000: "2.5.5",
	0x00030000: "2.5.21",
	0x00080000: "1.2.840.113556.1.2",
	0x00090000: "1.2.840.113556.1.4",
	0x000A0000: "1.2.840.113556.1.5",
	0x000B0000: "1.2.840.113556.1.5.7000",
	0x000C0000: "2.5.18",
	0x000D0000: "2.5.20",
	0x00130000: "1.2.840.113556.1.3",
	0x00140000: "1.2.840.113556.1.3.0",
	0x00150000: "2.5.13",
	0x00160000: "1.3.6.1.4.1.1466.115.121.1",
	0x00170000: "1.2.840.113556.1.4.260",
	0x00180000: "1.2.840.113556.1.4.261",
	0x00190000: "1.2.840.113556.1.4.262",
	0x001A0000: "1.2.840.113556.1.4.263",
	0x001B0000: "0.9.2342.19200300.100.1",
	0x001C0000: "2.16.840.1.113730.3.1",
	0x001D0000: "1.2.840.113556.1.5.7000.2",
	0x001E0000: "1.2.840.113556.1.4.1327",
	0x001F0000: "1.2.840.113556.1.4.1328",
	0x00200000: "1.2.840.113556.1.4.1329",
	0x00210000: "1.2.840.113556.1.4.1330",
	0x00220000: "1.2.840.113556.1.4.1331",
	0x00230000: "1.2.840.113556.1.4.1332",
	0x00240000: "1.2.840.113556.1.4.1333",
}

// attrtypToOID converts a raw ATTRTYP integer into its dotted OID
// string using the upper-16/lower-16 split NTDS stores it with.
func attrtypToOID(value uint32) (string, error) {
	prefix, ok := oidPrefix[value&0xFFFF0000]
	if !ok {
		return "", fmt.Errorf("%w: unknown ATTRTYP prefix 0x%08x", dberrors.ErrInvalidFormat, value)
	}
	return fmt.Sprintf("%s.%d", prefix, value&0xFFFF), nil
}

// SchemaEntry describes one governed class or attribute found while
// walking the Schema container: its datatable DNT, its ATTRTYP/OID
// pair, and its lDAPDisplayName.
type SchemaEntry struct {
	DNT        int32
	OID        string
	ATTRTYP    uint32
	LDAPName   string
	ColumnName string
	TypeOID    string
	LinkID     *int32
}

// Schema indexes every ClassSchema and AttributeSchema object found
// under CN=Schema,CN=Configuration,<root> by the six keys callers
// look attributes up by: DNT, OID, ATTRTYP, ldapDisplayName, the
// physical ESE column name it is stored under, and link ID.
type Schema struct {
	byDNT        map[int32]*SchemaEntry
	byOID        map[string]*SchemaEntry
	byATTRTYP    map[uint32]*SchemaEntry
	byLDAPName   map[string]*SchemaEntry
	byColumnName map[string]*SchemaEntry
	byLinkID     map[int32]*SchemaEntry
}

func newSchema() *Schema {
	return &Schema{
		byDNT:        make(map[int32]*SchemaEntry),
		byOID:        make(map[string]*SchemaEntry),
		byATTRTYP:    make(map[uint32]*SchemaEntry),
		byLDAPName:   make(map[string]*SchemaEntry),
		byColumnName: make(map[string]*SchemaEntry),
		byLinkID:     make(map[int32]*SchemaEntry),
	}
}

func (s *Schema) add(e *SchemaEntry) {
	s.byDNT[e.DNT] = e
	s.byOID[e.OID] = e
	s.byATTRTYP[e.ATTRTYP] = e
	s.byLDAPName[e.LDAPName] = e
	if e.ColumnName != "" {
		s.byColumnName[e.ColumnName] = e
	}
	if e.LinkID != nil {
		s.byLinkID[*e.LinkID] = e
	}
}

// SchemaLookup selects exactly one of its fields to look an entry up
// by; calling Schema.Lookup with more than one, or none, is a caller
// error reported via dberrors.ErrAmbiguousLookup / dberrors.ErrInvalidArgument.
type SchemaLookup struct {
	DNT        *int32
	OID        *string
	ATTRTYP    *uint32
	LDAPName   *string
	ColumnName *string
	LinkID     *int32
}

// Lookup resolves a SchemaEntry by exactly one populated key of q.
func (s *Schema) Lookup(q SchemaLookup) (*SchemaEntry, error) {
	set := 0
	var entry *SchemaEntry
	var ok bool

	if q.DNT != nil {
		set++
		entry, ok = s.byDNT[*q.DNT]
	}
	if q.OID != nil {
		set++
		entry, ok = s.byOID[*q.OID]
	}
	if q.ATTRTYP != nil {
		set++
		entry, ok = s.byATTRTYP[*q.ATTRTYP]
	}
	if q.LDAPName != nil {
		set++
		entry, ok = s.byLDAPName[*q.LDAPName]
	}
	if q.ColumnName != nil {
		set++
		entry, ok = s.byColumnName[*q.ColumnName]
	}
	if q.LinkID != nil {
		set++
		entry, ok = s.byLinkID[*q.LinkID]
	}

	if set == 0 {
		return nil, fmt.Errorf("%w: schema lookup requires exactly one key", dberrors.ErrInvalidArgument)
	}
	if set > 1 {
		return nil, fmt.Errorf("%w: schema lookup received %d keys, want 1", dberrors.ErrAmbiguousLookup, set)
	}
	if !ok {
		return nil, fmt.Errorf("%w: schema entry", dberrors.ErrNotFound)
	}
	return entry, nil
}

// columnNameFor derives the physical ESE column name for a governed
// attribute from its ATTRTYP and the syntax OID of its attributeSyntax,
// following the ATT<type><id> convention; fixed attributes bypass this
// via fixedColumnMap.
func columnNameFor(ldapName string, attrtyp uint32, syntaxOID string) (string, error) {
	if fixed, ok := fixedColumnMap[ldapName]; ok {
		return fixed, nil
	}
	typeLetter, ok := oidToType[syntaxOID]
	if !ok {
		return "", fmt.Errorf("%w: unknown attribute syntax OID %q", dberrors.ErrInvalidFormat, syntaxOID)
	}
	return fmt.Sprintf("ATT%c%d", typeLetter, attrtyp&0xFFFFFF), nil
}

// buildSchema walks CN=Schema,CN=Configuration,<root> collecting every
// ClassSchema and AttributeSchema child object, per the documented
// bootstrap algorithm: root() -> child "Configuration" -> child
// "Schema" -> every child of Schema whose objectClass is one of the
// two governing classes.
func buildSchema(db *Database) (*Schema, error) {
	schema := newSchema()

	root, err := db.rootDNT()
	if err != nil {
		return nil, err
	}

	configDNT, err := db.childDNTByRDN(root, "Configuration")
	if err != nil {
		return nil, fmt.Errorf("locating CN=Configuration: %w", err)
	}
	schemaDNT, err := db.childDNTByRDN(configDNT, "Schema")
	if err != nil {
		return nil, fmt.Errorf("locating CN=Schema: %w", err)
	}

	children, err := db.childrenOf(schemaDNT)
	if err != nil {
		return nil, err
	}

	for _, row := range children {
		classes := asInt32List(row.Get("ATTc0"))
		isClassSchema := containsInt32(classes, classClassSchema)
		isAttributeSchema := containsInt32(classes, classAttributeSchema)
		if !isClassSchema && !isAttributeSchema {
			continue
		}

		dnt, _ := row.Get("DNT_col").(int32)
		ldapName, _ := row.Get("ATTm131532").(string)

		var attrtyp uint32
		if isClassSchema {
			if v, ok := toUint32(row.Get("ATTc131094")); ok {
				attrtyp = v
			}
		} else {
			if v, ok := toUint32(row.Get("ATTc131102")); ok {
				attrtyp = v
			}
		}

		oid, err := attrtypToOID(attrtyp)
		if err != nil {
			if db.log != nil {
				db.log.Warnf("skipping schema row DNT=%d: %v", dnt, err)
			}
			continue
		}

		entry := &SchemaEntry{
			DNT:      dnt,
			OID:      oid,
			ATTRTYP:  attrtyp,
			LDAPName: ldapName,
		}

		if isAttributeSchema {
			if syntaxOID, ok := row.Get("ATTc131104").(string); ok {
				entry.TypeOID = syntaxOID
				if colName, err := columnNameFor(ldapName, attrtyp, syntaxOID); err == nil {
					entry.ColumnName = colName
				}
			}
			if linkID, ok := toInt32Ptr(row.Get("ATTj131122")); ok {
				entry.LinkID = linkID
			}
		}

		schema.add(entry)
	}

	return schema, nil
}

func asInt32List(v any) []int32 {
	switch x := v.(type) {
	case int32:
		return []int32{x}
	case []int32:
		return x
	case []any:
		out := make([]int32, 0, len(x))
		for _, e := range x {
			if n, ok := toInt32(e); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

func containsInt32(list []int32, v int32) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func toInt32(v any) (int32, bool) {
	switch x := v.(type) {
	case int32:
		return x, true
	case int:
		return int32(x), true
	case int64:
		return int32(x), true
	default:
		return 0, false
	}
}

func toInt32Ptr(v any) (*int32, bool) {
	n, ok := toInt32(v)
	if !ok {
		return nil, false
	}
	return &n, true
}

func toUint32(v any) (uint32, bool) {
	switch x := v.(type) {
	case uint32:
		return x, true
	case int32:
		return uint32(x), true
	case int:
		return uint32(x), true
	case int64:
		return uint32(x), true
	default:
		return 0, false
	}
}
