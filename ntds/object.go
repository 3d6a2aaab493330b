// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ntds

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/esedb"
)

// Known object classes, exposed as named constants for the governed
// classes the object model gives dedicated accessors to. An Object is
// a single tagged type carrying every decoded attribute regardless of
// class; IsA and the class-specific accessor methods below are what
// distinguish behavior, rather than a Go type per AD class.
const (
	ClassTop               = "top"
	ClassClassSchema       = "classSchema"
	ClassAttributeSchema   = "attributeSchema"
	ClassDomain            = "domain"
	ClassDomainDNS         = "domainDNS"
	ClassBuiltinDomain     = "builtinDomain"
	ClassConfiguration     = "configuration"
	ClassQuotaContainer    = "msDS-QuotaContainer"
	ClassCrossRefContainer = "crossRefContainer"
	ClassSitesContainer    = "sitesContainer"
	ClassLocality          = "locality"
	ClassPhysicalLocation  = "physicalLocation"
	ClassContainer         = "container"
	ClassOrganizationalUnit = "organizationalUnit"
	ClassLostAndFound      = "lostAndFound"
	ClassGroup             = "group"
	ClassServer            = "server"
	ClassPerson            = "person"
	ClassOrganizationalPerson = "organizationalPerson"
	ClassUser              = "user"
	ClassComputer          = "computer"
)

// InstanceType bit flags, per the instanceType attribute every naming
// context head and replica carries (MS-ADTS 2.2.9). Only the bit the
// object model consults is named.
const (
	// InstanceTypeHeadOfNamingContext marks the object as the root of
	// a naming context (e.g. the domainDNS object heading a domain
	// partition).
	InstanceTypeHeadOfNamingContext uint32 = 0x00000001
)

// UserAccountControl bit flags (a subset relevant to is_machine_account
// and account-state reporting).
const (
	UACScript                       uint32 = 0x0001
	UACAccountDisable               uint32 = 0x0002
	UACHomedirRequired              uint32 = 0x0008
	UACLockout                      uint32 = 0x0010
	UACPasswdNotreqd                uint32 = 0x0020
	UACPasswdCantChange             uint32 = 0x0040
	UACNormalAccount                uint32 = 0x0200
	UACInterdomainTrustAccount      uint32 = 0x0800
	UACWorkstationTrustAccount      uint32 = 0x1000
	UACServerTrustAccount           uint32 = 0x2000
	UACDontExpirePassword           uint32 = 0x10000
	UACSmartcardRequired            uint32 = 0x40000
	UACTrustedForDelegation         uint32 = 0x80000
	UACNotDelegated                 uint32 = 0x100000
)

// Object is a materialized NTDS.dit datatable row: the raw row plus
// its decoded, lazily-resolved governed attributes.
type Object struct {
	db  *Database
	row esedb.Row

	objectClass []string
	dnCache     string
}

func newObject(db *Database, row esedb.Row) *Object {
	return &Object{
		db:          db,
		row:         row,
		objectClass: resolveObjectClass(db, row),
	}
}

// resolveObjectClass decodes the objectClass attribute into its list
// of ldapDisplayName strings; a value NTDS itself stores as an
// ordered list of governsID-bearing class DNTs/ATTRTYPs, most specific
// class last.
func resolveObjectClass(db *Database, row esedb.Row) []string {
	raw := row.Get("ATTc0")
	ids := asInt32List(raw)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		entry, err := db.schema.Lookup(SchemaLookup{ATTRTYP: uint32ptr(uint32(id))})
		if err != nil {
			continue
		}
		out = append(out, entry.LDAPName)
	}
	return out
}

// DNT returns the object's datatable row identifier.
func (o *Object) DNT() int32 {
	dnt, _ := o.row.Get("DNT_col").(int32)
	return dnt
}

// PDNT returns the object's parent DNT.
func (o *Object) PDNT() int32 {
	pdnt, _ := o.row.Get("PDNT_col").(int32)
	return pdnt
}

// NCDNT returns the DNT of the naming context this object belongs to.
func (o *Object) NCDNT() int32 {
	ncdnt, _ := o.row.Get("NCDNT_col").(int32)
	return ncdnt
}

// IsDeleted reports whether the object's isDeleted attribute is set,
// i.e. it has been tombstoned. Objects predating isDeleted's presence
// in the schema, or fixtures that omit it, fall back to a non-zero
// recycle time.
func (o *Object) IsDeleted() bool {
	if v, err := o.Get("isDeleted", false); err == nil {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	t, _ := o.row.Get("recycle_time_col").(int64)
	return t != 0
}

// InstanceType returns the object's instanceType bit flags, 0 if the
// object carries none.
func (o *Object) InstanceType() uint32 {
	v, err := o.Get("instanceType", false)
	if err != nil {
		return 0
	}
	n, ok := v.(int64)
	if !ok {
		return 0
	}
	return uint32(n)
}

// IsHeadOfNamingContext reports whether the object's instanceType has
// the HeadOfNamingContext bit set.
func (o *Object) IsHeadOfNamingContext() bool {
	return o.InstanceType()&InstanceTypeHeadOfNamingContext != 0
}

// ObjectClasses returns the object's full governed class chain, most
// specific last.
func (o *Object) ObjectClasses() []string { return o.objectClass }

// IsA reports whether the object's class chain includes class.
func (o *Object) IsA(class string) bool {
	for _, c := range o.objectClass {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// MostSpecificClass returns the last (most derived) entry of the
// object's objectClass chain, the conventional choice of "the" class
// for an object carrying several.
func (o *Object) MostSpecificClass() string {
	if len(o.objectClass) == 0 {
		return ""
	}
	return o.objectClass[len(o.objectClass)-1]
}

// Get returns the value of the named governed attribute, or
// dberrors.ErrAttributeNotFound if the attribute is not in the schema
// at all. raw selects the undecoded storage value (the column's native
// ESE type) instead of the syntax-decoded Go representation; an
// attribute the object simply does not carry still resolves via the
// schema and returns (nil, nil).
func (o *Object) Get(name string, raw bool) (any, error) {
	entry, err := o.db.schema.Lookup(SchemaLookup{LDAPName: &name})
	if err != nil {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrAttributeNotFound, name)
	}
	if entry.ColumnName == "" {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrAttributeNotFound, name)
	}
	rawValue := o.row.Get(entry.ColumnName)
	if raw {
		return rawValue, nil
	}
	if rawValue == nil {
		return nil, nil
	}
	return o.db.decodeValue(name, rawValue)
}

// MustGet is Get without an error return, for call sites that treat a
// decode failure the same as an absent attribute.
func (o *Object) MustGet(name string) any {
	v, err := o.Get(name, false)
	if err != nil {
		return nil
	}
	return v
}

// AsDict decodes and returns every governed attribute this object
// carries, keyed by ldapDisplayName.
func (o *Object) AsDict() map[string]any {
	out := make(map[string]any)
	for col := range o.row {
		entry, err := o.db.schema.Lookup(SchemaLookup{ColumnName: &col})
		if err != nil {
			continue
		}
		v, err := o.db.decodeValue(entry.LDAPName, o.row.Get(col))
		if err != nil {
			continue
		}
		out[entry.LDAPName] = v
	}
	return out
}

// Name returns the object's relative naming value (its OBJ_col, the
// RDN's value component).
func (o *Object) Name() string {
	return stringField(o.row.Get("OBJ_col"))
}

// DistinguishedName returns the object's full, upper-cased DN.
func (o *Object) DistinguishedName() (string, error) {
	if o.dnCache != "" {
		return o.dnCache, nil
	}
	dn, err := o.db.distinguishedName(o.DNT())
	if err != nil {
		return "", err
	}
	o.dnCache = dn
	return dn, nil
}

// DN is a shorthand alias for DistinguishedName.
func (o *Object) DN() (string, error) { return o.DistinguishedName() }

// SID returns the object's objectSid attribute, if present.
func (o *Object) SID() (string, error) {
	v, err := o.Get("objectSid", false)
	if err != nil || v == nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// GUID returns the object's objectGUID attribute as raw bytes.
func (o *Object) GUID() ([]byte, error) {
	v, err := o.Get("objectGUID", false)
	if err != nil || v == nil {
		return nil, err
	}
	b, _ := v.([]byte)
	return b, nil
}

// Parent returns the object's direct parent.
func (o *Object) Parent() (*Object, error) {
	pdnt := o.PDNT()
	if pdnt == 0 {
		return nil, fmt.Errorf("%w: object has no parent", dberrors.ErrNotFound)
	}
	return o.db.ObjectByDNT(pdnt)
}

// Ancestors decodes the Ancestors_col attribute: a sequence of
// little-endian uint32 DNTs from the partition root down to (but not
// including) this object, stored most-distant-first; Ancestors
// returns them reversed so index 0 is this object's immediate parent.
func (o *Object) Ancestors() ([]int32, error) {
	raw, _ := o.row.Get("Ancestors_col").([]byte)
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: Ancestors_col length %d not a multiple of 4", dberrors.ErrInvalidFormat, len(raw))
	}
	n := len(raw) / 4
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[n-1-i] = int32(v)
	}
	return out, nil
}

// Children returns every direct child of this object.
func (o *Object) Children() ([]*Object, error) {
	rows, err := o.db.childrenOf(o.DNT())
	if err != nil {
		return nil, err
	}
	out := make([]*Object, 0, len(rows))
	for _, row := range rows {
		out = append(out, newObject(o.db, row))
	}
	return out, nil
}

// Child returns the direct child with the given RDN value.
func (o *Object) Child(name string) (*Object, error) {
	dnt, err := o.db.childDNTByRDN(o.DNT(), name)
	if err != nil {
		return nil, err
	}
	return o.db.ObjectByDNT(dnt)
}

// Partition returns the naming context root this object belongs to.
func (o *Object) Partition() (*Object, error) {
	return o.db.ObjectByDNT(o.NCDNT())
}

// Links returns the objects this object points to via the named
// linked attribute.
func (o *Object) Links(attribute string) ([]*Object, error) {
	if o.db.link == nil {
		return nil, fmt.Errorf("%w: link table not opened", dberrors.ErrUnsupported)
	}
	dnts, err := o.db.link.Links(o.DNT(), attribute)
	if err != nil {
		return nil, err
	}
	return o.resolveAll(dnts)
}

// Backlinks returns the objects that point to this object via the
// named linked attribute.
func (o *Object) Backlinks(attribute string) ([]*Object, error) {
	if o.db.link == nil {
		return nil, fmt.Errorf("%w: link table not opened", dberrors.ErrUnsupported)
	}
	dnts, err := o.db.link.Backlinks(o.DNT(), attribute)
	if err != nil {
		return nil, err
	}
	return o.resolveAll(dnts)
}

func (o *Object) resolveAll(dnts []int32) ([]*Object, error) {
	out := make([]*Object, 0, len(dnts))
	for _, dnt := range dnts {
		obj, err := o.db.ObjectByDNT(dnt)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// SecurityDescriptor returns the object's parsed nTSecurityDescriptor.
func (o *Object) SecurityDescriptor() (*SecurityDescriptor, error) {
	v, err := o.Get("nTSecurityDescriptor", false)
	if err != nil || v == nil {
		return nil, err
	}
	sd, _ := v.(*SecurityDescriptor)
	return sd, nil
}

// --- Group-specific accessors ---

// Members returns every user that belongs to this group, via both the
// "member" linked attribute and via primaryGroupID pointing at this
// group's RID.
func (o *Object) Members() ([]*Object, error) {
	if !o.IsA(ClassGroup) {
		return nil, fmt.Errorf("%w: Members requires a group object", dberrors.ErrInvalidArgument)
	}

	members, err := o.Links("member")
	if err != nil && !errors.Is(err, dberrors.ErrUnsupported) {
		return nil, err
	}

	sid, err := o.SID()
	if err == nil && sid != "" {
		if rid, ok := lastRID(sid); ok {
			ldapName := "primaryGroupID"
			entry, serr := o.db.schema.Lookup(SchemaLookup{LDAPName: &ldapName})
			if serr == nil && entry.ColumnName != "" {
				idx, ferr := o.db.data.indexByColumns(entry.ColumnName)
				if ferr == nil {
					matches, ferr := idx.Cursor().FindAll(map[string]any{entry.ColumnName: rid})
					if ferr == nil {
						for _, row := range matches {
							members = append(members, newObject(o.db, row))
						}
					}
				}
			}
		}
	}

	return members, nil
}

// IsMember reports whether user is a member of this group.
func (o *Object) IsMember(user *Object) (bool, error) {
	members, err := o.Members()
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.DNT() == user.DNT() {
			return true, nil
		}
	}
	return false, nil
}

func lastRID(sid string) (int32, bool) {
	idx := strings.LastIndex(sid, "-")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(sid[idx+1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

// --- User-specific accessors ---

// SAMAccountName returns the user's sAMAccountName attribute.
func (o *Object) SAMAccountName() string {
	v, _ := o.Get("sAMAccountName", false)
	s, _ := v.(string)
	return s
}

// PrimaryGroupID returns the user's primaryGroupID attribute.
func (o *Object) PrimaryGroupID() int32 {
	v, _ := o.Get("primaryGroupID", false)
	n, _ := v.(int64)
	return int32(n)
}

// UserAccountControl returns the raw userAccountControl bit flags.
func (o *Object) UserAccountControl() uint32 {
	v, _ := o.Get("userAccountControl", false)
	n, _ := v.(int64)
	return uint32(n)
}

// IsMachineAccount reports whether the user represents a computer
// account, per its WORKSTATION_TRUST_ACCOUNT UAC flag.
func (o *Object) IsMachineAccount() bool {
	return o.UserAccountControl()&UACWorkstationTrustAccount != 0
}

// Groups returns every group this user belongs to: both the groups it
// is directly linked to via memberOf, and its primary group resolved
// by RID against the domain SID (primary group membership is implicit
// and carries no memberOf backlink of its own).
func (o *Object) Groups() ([]*Object, error) {
	groups, err := o.Backlinks("memberOf")
	if err != nil && !errors.Is(err, dberrors.ErrUnsupported) {
		return nil, err
	}

	sid, err := o.SID()
	if err == nil && sid != "" {
		if idx := strings.LastIndex(sid, "-"); idx > 0 {
			domainSID := sid[:idx]
			primaryGroupSID := fmt.Sprintf("%s-%d", domainSID, o.PrimaryGroupID())
			if g, found, ferr := o.db.findByObjectSID(primaryGroupSID); ferr == nil && found {
				groups = append(groups, g)
			}
		}
	}

	return groups, nil
}

// IsMemberOf reports whether this user belongs to group.
func (o *Object) IsMemberOf(group *Object) (bool, error) {
	groups, err := o.Groups()
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.DNT() == group.DNT() {
			return true, nil
		}
	}
	return false, nil
}

// --- Computer-specific accessors ---

// ManagedBy returns the object listed in this computer's managedBy
// attribute, if any.
func (o *Object) ManagedBy() (*Object, error) {
	v, err := o.Get("managedBy", false)
	if err != nil || v == nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: managedBy resolution requires DN-indexed lookup", dberrors.ErrUnsupported)
}
