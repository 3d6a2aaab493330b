// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ntds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/esedb"
	"github.com/dissect-go/dissect/internal/winutil"
	"github.com/dissect-go/dissect/ldapfilter"
)

// Class and attribute ATTRTYP values used by the fixture. Arbitrary but
// self-consistent with oidPrefix's arcs, so attrtypToOID can resolve
// them - except isDeleted/instanceType, whose values are the real NTDS
// ATTRTYPs (131120/131073), matching the fixed physical column names
// fixedColumnMap already binds them to.
const (
	attrtypTop          = 0x00010000
	attrtypDomainDNS    = 0x00010001
	attrtypUser         = 0x00010003
	attrtypGroup        = 0x00010004
	attrtypComputer     = 0x00010005
	attrtypServer       = 0x00010006
	attrtypPerson       = 0x00010007
	attrtypObjectClass  = 0x00090005
	attrtypSAMAccount   = 0x00090001
	attrtypObjectSid    = 0x00090002
	attrtypPrimaryGID   = 0x00090003
	attrtypUAC          = 0x00090004
	attrtypObjectCat    = 0x00090006
	attrtypMember       = 0x00090007
	attrtypMemberOf     = 0x00090008
	attrtypIsDeleted    = 131120
	attrtypInstanceType = 131073

	// rootDNTFixture is the fixture's root object DNT: deliberately not
	// the conventional 2, see buildFixtureDatabase.
	rootDNTFixture int32 = 9
)

// buildFixtureDatabase assembles a minimal but realistic NTDS.dit-shaped
// MemDatabase: a root object, CN=Configuration/CN=Schema carrying just
// enough classSchema/attributeSchema rows to resolve the attributes the
// fixture's objects use, a tombstoned decoy naming-context head, a real
// domain partition, a user, and a group.
func buildFixtureDatabase(t *testing.T) *Database {
	t.Helper()

	mem := esedb.NewMemDatabase()
	dt := mem.AddTable("datatable")

	row := func(dnt, pdnt int32, name string, classes []int32, extra esedb.Row) {
		r := esedb.Row{
			"DNT_col":    dnt,
			"PDNT_col":   pdnt,
			"NCDNT_col":  int32(2),
			"OBJ_col":    name,
			"ATTm131532": name,
			"RDNtyp_col": int32(0),
			"ATTc0":      classes,
		}
		for k, v := range extra {
			r[k] = v
		}
		dt.Insert(r)
	}

	// Partition root and the fixed Configuration/Schema container chain.
	// The root's own DNT is deliberately not 2, to prove rootDNT()
	// actually derives it from the unique PDNT_col==0 row rather than
	// assuming the conventional DNT==2 value every real NTDS.dit happens
	// to use.
	row(rootDNTFixture, 0, "", []int32{attrtypTop}, nil)
	row(3, rootDNTFixture, "Configuration", []int32{attrtypTop}, nil)
	row(4, 3, "Schema", []int32{attrtypTop}, nil)

	// classSchema rows: one per governed class the fixture's objects use.
	classRow := func(dnt int32, ldapName string, governsID int32) {
		dt.Insert(esedb.Row{
			"DNT_col":    dnt,
			"PDNT_col":   int32(4),
			"NCDNT_col":  int32(2),
			"OBJ_col":    ldapName,
			"ATTm131532": ldapName,
			"RDNtyp_col": int32(0),
			"ATTc0":      []int32{classClassSchema},
			"ATTc131094": governsID,
		})
	}
	classRow(100, "top", attrtypTop)
	classRow(101, "domainDNS", attrtypDomainDNS)
	classRow(102, "user", attrtypUser)
	classRow(103, "group", attrtypGroup)
	classRow(104, "computer", attrtypComputer)
	classRow(105, "server", attrtypServer)
	classRow(106, "person", attrtypPerson)

	// attributeSchema rows: one per governed attribute the fixture's
	// objects carry, each naming the syntax OID that (together with
	// fixedColumnMap overrides) determines its physical column.
	attrRow := func(dnt int32, ldapName string, attributeID int32, syntaxOID string) {
		dt.Insert(esedb.Row{
			"DNT_col":    dnt,
			"PDNT_col":   int32(4),
			"NCDNT_col":  int32(2),
			"OBJ_col":    ldapName,
			"ATTm131532": ldapName,
			"RDNtyp_col": int32(0),
			"ATTc0":      []int32{classAttributeSchema},
			"ATTc131102": attributeID,
			"ATTc131104": syntaxOID,
		})
	}
	attrRow(110, "objectClass", attrtypObjectClass, "2.5.5.2")
	attrRow(111, "sAMAccountName", attrtypSAMAccount, "2.5.5.5")
	attrRow(112, "objectSid", attrtypObjectSid, "2.5.5.17")
	attrRow(113, "primaryGroupID", attrtypPrimaryGID, "2.5.5.9")
	attrRow(114, "userAccountControl", attrtypUAC, "2.5.5.9")
	attrRow(115, "isDeleted", attrtypIsDeleted, "2.5.5.8")
	attrRow(116, "instanceType", attrtypInstanceType, "2.5.5.9")
	attrRow(117, "objectCategory", attrtypObjectCat, "2.5.5.1")

	// Linked attributes: "member" (forward, even linkId) and its paired
	// backlink "memberOf" (linkId+1), both resolving to link_base 1 per
	// §4.4's link_id // 2.
	linkedAttrRow := func(dnt int32, ldapName string, attributeID, linkID int32) {
		dt.Insert(esedb.Row{
			"DNT_col":    dnt,
			"PDNT_col":   int32(4),
			"NCDNT_col":  int32(2),
			"OBJ_col":    ldapName,
			"ATTm131532": ldapName,
			"RDNtyp_col": int32(0),
			"ATTc0":      []int32{classAttributeSchema},
			"ATTc131102": attributeID,
			"ATTc131104": "2.5.5.1",
			"ATTj131122": linkID,
		})
	}
	linkedAttrRow(118, "member", attrtypMember, 2)
	linkedAttrRow(119, "memberOf", attrtypMemberOf, 3)

	// The physical columns those attributeSchema rows resolve to, per
	// columnNameFor's ATT<type><id&0xFFFFFF> convention (isDeleted,
	// instanceType and objectCategory are overridden by fixedColumnMap instead, since real
	// NTDS stores them under column names that don't follow the
	// syntax-derived letter).
	const (
		colSAMAccountName  = "ATTm589825"
		colObjectSid       = "ATTr589826"
		colPrimaryGroupID  = "ATTi589827"
		colUserAccountCtrl = "ATTi589828"
		colIsDeleted       = "ATTi131120"
		colInstanceType    = "ATTj131073"
		colObjectCategory  = "ATTb590606"
	)

	// A tombstoned decoy naming-context head, inserted before the real
	// domain so RootDomain's walk must skip it on isDeleted rather than
	// returning the first HeadOfNamingContext-flagged child it meets.
	dt.Insert(esedb.Row{
		"DNT_col":    int32(6),
		"PDNT_col":   rootDNTFixture,
		"NCDNT_col":  rootDNTFixture,
		"OBJ_col":    "deleted-example",
		"ATTm131532": "deleted-example",
		"RDNtyp_col": int32(0),
		"ATTc0":         []int32{attrtypDomainDNS, attrtypTop},
		colInstanceType: int64(InstanceTypeHeadOfNamingContext),
		colIsDeleted:    true,
	})

	// Domain partition, directly under root.
	dt.Insert(esedb.Row{
		"DNT_col":    int32(5),
		"PDNT_col":   rootDNTFixture,
		"NCDNT_col":  rootDNTFixture,
		"OBJ_col":    "example",
		"ATTm131532": "example",
		"RDNtyp_col": int32(0),
		"ATTc0":         []int32{attrtypDomainDNS, attrtypTop},
		colInstanceType: int64(InstanceTypeHeadOfNamingContext),
	})

	groupSID := "S-1-5-21-1-2-3-513"
	groupSIDBytes, err := winutil.WriteSID(groupSID, true)
	require.NoError(t, err)
	dt.Insert(esedb.Row{
		"DNT_col":         int32(30),
		"PDNT_col":        int32(5),
		"NCDNT_col":       int32(5),
		"OBJ_col":         "Domain Users",
		"ATTm131532":      "Domain Users",
		"RDNtyp_col":      int32(0),
		"ATTc0":           []int32{attrtypGroup, attrtypTop},
		colObjectSid:      groupSIDBytes,
		colObjectCategory: int32(103), // the "group" classSchema row
	})

	userSID := "S-1-5-21-1-2-3-1105"
	userSIDBytes, err := winutil.WriteSID(userSID, true)
	require.NoError(t, err)
	dt.Insert(esedb.Row{
		"DNT_col":          int32(20),
		"PDNT_col":         int32(5),
		"NCDNT_col":        int32(5),
		"OBJ_col":          "ernesto",
		"ATTm131532":       "ernesto",
		"RDNtyp_col":       int32(0),
		"ATTc0":            []int32{attrtypUser, attrtypTop},
		colSAMAccountName:  "ernesto",
		colObjectSid:       userSIDBytes,
		colPrimaryGroupID:  int64(513),
		colUserAccountCtrl: int64(512),
		colObjectCategory:  int32(106), // the "person" classSchema row
	})

	dt.BuildIndex("idx_dnt", "DNT_col")
	dt.BuildIndex("idx_pdnt", "PDNT_col")
	dt.BuildIndex("idx_sam", colSAMAccountName)
	dt.BuildIndex("idx_objectsid", colObjectSid)
	dt.BuildIndex("idx_objectclass", "ATTc0")
	dt.BuildIndex("idx_objectcategory", colObjectCategory)

	// link_table: a synthetic link from the domain (DNT 5) to the
	// Configuration container (DNT 3) via the forward "member"/backward
	// "memberOf" pair, both resolving to link_base 1. Deliberately
	// unrelated to ernesto/Domain Users, so it doesn't also surface
	// through the primaryGroupID-based path Groups()/Members() fall
	// back to.
	lt := mem.AddTable("link_table")
	lt.Insert(esedb.Row{
		"link_DNT":     int32(5),
		"backlink_DNT": int32(3),
		"link_base":    int32(1),
	})
	lt.BuildIndex("link_index", "link_DNT", "link_base")
	lt.BuildIndex("backlink_index", "backlink_DNT", "link_base")

	db, err := Open(mem, nil)
	require.NoError(t, err)
	return db
}

func TestDatabaseOpenBuildsSchemaAndRoot(t *testing.T) {
	db := buildFixtureDatabase(t)

	root, err := db.Root()
	require.NoError(t, err)
	assert.Equal(t, rootDNTFixture, root.DNT())
	assert.True(t, root.IsA("top"))
}

func TestDatabaseRootDomain(t *testing.T) {
	db := buildFixtureDatabase(t)

	domain, err := db.RootDomain()
	require.NoError(t, err)
	assert.True(t, domain.IsA("domainDNS"))
	assert.Equal(t, int32(5), domain.DNT())
}

func TestObjectInstanceTypeAndIsDeleted(t *testing.T) {
	db := buildFixtureDatabase(t)

	deleted, err := db.ObjectByDNT(6)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
	assert.True(t, deleted.IsHeadOfNamingContext())

	domain, err := db.ObjectByDNT(5)
	require.NoError(t, err)
	assert.False(t, domain.IsDeleted())
	assert.True(t, domain.IsHeadOfNamingContext())

	root, err := db.Root()
	require.NoError(t, err)
	assert.False(t, root.IsHeadOfNamingContext())
}

func TestObjectDistinguishedName(t *testing.T) {
	db := buildFixtureDatabase(t)

	user, err := db.ObjectByDNT(20)
	require.NoError(t, err)

	dn, err := user.DistinguishedName()
	require.NoError(t, err)
	assert.Equal(t, "CN=ERNESTO,CN=EXAMPLE", dn)
}

func TestObjectChildrenAndChild(t *testing.T) {
	db := buildFixtureDatabase(t)

	domain, err := db.RootDomain()
	require.NoError(t, err)

	children, err := domain.Children()
	require.NoError(t, err)
	assert.Len(t, children, 2)

	user, err := domain.Child("ernesto")
	require.NoError(t, err)
	assert.True(t, user.IsA("user"))
	assert.Equal(t, "ernesto", user.SAMAccountName())
}

func TestDatabaseQueryEquality(t *testing.T) {
	db := buildFixtureDatabase(t)

	results, err := db.Query("(sAMAccountName=ernesto)", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(20), results[0].DNT())
}

func TestDatabaseQuerySubstring(t *testing.T) {
	db := buildFixtureDatabase(t)

	results, err := db.Query("(sAMAccountName=ern*)", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ernesto", results[0].SAMAccountName())

	none, err := db.Query("(sAMAccountName=zz*)", true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDatabaseQueryComposedAnd(t *testing.T) {
	db := buildFixtureDatabase(t)

	results, err := db.Query("(&(sAMAccountName=ernesto)(userAccountControl=512))", true)
	require.NoError(t, err)
	require.Len(t, results, 1)

	none, err := db.Query("(&(sAMAccountName=ernesto)(userAccountControl=999))", true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDatabaseQueryObjectClassEqualityReturnsEveryMatch(t *testing.T) {
	db := buildFixtureDatabase(t)

	// Two naming-context heads (the tombstoned decoy and the real
	// domain) both carry objectClass=domainDNS; an equality filter on a
	// non-unique column must return every match, not just one.
	results, err := db.Query("(objectClass=domainDNS)", true)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDatabaseLookup(t *testing.T) {
	db := buildFixtureDatabase(t)

	obj, err := db.Lookup("sAMAccountName", "ernesto")
	require.NoError(t, err)
	assert.Equal(t, int32(20), obj.DNT())

	_, err = db.Lookup("sAMAccountName", "nobody")
	assert.Error(t, err)
}

func TestDatabaseSearchAttrs(t *testing.T) {
	db := buildFixtureDatabase(t)

	results, err := db.Search(map[string]string{
		"sAMAccountName":     "ernesto",
		"userAccountControl": "512",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(20), results[0].DNT())

	none, err := db.Search(map[string]string{"sAMAccountName": "ernesto", "userAccountControl": "999"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDatabaseObjectCategoryFacades(t *testing.T) {
	db := buildFixtureDatabase(t)

	users, err := db.Users()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ernesto", users[0].SAMAccountName())

	groups, err := db.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Domain Users", groups[0].Name())

	computers, err := db.Computers()
	require.NoError(t, err)
	assert.Empty(t, computers)

	servers, err := db.Servers()
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestQueryOptimizeReordersANDForFewerEvaluations(t *testing.T) {
	db := buildFixtureDatabase(t)

	f, err := ldapfilter.Parse("(&(objectSid=*)(sAMAccountName=ernesto))")
	require.NoError(t, err)

	optimized := NewQuery(db)
	results, err := optimized.Process(f, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, optimized.Stats.IndexScans)
	assert.Equal(t, 1, optimized.Stats.NodeEvaluations)

	unoptimized := NewQuery(db)
	results, err = unoptimized.Process(f, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, unoptimized.Stats.IndexScans)
	assert.Equal(t, 2, unoptimized.Stats.NodeEvaluations)

	assert.Greater(t, unoptimized.Stats.NodeEvaluations, optimized.Stats.NodeEvaluations)
}

func TestObjectSIDAndPrimaryGroupID(t *testing.T) {
	db := buildFixtureDatabase(t)

	user, err := db.ObjectByDNT(20)
	require.NoError(t, err)

	sid, err := user.SID()
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1-2-3-1105", sid)
	assert.Equal(t, int32(513), user.PrimaryGroupID())
	assert.False(t, user.IsMachineAccount())
}

func TestUserGroupsResolvesPrimaryGroupByRID(t *testing.T) {
	db := buildFixtureDatabase(t)

	user, err := db.ObjectByDNT(20)
	require.NoError(t, err)

	groups, err := user.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Domain Users", groups[0].Name())
}

func TestObjectGetRawAndAttributeNotFound(t *testing.T) {
	db := buildFixtureDatabase(t)

	user, err := db.ObjectByDNT(20)
	require.NoError(t, err)

	decoded, err := user.Get("userAccountControl", false)
	require.NoError(t, err)
	assert.Equal(t, int64(512), decoded)

	raw, err := user.Get("userAccountControl", true)
	require.NoError(t, err)
	assert.Equal(t, int64(512), raw)

	_, err = user.Get("thisAttributeDoesNotExist", false)
	assert.ErrorIs(t, err, dberrors.ErrAttributeNotFound)
}

func TestLinkTableAllLinksAllBacklinksAndHasLinkInvariant(t *testing.T) {
	db := buildFixtureDatabase(t)
	require.NotNil(t, db.link)

	links, err := db.link.Links(5, "member")
	require.NoError(t, err)
	assert.Equal(t, []int32{3}, links)

	backlinks, err := db.link.Backlinks(3, "memberOf")
	require.NoError(t, err)
	assert.Equal(t, []int32{5}, backlinks)

	allLinks, err := db.link.AllLinks(5)
	require.NoError(t, err)
	require.Len(t, allLinks, 1)
	assert.Equal(t, NamedLink{Name: "member", DNT: 3}, allLinks[0])

	allBacklinks, err := db.link.AllBacklinks(3)
	require.NoError(t, err)
	require.Len(t, allBacklinks, 1)
	assert.Equal(t, NamedLink{Name: "member", DNT: 5}, allBacklinks[0])

	// has_link(a, n, b) <=> has_backlink(b, n, a), for the attribute
	// name carrying the even (forward) linkId.
	hasLink, err := db.link.HasLink(5, "member", 3)
	require.NoError(t, err)
	assert.True(t, hasLink)

	hasBacklink, err := db.link.HasBacklink(3, "member", 5)
	require.NoError(t, err)
	assert.True(t, hasBacklink)

	hasLink, err = db.link.HasLink(5, "member", 99)
	require.NoError(t, err)
	assert.False(t, hasLink)
}
