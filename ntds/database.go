// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ntds

import (
	"container/list"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dissect-go/dissect/dberrors"
	"github.com/dissect-go/dissect/esedb"
	"github.com/dissect-go/dissect/internal/winutil"
	"github.com/dissect-go/dissect/ldapfilter"
	"github.com/sirupsen/logrus"
)

// defaultLRUSize bounds the DNT->Object and DNT->DN memoization caches
// the Database keeps while walking parent chains and materializing
// objects, mirroring the reference reader's lru_cache(4096) usage.
const defaultLRUSize = 4096

// Options configures a Database opened over an esedb.Database.
type Options struct {
	// LRUSize bounds the object/DN memoization caches. Zero selects
	// defaultLRUSize.
	LRUSize int
	// Logger receives warnings for malformed or unrecognized records
	// encountered during schema bootstrap and object decoding; a nil
	// Logger defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

// Database is the NTDS.dit reader: a schema-bootstrapped facade over
// the datatable, link_table, and sd_table of an opened ESE database.
type Database struct {
	ese    esedb.Database
	schema *Schema
	log    *logrus.Entry

	data *dataTable
	link *LinkTable
	sd   *securityDescriptorTable

	dnCache  *lruCache
	objCache *lruCache
}

// Open bootstraps a Database: it reads the fixed bootstrap tables to
// resolve the Schema container, walks it to build the attribute/class
// index, then wires the datatable, link table, and security
// descriptor table facades on top.
func Open(db esedb.Database, opts *Options) (*Database, error) {
	if opts == nil {
		opts = &Options{}
	}
	lruSize := opts.LRUSize
	if lruSize <= 0 {
		lruSize = defaultLRUSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	d := &Database{
		ese:      db,
		log:      logger.WithField("component", "ntds"),
		dnCache:  newLRUCache(lruSize),
		objCache: newLRUCache(lruSize),
	}

	dataTbl, err := db.Table("datatable")
	if err != nil {
		return nil, fmt.Errorf("opening datatable: %w", err)
	}
	d.data = &dataTable{db: d, table: dataTbl}

	schema, err := buildSchema(d)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}
	d.schema = schema

	if linkTbl, err := db.Table("link_table"); err == nil {
		d.link = &LinkTable{db: d, table: linkTbl}
	}
	if sdTbl, err := db.Table("sd_table"); err == nil {
		d.sd = &securityDescriptorTable{table: sdTbl}
	}

	return d, nil
}

// Schema returns the bootstrapped attribute/class index.
func (d *Database) Schema() *Schema { return d.schema }

// rootDNT returns the DNT of the single root object: the unique
// datatable row whose PDNT_col is 0. Zero or more than one such row is
// a malformed datatable, per §4.1's root() contract.
func (d *Database) rootDNT() (int32, error) {
	rows, err := d.childrenOf(0)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("%w: %d children of DNT 0, want 1", dberrors.ErrNoRoot, len(rows))
	}
	dnt, _ := rows[0].Get("DNT_col").(int32)
	return dnt, nil
}

// Query parses and evaluates an LDAP filter string against the
// datatable via the LDAP planner (§4.3), returning every matching
// object. optimize controls whether AND children are reordered by
// selectivity before evaluation.
func (d *Database) Query(filterString string, optimize bool) ([]*Object, error) {
	return NewQuery(d).Search(filterString, optimize)
}

// Lookup performs a single-attribute indexed search on attr's
// schema-derived column, returning the first matching object. Unlike
// Query, this bypasses filter parsing entirely: it is the direct
// point/non-unique lookup spec §4.1 names lookup(attr=value).
func (d *Database) Lookup(attr, value string) (*Object, error) {
	entry, err := d.schema.Lookup(SchemaLookup{LDAPName: &attr})
	if err != nil {
		return nil, fmt.Errorf("%w: attribute %q", dberrors.ErrAttributeNotFound, attr)
	}
	if entry.ColumnName == "" {
		return nil, fmt.Errorf("%w: attribute %q is not column-backed", dberrors.ErrInvalidArgument, attr)
	}

	idx, err := d.data.indexByColumns(entry.ColumnName)
	if err != nil {
		return nil, fmt.Errorf("%w: attribute %q has no index", dberrors.ErrIndexNotFound, attr)
	}

	encoded, err := encodeForIndex(d, entry, value)
	if err != nil {
		return nil, err
	}
	rows, err := idx.Cursor().FindAll(map[string]any{entry.ColumnName: encoded})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s=%s", dberrors.ErrNotFound, attr, value)
	}
	return newObject(d, rows[0]), nil
}

// Search returns every object whose attributes satisfy every attr=value
// pair in attrs: the conjunction-of-equality-terms surface spec §4.1
// names search(**attrs), built as an AND filter over attrs and
// delegated to the planner with optimize enabled.
func (d *Database) Search(attrs map[string]string) ([]*Object, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: search requires at least one attribute", dberrors.ErrInvalidArgument)
	}
	children := make([]*ldapfilter.Filter, 0, len(attrs))
	for attr, value := range attrs {
		children = append(children, &ldapfilter.Filter{Kind: ldapfilter.KindEquality, Attribute: attr, Value: value})
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Attribute < children[j].Attribute })

	f := &ldapfilter.Filter{Kind: ldapfilter.KindAnd, Children: children}
	if len(children) == 1 {
		f = children[0]
	}
	return NewQuery(d).Process(f, true)
}

// Users returns every object categorized as a person: the
// object-category facade §8 scenario 1 names users(). AD categorizes
// user objects by the "person" classSchema rather than their own
// "user" objectClass - matching the reference reader's users().
func (d *Database) Users() ([]*Object, error) { return d.byObjectCategory(ClassPerson) }

// Groups returns every object categorized as a group.
func (d *Database) Groups() ([]*Object, error) { return d.byObjectCategory(ClassGroup) }

// Computers returns every object categorized as a computer.
func (d *Database) Computers() ([]*Object, error) { return d.byObjectCategory(ClassComputer) }

// Servers returns every object categorized as a server.
func (d *Database) Servers() ([]*Object, error) { return d.byObjectCategory(ClassServer) }

func (d *Database) byObjectCategory(category string) ([]*Object, error) {
	return d.Query(fmt.Sprintf("(objectCategory=%s)", category), true)
}

// Root returns the partition root object.
func (d *Database) Root() (*Object, error) {
	dnt, err := d.rootDNT()
	if err != nil {
		return nil, err
	}
	return d.ObjectByDNT(dnt)
}

// RootDomain returns the naming context head under Root: the first
// non-deleted child whose instanceType carries the
// HeadOfNamingContext bit.
func (d *Database) RootDomain() (*Object, error) {
	root, err := d.Root()
	if err != nil {
		return nil, err
	}
	children, err := root.Children()
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c.IsDeleted() {
			continue
		}
		if c.IsHeadOfNamingContext() {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: no HeadOfNamingContext child under root", dberrors.ErrNoRootDomain)
}

// childDNTByRDN finds the direct child of parentDNT whose relative
// distinguished name value equals rdnValue (case-insensitive, since
// NTDS RDNs are stored and compared case-insensitively).
func (d *Database) childDNTByRDN(parentDNT int32, rdnValue string) (int32, error) {
	children, err := d.childrenOf(parentDNT)
	if err != nil {
		return 0, err
	}
	for _, row := range children {
		name, _ := row.Get("ATTm131532").(string)
		if name == "" {
			name = stringField(row.Get("OBJ_col"))
		}
		if strings.EqualFold(name, rdnValue) {
			dnt, _ := row.Get("DNT_col").(int32)
			return dnt, nil
		}
	}
	return 0, fmt.Errorf("%w: child %q of DNT %d", dberrors.ErrNotFound, rdnValue, parentDNT)
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

// childrenOf returns every datatable row whose PDNT_col equals dnt.
func (d *Database) childrenOf(dnt int32) ([]esedb.Row, error) {
	idx, err := d.data.indexByColumns("PDNT_col")
	if err != nil {
		return nil, err
	}
	return idx.Cursor().FindAll(map[string]any{"PDNT_col": dnt})
}

// ObjectByDNT materializes the Object for the datatable row with the
// given DNT, consulting (and populating) the object memoization
// cache.
func (d *Database) ObjectByDNT(dnt int32) (*Object, error) {
	if v, ok := d.objCache.get(dnt); ok {
		return v.(*Object), nil
	}

	idx, err := d.data.indexByColumns("DNT_col")
	if err != nil {
		return nil, err
	}
	row, err := idx.Cursor().Find(dnt)
	if err != nil {
		return nil, fmt.Errorf("%w: object DNT %d", dberrors.ErrNotFound, dnt)
	}

	obj := newObject(d, row)
	d.objCache.put(dnt, obj)
	return obj, nil
}

// distinguishedName builds the upper-cased, comma-joined DN for dnt by
// walking the PDNT chain to the partition root, memoizing the result.
func (d *Database) distinguishedName(dnt int32) (string, error) {
	if v, ok := d.dnCache.get(dnt); ok {
		return v.(string), nil
	}

	rootDNT, err := d.rootDNT()
	if err != nil {
		return "", err
	}

	var components []string
	cur := dnt
	for {
		if cur == 0 || cur == rootDNT {
			break
		}
		idx, err := d.data.indexByColumns("DNT_col")
		if err != nil {
			return "", err
		}
		row, err := idx.Cursor().Find(cur)
		if err != nil {
			return "", fmt.Errorf("%w: DN component DNT %d", dberrors.ErrNotFound, cur)
		}

		rdnType, _ := row.Get("RDNtyp_col").(int32)
		rdnEntry, err := d.schema.Lookup(SchemaLookup{ATTRTYP: uint32ptr(uint32(rdnType))})
		var rdnKey string
		if err == nil {
			rdnKey = rdnEntry.LDAPName
		} else {
			rdnKey = "CN"
		}

		rdnValue := stringField(row.Get("ATTm131532"))
		if rdnValue == "" {
			rdnValue = stringField(row.Get("OBJ_col"))
		}
		components = append(components, fmt.Sprintf("%s=%s", rdnKey, rdnValue))

		pdnt, _ := row.Get("PDNT_col").(int32)
		cur = pdnt
	}

	dn := strings.ToUpper(strings.Join(components, ","))
	d.dnCache.put(dnt, dn)
	return dn, nil
}

func uint32ptr(v uint32) *uint32 { return &v }

// findByObjectSID scans every datatable row for one whose decoded
// objectSid equals sid. NTDS carries no dedicated SID index, so
// primary-group resolution (the only caller) pays for a linear scan;
// real datatables are small enough relative to query frequency that
// this is the same tradeoff the reference reader makes.
func (d *Database) findByObjectSID(sid string) (*Object, bool, error) {
	ldapName := "objectSid"
	entry, err := d.schema.Lookup(SchemaLookup{LDAPName: &ldapName})
	if err != nil || entry.ColumnName == "" {
		return nil, false, err
	}

	idx, err := d.data.indexByColumns("DNT_col")
	if err != nil {
		return nil, false, err
	}
	cur := idx.Cursor()
	for {
		row, err := cur.Next()
		if err != nil {
			break
		}
		raw, ok := row.Get(entry.ColumnName).([]byte)
		if !ok {
			continue
		}
		decoded, err := winutil.ReadSID(raw, true)
		if err == nil && decoded == sid {
			dnt, _ := row.Get("DNT_col").(int32)
			obj, err := d.ObjectByDNT(dnt)
			if err != nil {
				return nil, false, err
			}
			return obj, true, nil
		}
	}
	return nil, false, nil
}

// dataTable wraps the ESE datatable and caches resolved indexes by
// their column list, since Find operations happen on the same few
// index shapes repeatedly (DNT, PDNT, OBJ, ATTc0).
type dataTable struct {
	db    *Database
	table esedb.Table

	mu      sync.Mutex
	indexes map[string]esedb.Index
}

func (t *dataTable) indexByColumns(columns ...string) (esedb.Index, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexes == nil {
		t.indexes = make(map[string]esedb.Index)
	}
	key := strings.Join(columns, ",")
	if idx, ok := t.indexes[key]; ok {
		return idx, nil
	}
	idx, err := t.table.FindIndex(columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", dberrors.ErrIndexNotFound, key)
	}
	t.indexes[key] = idx
	return idx, nil
}

// LinkTable surfaces forward and backward attribute-link relationships
// (group membership, managedBy, etc.) stored in link_table rather than
// inline in the datatable.
type LinkTable struct {
	db    *Database
	table esedb.Table
}

// linkBaseOf converts a schema-governed linked attribute's raw linkId
// into the base value link_table's link_base column is keyed on: per
// §4.4's "Name-to-base", base = link_id // 2.
func linkBaseOf(entry *SchemaEntry) (int32, error) {
	if entry.LinkID == nil {
		return 0, fmt.Errorf("%w: attribute %q is not a linked attribute", dberrors.ErrInvalidArgument, entry.LDAPName)
	}
	return *entry.LinkID / 2, nil
}

// Links returns the DNTs dnt points to via the linked attribute named
// by attribute, or via every linked attribute if attribute is empty.
func (l *LinkTable) Links(dnt int32, attribute string) ([]int32, error) {
	return l.lookupLinks(dnt, attribute, "link_DNT", "backlink_DNT")
}

// Backlinks returns the DNTs that point to dnt via the linked
// attribute named by attribute, or via every linked attribute if
// attribute is empty.
func (l *LinkTable) Backlinks(dnt int32, attribute string) ([]int32, error) {
	return l.lookupLinks(dnt, attribute, "backlink_DNT", "link_DNT")
}

func (l *LinkTable) lookupLinks(dnt int32, attribute, fromCol, toCol string) ([]int32, error) {
	filter := map[string]any{fromCol: dnt}
	if attribute != "" {
		entry, err := l.db.schema.Lookup(SchemaLookup{LDAPName: &attribute})
		if err != nil {
			return nil, err
		}
		base, err := linkBaseOf(entry)
		if err != nil {
			return nil, err
		}
		filter["link_base"] = base
	}

	idx, err := l.table.FindIndex([]string{fromCol, "link_base"})
	if err != nil {
		return nil, fmt.Errorf("%w: link index %s/link_base", dberrors.ErrIndexNotFound, fromCol)
	}

	rows, err := idx.Cursor().FindAll(filter)
	if err != nil {
		return nil, err
	}

	out := make([]int32, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.Get(toCol).(int32); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// NamedLink pairs a linked DNT with the ldapDisplayName of the linked
// attribute it came through.
type NamedLink struct {
	Name string
	DNT  int32
}

// AllLinks returns every (attribute name, linked DNT) pair dnt points
// to, across every linked attribute. A link_base with no corresponding
// schema entry is filtered out, per §4.4.
func (l *LinkTable) AllLinks(dnt int32) ([]NamedLink, error) {
	return l.allLookupLinks(dnt, "link_DNT", "backlink_DNT")
}

// AllBacklinks returns every (attribute name, linking DNT) pair that
// points to dnt, across every linked attribute. As in AllLinks, each
// link_base is named by the schema entry whose link ID is base*2, so
// the name reported is the forward link's (e.g. "member").
func (l *LinkTable) AllBacklinks(dnt int32) ([]NamedLink, error) {
	return l.allLookupLinks(dnt, "backlink_DNT", "link_DNT")
}

func (l *LinkTable) allLookupLinks(dnt int32, fromCol, toCol string) ([]NamedLink, error) {
	idx, err := l.table.FindIndex([]string{fromCol, "link_base"})
	if err != nil {
		return nil, fmt.Errorf("%w: link index %s/link_base", dberrors.ErrIndexNotFound, fromCol)
	}

	rows, err := idx.Cursor().FindAll(map[string]any{fromCol: dnt})
	if err != nil {
		return nil, err
	}

	out := make([]NamedLink, 0, len(rows))
	for _, row := range rows {
		base, ok := row.Get("link_base").(int32)
		if !ok {
			continue
		}
		linkID := base * 2
		entry, err := l.db.schema.Lookup(SchemaLookup{LinkID: &linkID})
		if err != nil {
			continue // unnamed base
		}
		target, ok := row.Get(toCol).(int32)
		if !ok {
			continue
		}
		out = append(out, NamedLink{Name: entry.LDAPName, DNT: target})
	}
	return out, nil
}

// HasLink reports whether dnt links to target via attribute.
func (l *LinkTable) HasLink(dnt int32, attribute string, target int32) (bool, error) {
	links, err := l.Links(dnt, attribute)
	if err != nil {
		return false, err
	}
	for _, v := range links {
		if v == target {
			return true, nil
		}
	}
	return false, nil
}

// HasBacklink reports whether source links to dnt via attribute.
func (l *LinkTable) HasBacklink(dnt int32, attribute string, source int32) (bool, error) {
	backlinks, err := l.Backlinks(dnt, attribute)
	if err != nil {
		return false, err
	}
	for _, v := range backlinks {
		if v == source {
			return true, nil
		}
	}
	return false, nil
}

// lruCache is a small fixed-capacity least-recently-used cache used to
// memoize DNT->Object and DNT->DN lookups.
type lruCache struct {
	capacity int
	mu       sync.Mutex
	ll       *list.List
	items    map[int32]*list.Element
}

type lruEntry struct {
	key   int32
	value any
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[int32]*list.Element),
	}
}

func (c *lruCache) get(key int32) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lruCache) put(key int32, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}
