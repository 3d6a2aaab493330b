// Copyright 2026 The Dissect Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package ldapfilter parses the RFC 4515 filter grammar subset NTDS
// queries are expressed in: equality, presence, and leading-substring
// ("attr=value*") matches, composed with AND/OR.
//
// No example in the retrieval corpus parses LDAP filter strings, and
// pulling in a full LDAP network client merely to reuse its filter
// grammar would be a poor fit for what is a small, self-contained
// recursive-descent parser; this package is hand-rolled against the
// RFC grammar instead (see DESIGN.md).
package ldapfilter

import (
	"fmt"
	"strings"

	"github.com/dissect-go/dissect/dberrors"
)

// Kind enumerates the filter node types this subset supports.
type Kind int

const (
	// KindEquality is "(attr=value)".
	KindEquality Kind = iota
	// KindPresence is "(attr=*)".
	KindPresence
	// KindSubstring is "(attr=value*)": a leading-substring match.
	// Only a trailing wildcard is supported, matching the NTDS query
	// planner's range-search capability.
	KindSubstring
	// KindAnd is "(&(...)(...))".
	KindAnd
	// KindOr is "(|(...)(...))".
	KindOr
)

// Filter is one node of a parsed LDAP filter expression tree.
type Filter struct {
	Kind       Kind
	Attribute  string
	Value      string
	Children   []*Filter
}

// IsNested reports whether the filter is a composed AND/OR node
// rather than an atomic attribute test.
func (f *Filter) IsNested() bool {
	return f.Kind == KindAnd || f.Kind == KindOr
}

// String renders the filter back to its canonical textual form.
func (f *Filter) String() string {
	switch f.Kind {
	case KindEquality:
		return fmt.Sprintf("(%s=%s)", f.Attribute, f.Value)
	case KindPresence:
		return fmt.Sprintf("(%s=*)", f.Attribute)
	case KindSubstring:
		return fmt.Sprintf("(%s=%s*)", f.Attribute, f.Value)
	case KindAnd, KindOr:
		op := "&"
		if f.Kind == KindOr {
			op = "|"
		}
		var sb strings.Builder
		sb.WriteByte('(')
		sb.WriteString(op)
		for _, c := range f.Children {
			sb.WriteString(c.String())
		}
		sb.WriteByte(')')
		return sb.String()
	default:
		return ""
	}
}

// Parse parses a filter string such as
// "(&(objectClass=user)(sAMAccountName=ernesto*))" into a Filter tree.
func Parse(input string) (*Filter, error) {
	p := &parser{s: input}
	f, err := p.parseFilter()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrInvalidFormat, err)
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("%w: trailing input at offset %d", dberrors.ErrInvalidFormat, p.pos)
	}
	return f, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

func (p *parser) expect(c byte) error {
	b, ok := p.peek()
	if !ok || b != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

// parseFilter parses a single "(...)" wrapped filter.
func (p *parser) parseFilter() (*Filter, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}

	b, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of input")
	}

	var f *Filter
	var err error

	switch b {
	case '&':
		p.pos++
		f, err = p.parseComposed(KindAnd)
	case '|':
		p.pos++
		f, err = p.parseComposed(KindOr)
	default:
		f, err = p.parseAtomic()
	}
	if err != nil {
		return nil, err
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *parser) parseComposed(kind Kind) (*Filter, error) {
	f := &Filter{Kind: kind}
	for {
		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated composed filter")
		}
		if b != '(' {
			break
		}
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		f.Children = append(f.Children, child)
	}
	if len(f.Children) == 0 {
		return nil, fmt.Errorf("composed filter requires at least one child")
	}
	return f, nil
}

// parseAtomic parses "attr=value", "attr=*", or "attr=value*" up to
// (but not consuming) the closing ')'.
func (p *parser) parseAtomic() (*Filter, error) {
	start := p.pos
	for {
		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated atomic filter")
		}
		if b == '=' {
			break
		}
		p.pos++
	}
	attribute := p.s[start:p.pos]
	if attribute == "" {
		return nil, fmt.Errorf("empty attribute name at offset %d", start)
	}
	p.pos++ // consume '='

	valStart := p.pos
	for {
		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated atomic filter value")
		}
		if b == ')' {
			break
		}
		p.pos++
	}
	value := p.s[valStart:p.pos]

	if idx := strings.IndexByte(value, '*'); idx >= 0 && idx != len(value)-1 {
		return nil, fmt.Errorf("%w: wildcard at offset %d", dberrors.ErrWildcardUnsupported, valStart+idx)
	}

	switch {
	case value == "*":
		return &Filter{Kind: KindPresence, Attribute: attribute}, nil
	case strings.HasSuffix(value, "*"):
		return &Filter{Kind: KindSubstring, Attribute: attribute, Value: strings.TrimSuffix(value, "*")}, nil
	default:
		return &Filter{Kind: KindEquality, Attribute: attribute, Value: value}, nil
	}
}
