// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package pattern implements the join-spec key grammar: literal byte runs
// interspersed with named, fixed-length slots, e.g. "t|<user:6>|<page:6>".
// A Pattern matches concrete keys against itself (binding slot values into
// a Match) and expands a partial Match back into the half-open byte range
// of every key consistent with it.
package pattern

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

type partKind int

const (
	partLiteral partKind = iota
	partSlot
)

type part struct {
	kind   partKind
	lit    []byte
	name   string
	length int
}

// Pattern is a parsed key template: an ordered sequence of literal byte
// runs and named, fixed-length slots, with a fixed total key length.
type Pattern struct {
	raw    string
	parts  []part
	length int
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// KeyLength returns the fixed total byte length of any key matching p.
func (p *Pattern) KeyLength() int { return p.length }

// FirstLiteral returns the bytes of p's leading literal run, or nil if p
// begins with a slot.
func (p *Pattern) FirstLiteral() []byte {
	if len(p.parts) == 0 || p.parts[0].kind != partLiteral {
		return nil
	}
	return p.parts[0].lit
}

// FirstSlotEnd returns the byte offset, from the start of any key matching
// p, immediately after p's first slot ends — the shortest key prefix that
// fully determines that slot's value. Returns -1 if p declares no slots at
// all (a table routed purely on literal bytes has nothing to cut on).
func (p *Pattern) FirstSlotEnd() int {
	off := 0
	for _, pt := range p.parts {
		if pt.kind == partLiteral {
			off += len(pt.lit)
			continue
		}
		return off + pt.length
	}
	return -1
}

// SlotNames returns the slot names declared by p, in declaration order,
// each listed once even if the slot is reused later in the pattern.
func (p *Pattern) SlotNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, pt := range p.parts {
		if pt.kind == partSlot && !seen[pt.name] {
			seen[pt.name] = true
			names = append(names, pt.name)
		}
	}
	return names
}

// Parse parses a single pattern string in isolation: each "<name:length>"
// introduces a new slot of that byte length; a later "<name>" with no
// length reuses the length of the slot's first declaration within this
// same string.
func Parse(s string) (*Pattern, error) {
	return ParseWithLengths(s, map[string]int{})
}

// ParseWithLengths parses a pattern string the way Parse does, but slot
// lengths are read from and written back into the supplied lengths map.
// A join spec's sink and source patterns share one such map (see
// package join), so a slot declared with a length in the sink can be
// reused — by name only, no length — in a later source pattern.
func ParseWithLengths(s string, lengths map[string]int) (*Pattern, error) {
	p := &Pattern{raw: s}
	bs := []byte(s)

	var lit []byte
	flushLit := func() {
		if len(lit) > 0 {
			p.parts = append(p.parts, part{kind: partLiteral, lit: lit})
			p.length += len(lit)
			lit = nil
		}
	}

	for i := 0; i < len(bs); {
		if bs[i] != '<' {
			lit = append(lit, bs[i])
			i++
			continue
		}
		flushLit()
		j := i + 1
		for j < len(bs) && bs[j] != '>' {
			j++
		}
		if j >= len(bs) {
			return nil, fmt.Errorf("pattern %q: unterminated slot starting at %d", s, i)
		}
		spec := string(bs[i+1 : j])
		name := spec
		length := -1
		if idx := strings.IndexByte(spec, ':'); idx >= 0 {
			name = spec[:idx]
			n, err := strconv.Atoi(spec[idx+1:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("pattern %q: bad slot length in <%s>", s, spec)
			}
			if prev, ok := lengths[name]; ok && prev != n {
				return nil, fmt.Errorf("pattern %q: slot %q redeclared with conflicting length %d (was %d)", s, name, n, prev)
			}
			length = n
			lengths[name] = n
		} else {
			n, ok := lengths[name]
			if !ok {
				return nil, fmt.Errorf("pattern %q: slot %q used before being sized", s, name)
			}
			length = n
		}
		p.parts = append(p.parts, part{kind: partSlot, name: name, length: length})
		p.length += length
		i = j + 1
	}
	flushLit()
	return p, nil
}

// Match consumes key against p, binding each of p's slots into (a copy
// of) m. key need not cover the whole pattern: a range boundary key is
// routinely truncated exactly at a part boundary (e.g. "t|a|" against
// "t|<user:1>|<page:1>" binds user and leaves page unbound), and that is
// treated as success with the remaining parts simply left unbound. A key
// longer than the pattern, or one that runs out of bytes in the middle of
// a part instead of exactly between two parts, fails to match — as does a
// literal/slot byte mismatch or a conflicting already-bound slot.
func (p *Pattern) Match(key []byte, m Match) (Match, bool) {
	if len(key) > p.length {
		return m, false
	}
	off := 0
	for _, pt := range p.parts {
		if off >= len(key) {
			break
		}
		var partLen int
		if pt.kind == partLiteral {
			partLen = len(pt.lit)
		} else {
			partLen = pt.length
		}
		if off+partLen > len(key) {
			return m, false
		}
		switch pt.kind {
		case partLiteral:
			if !bytes.Equal(key[off:off+partLen], pt.lit) {
				return m, false
			}
		case partSlot:
			seg := key[off : off+partLen]
			if bound, ok := m.Get(pt.name); ok {
				if !bytes.Equal(bound, seg) {
					return m, false
				}
			} else {
				m = m.Bind(pt.name, append([]byte(nil), seg...))
			}
		}
		off += partLen
	}
	return m, true
}

// ExpandFirst expands m into the smallest key consistent with it: bound
// slots copy their bytes, unbound slots fill with 0x00.
func (p *Pattern) ExpandFirst(m Match) []byte {
	out := make([]byte, 0, p.length)
	for _, pt := range p.parts {
		switch pt.kind {
		case partLiteral:
			out = append(out, pt.lit...)
		case partSlot:
			if v, ok := m.Get(pt.name); ok {
				out = append(out, v...)
			} else {
				out = append(out, make([]byte, pt.length)...)
			}
		}
	}
	return out
}

// ExpandLast expands m into the exclusive upper bound of keys consistent
// with it: bound slots copy their bytes, unbound slots fill with 0xFF and
// the whole key is then incremented by one (with carry propagating into
// earlier bytes, literal or bound, exactly as it would for a base-256
// number). If every slot is bound there is nothing to expand and
// ExpandLast returns exactly the same bytes as ExpandFirst — callers that
// need a non-empty range for a fully-bound Match must normalize that case
// themselves (see NormalizeRange), since [k, k) is the empty range, not
// the single-key range {k}.
func (p *Pattern) ExpandLast(m Match) []byte {
	out := make([]byte, 0, p.length)
	anyUnbound := false
	for _, pt := range p.parts {
		switch pt.kind {
		case partLiteral:
			out = append(out, pt.lit...)
		case partSlot:
			if v, ok := m.Get(pt.name); ok {
				out = append(out, v...)
			} else {
				anyUnbound = true
				for i := 0; i < pt.length; i++ {
					out = append(out, 0xFF)
				}
			}
		}
	}
	if !anyUnbound {
		return out
	}
	return incrementBytes(out)
}

// NormalizeRange returns kl, adjusted to kf's immediate lexicographic
// successor when kf == kl (the fully-bound, single-key case spec.md §4.2
// calls out: "kl = kf means empty range -> treat as the single-key lookup
// [kf, kf++one)").
func NormalizeRange(kf, kl []byte) []byte {
	if bytes.Equal(kf, kl) {
		return append(append([]byte(nil), kf...), 0x00)
	}
	return kl
}

// incrementBytes returns the smallest byte string of buf's own length
// strictly greater than buf. For a non-all-0xFF buffer this is a normal
// increment-with-carry from the last byte backward; for an all-0xFF
// buffer there is no same-length successor, so one extra 0x00 byte is
// appended (the successor of "\xFF...\xFF" is "\xFF...\xFF\x00").
func incrementBytes(buf []byte) []byte {
	out := append([]byte(nil), buf...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out
		}
		out[i] = 0x00
	}
	return append(append([]byte(nil), buf...), 0x00)
}
