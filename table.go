// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pequod-go/pq/interval"
	"github.com/pequod-go/pq/join"
	"github.com/pequod-go/pq/mutation"
	"github.com/pequod-go/pq/pattern"
)

// Table is one node of the key trie: either the root, whose entries are
// all subtable Datums keyed by table name, or a table reached by that
// routing, whose entries are either key/value Datums or — once triecut is
// installed — a further level of subtable Datums keyed by a fixed-length
// prefix. A Table keeps its entries sorted by Key so range scans and
// lower-bound lookups are plain binary search, plus the two interval
// indexes that drive join maintenance.
//
// triecut subdivides one named table's keyspace once that table has grown
// a join pattern wide enough to warrant it: while triecut stays 0 the
// table stores its data directly; once installed (see
// maybeInstallTriecut), every key is routed to a child subtable keyed by
// key[:len(name)+triecut] before it is ever stored, recursively, so an
// arbitrarily deep trie of fixed-width cuts can form under one table name.
// The root's own triecut stays 0 forever — it hosts variable-length table
// names, which a single fixed-width cut cannot express — so its dispatch
// by TableName remains the separate, outer mechanism it always was.
type Table struct {
	name    []byte
	triecut int

	entries  []*Datum
	shortcut map[uint64]*Datum // xxhash(key) -> *Datum, O(1) exact-key hit acceleration over the sorted entries

	sourceRanges *interval.Tree[*join.SourceRange]
	joinRanges   *interval.Tree[*JoinRange]

	stats TableStats
}

func newTable(name []byte) *Table {
	return &Table{
		name:         name,
		shortcut:     map[uint64]*Datum{},
		sourceRanges: &interval.Tree[*join.SourceRange]{},
		joinRanges:   &interval.Tree[*JoinRange]{},
	}
}

func hashKey(key []byte) uint64 { return xxhash.Sum64(key) }

// search returns the index of key in t.entries and true if present,
// otherwise the index at which it would be inserted.
func (t *Table) search(key []byte) (int, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].Key, key) >= 0
	})
	if i < len(t.entries) && bytes.Equal(t.entries[i].Key, key) {
		return i, true
	}
	return i, false
}

// lookupEntry looks up the exact-key Datum stored directly in t.entries,
// trying the hash shortcut before falling back to binary search. Unlike
// find, it never routes through a triecut child — upsertSubtable and
// findSubtable use it to manage t's own entries, the recursion step
// itself.
func (t *Table) lookupEntry(key []byte) (*Datum, bool) {
	if d, ok := t.shortcut[hashKey(key)]; ok && bytes.Equal(d.Key, key) {
		return d, true
	}
	i, ok := t.search(key)
	if !ok {
		return nil, false
	}
	return t.entries[i], true
}

func (t *Table) insertAt(i int, d *Datum) {
	t.entries = append(t.entries, nil)
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = d
	t.shortcut[hashKey(d.Key)] = d
}

// resolve descends through as many triecut levels as t has installed,
// returning the Table that actually stores key directly. key must be long
// enough to carry every cut: a shorter key reaching a triecut boundary is
// an invariant violation, so resolve panics rather than silently
// mis-filing it, whatever create is. With create true, missing child
// subtables are created along the way; with create false, a missing child
// subtable is reported as ok = false instead of being created.
func (t *Table) resolve(key []byte, create bool) (*Table, bool) {
	if t.triecut == 0 {
		return t, true
	}
	cutLen := len(t.name) + t.triecut
	if len(key) < cutLen {
		panic(fmt.Sprintf("pq: key %q is shorter than table %q's triecut boundary (need >= %d bytes, got %d)", key, t.name, cutLen, len(key)))
	}
	childName := key[:cutLen]
	if create {
		return t.upsertSubtable(childName).resolve(key, true)
	}
	child, ok := t.findSubtable(childName)
	if !ok {
		return nil, false
	}
	return child.resolve(key, false)
}

// maybeInstallTriecut chooses t's triecut length from p's first slot, the
// first time a join pattern that reaches t is registered — and only while
// t is still empty, since cutting an already-populated table would orphan
// its existing entries instead of re-filing them. p's first slot must end
// strictly after t's own name for there to be anything left to cut on
// (e.g. pattern "t|<id:6>|<v:1>" against table name "t|" yields a triecut
// of 6); a pattern whose first slot is shorter than, or ends exactly at,
// t's name contributes nothing and is left for whatever join reaches
// further before any subtable is created under t.
func (t *Table) maybeInstallTriecut(p *pattern.Pattern) {
	if t.triecut != 0 || len(t.entries) != 0 {
		return
	}
	end := p.FirstSlotEnd()
	if end < 0 {
		return
	}
	cut := end - len(t.name)
	if cut <= 0 {
		return
	}
	t.triecut = cut
}

// find looks up the entry for key, routing through any installed triecut
// levels first.
func (t *Table) find(key []byte) (*Datum, bool) {
	leaf, ok := t.resolve(key, false)
	if !ok {
		return nil, false
	}
	return leaf.lookupEntry(key)
}

// upsertDirect inserts or overwrites the entry for key in t itself (no
// triecut routing), returning the entry and whether it was newly created.
func (t *Table) upsertDirect(key, value []byte) (*Datum, bool) {
	i, ok := t.search(key)
	if ok {
		d := t.entries[i]
		d.value = append([]byte(nil), value...)
		t.stats.NModify++
		return d, false
	}
	d := newEntryDatum(append([]byte(nil), key...), append([]byte(nil), value...))
	t.insertAt(i, d)
	t.stats.NInsert++
	return d, true
}

// upsert inserts or overwrites the entry for key, routing through any
// installed triecut levels (creating child subtables as needed) before
// writing it.
func (t *Table) upsert(key, value []byte) (*Datum, bool) {
	leaf, _ := t.resolve(key, true)
	return leaf.upsertDirect(key, value)
}

// eraseDirect removes the entry for key from t itself (no triecut
// routing), if present.
func (t *Table) eraseDirect(key []byte) (*Datum, bool) {
	i, ok := t.search(key)
	if !ok {
		return nil, false
	}
	d := t.entries[i]
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	delete(t.shortcut, hashKey(key))
	t.stats.NErase++
	return d, true
}

// erase removes the entry for key, routing through any installed triecut
// levels first; a key whose triecut child was never created is reported
// as not found rather than creating one just to erase nothing from it.
func (t *Table) erase(key []byte) (*Datum, bool) {
	leaf, ok := t.resolve(key, false)
	if !ok {
		return nil, false
	}
	return leaf.eraseDirect(key)
}

// modifyDirect applies fn to key's current value in t itself (no triecut
// routing) and carries out whatever mutation.Result it returns, returning
// the resulting entry (nil if erased or never created) and the result
// itself so the caller knows which notification to fire.
func (t *Table) modifyDirect(key []byte, fn mutation.Func) (*Datum, mutation.Result) {
	d, ok := t.shortcut[hashKey(key)]
	if !ok || !bytes.Equal(d.Key, key) {
		t.stats.NModifyNoHint++
		if i, found := t.search(key); found {
			d = t.entries[i]
		} else {
			d = nil
		}
	}

	var old []byte
	if d != nil {
		old = d.value
	}
	res := fn(old, d != nil)

	switch res.Kind {
	case mutation.Keep, mutation.Invalidate:
		return d, res
	case mutation.Write:
		if d == nil {
			nd, _ := t.upsertDirect(key, res.Value)
			return nd, res
		}
		d.value = append([]byte(nil), res.Value...)
		t.stats.NModify++
		return d, res
	case mutation.Erase:
		if d != nil {
			t.eraseDirect(key)
		}
		return nil, res
	default:
		return d, res
	}
}

// modify applies fn to key's current value (nil/false if absent) and
// carries out whatever mutation.Result it returns, routing through any
// installed triecut levels (creating child subtables as needed) first.
func (t *Table) modify(key []byte, fn mutation.Func) (*Datum, mutation.Result) {
	leaf, _ := t.resolve(key, true)
	return leaf.modifyDirect(key, fn)
}

// lowerBound returns the smallest index i such that t.entries[i].Key >= key.
func (t *Table) lowerBound(key []byte) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].Key, key) >= 0
	})
}

// rangeScan calls f for every entry with Key in [first, last), ascending,
// stopping early if f returns false. Once t has a triecut installed, its
// entries are themselves subtables rather than data, so rangeScan
// recurses into each one whose keyspace can overlap [first, last) instead
// of comparing against it directly. A subtable's marker key is the prefix
// every one of its descendants shares, so a subtable positioned just
// before the lower-bound index can still hold keys >= first (its key
// being a strict prefix sorts it earlier than any of its own contents);
// that one subtable is checked explicitly before the main forward loop,
// which needs no analogous check at the top end since a subtable's entire
// keyspace is provably >= its own marker key.
func (t *Table) rangeScan(first, last []byte, f func(*Datum) bool) {
	if t.triecut == 0 {
		for i := t.lowerBound(first); i < len(t.entries); i++ {
			d := t.entries[i]
			if bytes.Compare(d.Key, last) >= 0 {
				return
			}
			if !f(d) {
				return
			}
		}
		return
	}

	startIdx := t.lowerBound(first)
	if startIdx > 0 {
		prev := t.entries[startIdx-1]
		if bytes.HasPrefix(first, prev.Key) {
			cont := true
			prev.subtable.rangeScan(first, last, func(d *Datum) bool {
				cont = f(d)
				return cont
			})
			if !cont {
				return
			}
		}
	}
	for i := startIdx; i < len(t.entries); i++ {
		d := t.entries[i]
		if bytes.Compare(d.Key, last) >= 0 {
			return
		}
		cont := true
		d.subtable.rangeScan(first, last, func(dd *Datum) bool {
			cont = f(dd)
			return cont
		})
		if !cont {
			return
		}
	}
}

// rangeScanAll calls f for every entry in ascending key order, stopping
// early if f returns false, recursing into triecut children the same way
// rangeScan does.
func (t *Table) rangeScanAll(f func(*Datum) bool) {
	for _, d := range t.entries {
		if t.triecut != 0 {
			cont := true
			d.subtable.rangeScanAll(func(dd *Datum) bool {
				cont = f(dd)
				return cont
			})
			if !cont {
				return
			}
			continue
		}
		if !f(d) {
			return
		}
	}
}

// size returns the total number of data entries under t, recursing
// through any installed triecut levels.
func (t *Table) size() int {
	if t.triecut == 0 {
		return len(t.entries)
	}
	n := 0
	for _, d := range t.entries {
		n += d.subtable.size()
	}
	return n
}

// aggregateStats returns t's own counters summed with those of every
// subtable nested under it by triecut, rolling an arbitrarily deep cut
// into one total per table name.
func (t *Table) aggregateStats() TableStats {
	agg := t.stats
	if t.triecut != 0 {
		for _, d := range t.entries {
			agg = agg.add(d.subtable.aggregateStats())
		}
	}
	return agg
}

// upsertSubtable finds or creates the child subtable keyed by name,
// directly in t's own entries (no triecut routing — this is the
// recursion step resolve, and the root's own by-table-name dispatch,
// build on).
func (t *Table) upsertSubtable(name []byte) *Table {
	if d, ok := t.lookupEntry(name); ok {
		return d.subtable
	}
	nameCopy := append([]byte(nil), name...)
	child := newTable(nameCopy)
	i, _ := t.search(name)
	t.insertAt(i, newSubtableDatum(nameCopy, child))
	t.stats.NSubtables++
	return child
}

// findSubtable looks up the child subtable keyed by name without
// creating one, directly in t's own entries.
func (t *Table) findSubtable(name []byte) (*Table, bool) {
	d, ok := t.lookupEntry(name)
	if !ok {
		return nil, false
	}
	return d.subtable, true
}

// addSourceRange installs sr, merging it into an existing subscription
// for the same join whose interval already contains sr's range instead of
// keeping a duplicate live subscription.
func (t *Table) addSourceRange(sr *join.SourceRange) {
	iv := interval.Interval{Begin: sr.IBegin, End: sr.IEnd}
	merged := false
	t.sourceRanges.VisitContainsInterval(iv, func(e *interval.Entry[*join.SourceRange]) bool {
		existing := e.Value()
		if existing.Join == sr.Join {
			existing.AddSinks(sr)
			merged = true
			return false
		}
		return true
	})
	if !merged {
		t.sourceRanges.Insert(iv, sr)
	}
}
