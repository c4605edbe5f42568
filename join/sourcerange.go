// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package join

import (
	"github.com/pequod-go/pq/mutation"
	"github.com/pequod-go/pq/pattern"
)

// Notifier describes why Notify is firing for a given key: a brand new
// datum, a value change on an existing datum, or a removal. CountMatch
// joins use its numeric value directly as a +1/0/-1 delta.
type Notifier int

const (
	NotifyErase  Notifier = -1
	NotifyUpdate Notifier = 0
	NotifyInsert Notifier = 1
)

// Store is the subset of Server/Table operations a SourceRange needs to
// push results into the sink. It exists so package join never imports the
// root package (which imports join), avoiding an import cycle.
type Store interface {
	Insert(key, value []byte)
	Erase(key []byte)
	Modify(key []byte, fn mutation.Func)
}

// SourceRange is the live subscription created when a join's back source
// pattern range is validated: every datum later inserted, modified, or
// erased inside [IBegin, IEnd) is folded into one or more sink entries.
//
// A single key range can be reached by more than one validation walk (the
// same source range underlying two different, not-yet-disjoint sink
// ranges); AddSinks folds those walks' base matches into one SourceRange
// instead of keeping duplicate subscriptions, mirroring the original
// add_sinks/resultkeys_ merge.
type SourceRange struct {
	Join         *Join
	IBegin, IEnd []byte

	// BaseMatches are the sink/earlier-source slot bindings fixed at
	// validation time, one per validation walk that produced this range.
	// Notify extends each with the back source's own slots (bound fresh
	// from the notifying datum's key) to produce a concrete sink key.
	BaseMatches []pattern.Match
}

// NewSourceRange creates a SourceRange over [ibegin, iend) for j, seeded
// with the Match bound by the validation walk that discovered it.
func NewSourceRange(ibegin, iend []byte, j *Join, m pattern.Match) *SourceRange {
	return &SourceRange{
		Join:        j,
		IBegin:      ibegin,
		IEnd:        iend,
		BaseMatches: []pattern.Match{m},
	}
}

// AddSinks folds another SourceRange's base matches into r. Both must
// belong to the same Join.
func (r *SourceRange) AddSinks(o *SourceRange) {
	r.BaseMatches = append(r.BaseMatches, o.BaseMatches...)
}

// Notify folds a source datum change into every sink entry r subscribes
// on behalf of. key/value are the source datum's current key/value (value
// is ignored on erase); n says what kind of change this is.
func (r *SourceRange) Notify(key, value []byte, n Notifier, store Store) {
	switch r.Join.ValueType {
	case ValueCopyLast:
		r.notifyCopy(key, value, n, store)
	case ValueCountMatch:
		r.notifyCount(key, n, store)
	default:
		r.notifyAccum(key, value, n, store)
	}
}

// sinkKeysFor extends each of r's base matches with key's back-source
// bindings and expands the sink pattern with the result, yielding one
// sink key per base match. A base match that key's back source pattern
// doesn't actually match (slot values from two different validation walks
// can conflict) is skipped.
func (r *SourceRange) sinkKeysFor(key []byte) [][]byte {
	bs := r.Join.BackSource()
	out := make([][]byte, 0, len(r.BaseMatches))
	for _, base := range r.BaseMatches {
		m, ok := bs.Match(key, base)
		if !ok {
			continue
		}
		out = append(out, r.Join.Sink.ExpandFirst(m))
	}
	return out
}

func (r *SourceRange) notifyCopy(key, value []byte, n Notifier, store Store) {
	for _, sinkKey := range r.sinkKeysFor(key) {
		if n == NotifyErase {
			store.Erase(sinkKey)
		} else {
			store.Insert(sinkKey, value)
		}
	}
}

func (r *SourceRange) notifyCount(key []byte, n Notifier, store Store) {
	if n == NotifyUpdate {
		// a value change on an already-counted datum doesn't change the count
		return
	}
	delta := int64(n)
	for _, sinkKey := range r.sinkKeysFor(key) {
		store.Modify(sinkKey, func(old []byte, exists bool) mutation.Result {
			return mutation.WriteResult(accumCount(old, exists, delta))
		})
	}
}

func (r *SourceRange) notifyAccum(key, value []byte, n Notifier, store Store) {
	vt := r.Join.ValueType
	for _, sinkKey := range r.sinkKeysFor(key) {
		if n == NotifyErase {
			// min/max/sum accumulators don't carry enough state to retract
			// a single contribution; the safe move is to drop the sink
			// entry rather than serve a stale aggregate.
			store.Erase(sinkKey)
			continue
		}
		v := value
		store.Modify(sinkKey, func(old []byte, exists bool) mutation.Result {
			return mutation.WriteResult(accumValue(vt, old, exists, v))
		})
	}
}
