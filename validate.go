// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import (
	"bytes"
	"sort"
	"time"

	"github.com/pequod-go/pq/interval"
	"github.com/pequod-go/pq/join"
	"github.com/pequod-go/pq/pattern"
	"go.uber.org/zap"
)

// installedJoin pairs a registered join with the sink interval it was
// registered over, so a later AddJoin can tell a structurally identical
// join over a disjoint range (legitimate — see AddJoin) apart from one
// that actually overlaps an already-installed range (redundant).
type installedJoin struct {
	join        *join.Join
	first, last []byte
}

// JoinRange is a live, already-validated sink span: [IBegin, IEnd) of sink
// keys this Join currently keeps correct. Maintained joins do not expire
// on their own (ExpiresAtUS stays zero, since a persistent SourceRange
// keeps them current); pull-only joins expire StalenessUS microseconds
// after validation, and any JoinRange expires once an Invalidate result
// from Modify sets ExpiresAtUS. An expired range is re-walked on the next
// overlapping Validate call.
type JoinRange struct {
	Join         *join.Join
	IBegin, IEnd []byte
	ExpiresAtUS  int64
}

func (jr *JoinRange) expired(nowUS int64) bool {
	return jr.ExpiresAtUS != 0 && nowUS >= jr.ExpiresAtUS
}

// AddJoin parses spec and registers it as governing the sink range
// [first, last). It does not itself validate that range — call Validate
// to actually compute and install results, same as the original
// add_join/validate split. A malformed spec is rejected and logged at
// Warn rather than returned as a panic, per the error handling policy.
// Registering a structurally identical join (same sink/sources/value
// type) a second time is only rejected as redundant when its range
// actually overlaps a range that join is already installed over — the
// same join spec governing two disjoint sink ranges is legitimate.
func (s *Server) AddJoin(spec string, first, last []byte) error {
	j, ok := join.ParseAndLog(spec, s.log)
	if !ok {
		return ErrMalformedJoin
	}
	for _, existing := range s.installedJoins {
		if !existing.join.Equivalent(j) {
			continue
		}
		if _, _, overlaps := clipRange(existing.first, existing.last, first, last); overlaps {
			s.log.Warn("rejecting redundant join", zap.String("spec", spec))
			return ErrRedundantJoin
		}
	}
	s.installedJoins = append(s.installedJoins, installedJoin{join: j, first: first, last: last})
	s.joinSinks.Insert(interval.Interval{Begin: first, End: last}, j)

	tbl := s.root.upsertSubtable(TableName(first))
	tbl.maybeInstallTriecut(j.Sink)
	return nil
}

// Validate ensures every join whose registered sink range overlaps
// [first, last) is up to date over that overlap, recursively validating
// whatever source ranges those joins depend on along the way. Already
// valid, unexpired sub-ranges are left untouched; only the gaps between
// them are recomputed.
func (s *Server) Validate(first, last []byte) error {
	start := time.Now()
	defer func() {
		s.validateUS = float64(time.Since(start).Microseconds())
	}()

	type sinkHit struct {
		j           *join.Join
		first, last []byte
	}
	var hits []sinkHit
	s.joinSinks.VisitOverlaps(interval.Interval{Begin: first, End: last}, func(e *interval.Entry[*join.Join]) bool {
		iv := e.Interval()
		qf, ql, ok := clipRange(iv.Begin, iv.End, first, last)
		if ok {
			hits = append(hits, sinkHit{e.Value(), qf, ql})
		}
		return true
	})

	for _, h := range hits {
		s.validateSink(h.j, h.first, h.last)
	}
	return nil
}

// clipRange intersects [ibegin, iend) with [first, last), reporting ok =
// false when the intersection is empty.
func clipRange(ibegin, iend, first, last []byte) (qf, ql []byte, ok bool) {
	qf = ibegin
	if bytes.Compare(first, qf) > 0 {
		qf = first
	}
	ql = iend
	if bytes.Compare(last, ql) < 0 {
		ql = last
	}
	if bytes.Compare(qf, ql) >= 0 {
		return nil, nil, false
	}
	return qf, ql, true
}

// validateSink validates j's sink over [first, last), skipping whatever
// sub-ranges are already valid and unexpired.
func (s *Server) validateSink(j *join.Join, first, last []byte) {
	tbl := s.root.upsertSubtable(TableName(first))
	tbl.stats.NValidate++

	now := time.Now().UnixMicro()
	var valid []*JoinRange
	tbl.joinRanges.VisitOverlaps(interval.Interval{Begin: first, End: last}, func(e *interval.Entry[*JoinRange]) bool {
		jr := e.Value()
		if jr.Join != j {
			return true
		}
		if jr.expired(now) {
			tbl.joinRanges.Erase(e)
			return true
		}
		valid = append(valid, jr)
		return true
	})
	sort.Slice(valid, func(i, k int) bool {
		return bytes.Compare(valid[i].IBegin, valid[k].IBegin) < 0
	})

	for _, gap := range gapsBetween(first, last, valid) {
		s.validateJoinRange(gap[0], gap[1], j, tbl)
	}
}

// gapsBetween returns the sub-ranges of [first, last) not covered by any
// interval in valid (assumed sorted by IBegin). Since valid is sorted by
// IBegin, a later range can never start before an earlier one, so a
// single forward pass tracking only the furthest point covered so far
// (cursor) is already complete — there is no case where an out-of-order
// range invalidates one already passed, the way the original's sw_
// bitmap tracks during hard_visit.
func gapsBetween(first, last []byte, valid []*JoinRange) [][2][]byte {
	var out [][2][]byte
	cursor := first
	for _, jr := range valid {
		if bytes.Compare(cursor, jr.IBegin) < 0 {
			out = append(out, [2][]byte{cursor, jr.IBegin})
		}
		if bytes.Compare(jr.IEnd, cursor) > 0 {
			cursor = jr.IEnd
		}
	}
	if bytes.Compare(cursor, last) < 0 {
		out = append(out, [2][]byte{cursor, last})
	}
	return out
}

// validateJoinRange walks j's source chain for the sink span [first, last)
// and, for maintained or staleness-bounded joins, records the result as a
// JoinRange so a later Validate call can skip it (until it expires).
func (s *Server) validateJoinRange(first, last []byte, j *join.Join, tbl *Table) {
	// last is conventionally first's key incremented at some slot, so it
	// may fail to match the sink pattern's later literal bytes exactly
	// (e.g. "t|a}" against literal "|"); whatever prefix of slots it does
	// bind before that point is still the correct upper-bound match, so
	// the success flag itself is intentionally not checked here.
	mf, _ := j.Sink.Match(first, pattern.Match{})
	ml, _ := j.Sink.Match(last, pattern.Match{})
	s.validateJoinStep(j, mf, ml, 0)

	if j.Maintained || j.Staleness() {
		jr := &JoinRange{Join: j, IBegin: first, IEnd: last}
		if j.Staleness() {
			jr.ExpiresAtUS = time.Now().UnixMicro() + j.StalenessUS
		}
		tbl.joinRanges.Insert(interval.Interval{Begin: first, End: last}, jr)
	}
}

// validateJoinStep recursively walks source pattern joinpos over the key
// range implied by (mf, ml), narrowing the match at each level. mf/ml are
// passed by value — each recursion level gets its own independent
// bindings, instead of the mutate/save/restore dance a shared Match would
// need.
func (s *Server) validateJoinStep(j *join.Join, mf, ml pattern.Match, joinpos int) {
	src := j.Source(joinpos)
	kf := src.ExpandFirst(mf)
	kl := pattern.NormalizeRange(kf, src.ExpandLast(ml))

	// the source range may itself be fed by an earlier join; make sure
	// it's valid before walking its current contents.
	_ = s.Validate(kf, kl)

	tbl := s.root.upsertSubtable(TableName(kf))
	tbl.maybeInstallTriecut(src)

	var sr *join.SourceRange
	if joinpos+1 == j.NSource() {
		// only a slot both range ends bind to the same bytes is fixed for
		// every key in the range; one bound at a single end (such as a
		// lower boundary's 0x00 fill) is left for Notify to bind.
		var base pattern.Match
		for _, p := range append([]*pattern.Pattern{j.Sink}, j.Sources...) {
			for _, name := range p.SlotNames() {
				vf, okf := mf.Get(name)
				if vl, okl := ml.Get(name); okf && okl && bytes.Equal(vf, vl) {
					base = base.Bind(name, vf)
				}
			}
		}
		sr = join.NewSourceRange(kf, kl, j, base)
	}

	tbl.rangeScan(kf, kl, func(d *Datum) bool {
		if len(d.Key) != src.KeyLength() {
			return true
		}
		if sr != nil {
			sr.Notify(d.Key, d.Value(), join.NotifyInsert, (*storeAdapter)(s))
			return true
		}
		mk := mf.Merge(ml)
		if _, ok := src.Match(d.Key, mk); ok {
			mfNext, _ := src.Match(d.Key, mf)
			mlNext, _ := src.Match(d.Key, ml)
			s.validateJoinStep(j, mfNext, mlNext, joinpos+1)
		}
		return true
	})

	if sr != nil && j.Maintained {
		tbl.addSourceRange(sr)
	}
}
