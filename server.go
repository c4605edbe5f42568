// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import (
	"context"
	"time"

	"github.com/pequod-go/pq/interval"
	"github.com/pequod-go/pq/join"
	"github.com/pequod-go/pq/mutation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server is the store: a trie of Tables cut by table name, the joins
// registered against it, and the sink-range index (joinSinks) that
// Validate consults to find which joins govern a given key range.
//
// Server is single-threaded and cooperative: every exported method except
// PrepareValidate runs to completion before returning, and none of them
// are safe to call concurrently from multiple goroutines. This mirrors
// the original event-loop server and keeps join maintenance free of
// locking — multi-writer concurrency is explicitly out of scope.
type Server struct {
	root           *Table
	joinSinks      *interval.Tree[*join.Join]
	installedJoins []installedJoin

	partitioner Partitioner
	log         *zap.Logger

	validateUS float64
	insertUS   float64
}

// NewServer constructs an empty Server. By default it logs via
// zap.NewProduction and treats every key range as locally owned.
func NewServer(opts ...Option) *Server {
	s := &Server{
		root:        newTable(nil),
		joinSinks:   &interval.Tree[*join.Join]{},
		partitioner: localPartitioner{},
		log:         defaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// storeAdapter lets package join call back into a Server (Insert/Erase/
// Modify) without join importing package pq, which would be circular.
type storeAdapter Server

func (s *storeAdapter) Insert(key, value []byte) { (*Server)(s).Insert(key, value) }
func (s *storeAdapter) Erase(key []byte)          { (*Server)(s).Erase(key) }
func (s *storeAdapter) Modify(key []byte, fn mutation.Func) {
	(*Server)(s).Modify(key, fn)
}

// Insert writes key/value, creating the entry if it doesn't already
// exist, and notifies every live SourceRange whose range contains key.
func (s *Server) Insert(key, value []byte) {
	start := time.Now()
	tbl := s.root.upsertSubtable(TableName(key))
	d, isNew := tbl.upsert(key, value)

	n := join.NotifyUpdate
	if isNew {
		n = join.NotifyInsert
	}
	tbl.sourceRanges.VisitContains(key, func(e *interval.Entry[*join.SourceRange]) bool {
		e.Value().Notify(d.Key, d.Value(), n, (*storeAdapter)(s))
		return true
	})
	s.insertUS = float64(time.Since(start).Microseconds())
}

// Erase removes key, if present, and notifies every live SourceRange
// whose range contains it. Erasing a key that was never present, or whose
// table was never created, is a silent no-op logged at Debug.
func (s *Server) Erase(key []byte) {
	tbl, ok := s.root.findSubtable(TableName(key))
	if !ok {
		s.log.Debug("erase: unknown table", zap.ByteString("key", key))
		return
	}
	d, ok := tbl.erase(key)
	if !ok {
		s.log.Debug("erase: missing key", zap.ByteString("key", key))
		return
	}
	tbl.sourceRanges.VisitContains(key, func(e *interval.Entry[*join.SourceRange]) bool {
		e.Value().Notify(d.Key, nil, join.NotifyErase, (*storeAdapter)(s))
		return true
	})
}

// Modify applies fn to key's current value (nil, false if absent) and
// carries out whichever mutation.Result it returns: Write/Erase notify
// dependents the same as Insert/Erase would, Invalidate marks key's
// dependent join ranges stale without changing key's own value, and Keep
// does nothing.
func (s *Server) Modify(key []byte, fn mutation.Func) {
	tbl := s.root.upsertSubtable(TableName(key))
	existed := false
	_, res := tbl.modify(key, func(old []byte, exists bool) mutation.Result {
		existed = exists
		return fn(old, exists)
	})

	switch res.Kind {
	case mutation.Write:
		n := join.NotifyUpdate
		if !existed {
			n = join.NotifyInsert
		}
		tbl.sourceRanges.VisitContains(key, func(e *interval.Entry[*join.SourceRange]) bool {
			e.Value().Notify(key, res.Value, n, (*storeAdapter)(s))
			return true
		})
	case mutation.Erase:
		if !existed {
			break
		}
		tbl.sourceRanges.VisitContains(key, func(e *interval.Entry[*join.SourceRange]) bool {
			e.Value().Notify(key, nil, join.NotifyErase, (*storeAdapter)(s))
			return true
		})
	case mutation.Invalidate:
		s.invalidate(tbl, key)
	case mutation.Keep:
	}
}

// invalidate marks every JoinRange whose sink span contains key as
// immediately expired, forcing the next overlapping Validate call to
// re-walk it instead of trusting stale results.
func (s *Server) invalidate(tbl *Table, key []byte) {
	now := time.Now().UnixMicro()
	tbl.joinRanges.VisitContains(key, func(e *interval.Entry[*JoinRange]) bool {
		e.Value().ExpiresAtUS = now
		return true
	})
}

// Count returns the number of entries with keys in [first, last). first
// and last must share a table name.
func (s *Server) Count(first, last []byte) int {
	tbl, ok := s.root.findSubtable(TableName(first))
	if !ok {
		return 0
	}
	n := 0
	tbl.rangeScan(first, last, func(d *Datum) bool { n++; return true })
	return n
}

// PrepareValidate is the only operation allowed to suspend: it consults
// the Partitioner for [first, last), and — in a real distributed
// deployment — would await a remote partition fetch for ranges it doesn't
// own before validating. No remote fetch is implemented here (only the
// Partitioner interface is in scope), so it completes as soon as Validate
// does; ctx cancellation still surfaces as a completion error rather than
// rolling back whatever SourceRanges were already installed.
func (s *Server) PrepareValidate(ctx context.Context, first, last []byte) <-chan error {
	done := make(chan error, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		s.partitioner.Analyze(first, last)
		if err := s.Validate(first, last); err != nil {
			return err
		}
		return gctx.Err()
	})
	go func() {
		done <- g.Wait()
		close(done)
	}()
	return done
}

// Stats returns a snapshot of store-wide and per-table counters.
func (s *Server) Stats() Stats {
	tables := map[string]TableStats{}
	storeSize, sourceRangesSize, joinRangesSize := 0, 0, 0

	s.root.rangeScanAll(func(d *Datum) bool {
		if !d.IsSubtable() {
			return true
		}
		t := d.subtable
		storeSize += t.size()
		sourceRangesSize += t.sourceRanges.Len()
		joinRangesSize += t.joinRanges.Len()
		tables[string(d.Key)] = t.aggregateStats()
		return true
	})

	return Stats{
		StoreSize:        storeSize,
		SourceRangesSize: sourceRangesSize,
		JoinRangesSize:   joinRangesSize,
		ValidRangesSize:  joinRangesSize,
		ValidateUS:       s.validateUS,
		InsertUS:         s.insertUS,
		Tables:           tables,
	}
}
