// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package join implements materialized-view specs: a sink pattern fed by
// one or more source patterns, with a value type describing how a
// matching source datum's value is folded into the sink's value.
package join

import "github.com/pequod-go/pq/pattern"

// ValueType selects how SourceRange.Notify folds a matched source datum's
// value into its sink entry.
type ValueType int

const (
	// ValueCopyLast copies the matching source datum's value verbatim.
	ValueCopyLast ValueType = iota
	// ValueCountMatch maintains a running count of matching source datums.
	ValueCountMatch
	// ValueMin keeps the minimum value seen across matching source datums.
	ValueMin
	// ValueMax keeps the maximum value seen across matching source datums.
	ValueMax
	// ValueSum keeps the running sum of values across matching source datums.
	ValueSum
)

func (vt ValueType) String() string {
	switch vt {
	case ValueCopyLast:
		return "copy"
	case ValueCountMatch:
		return "count"
	case ValueMin:
		return "min"
	case ValueMax:
		return "max"
	case ValueSum:
		return "sum"
	default:
		return "unknown"
	}
}

// Join is a materialized view: a sink pattern kept up to date from one or
// more ordered source patterns. The last source pattern (BackSource) is
// the one whose datums directly drive Notify; earlier source patterns only
// narrow the range that is walked during validation.
type Join struct {
	Sink        *pattern.Pattern
	Sources     []*pattern.Pattern
	ValueType   ValueType
	Maintained  bool  // push updates to the sink as sources change
	StalenessUS int64 // > 0: pull-only, results may lag by this many microseconds
}

// NSource returns the number of source patterns.
func (j *Join) NSource() int { return len(j.Sources) }

// Source returns the i'th source pattern.
func (j *Join) Source(i int) *pattern.Pattern { return j.Sources[i] }

// BackSourceIndex is the index of the last source pattern, the one whose
// datums directly notify this join.
func (j *Join) BackSourceIndex() int { return len(j.Sources) - 1 }

// BackSource is the last source pattern.
func (j *Join) BackSource() *pattern.Pattern { return j.Sources[j.BackSourceIndex()] }

// Staleness reports whether this join is pull-only (results may lag).
func (j *Join) Staleness() bool { return j.StalenessUS > 0 }

// Equivalent reports whether j and o describe the same materialized view
// (same sink, same sources in order, same value type) — used to reject a
// redundant AddJoin call.
func (j *Join) Equivalent(o *Join) bool {
	if j.ValueType != o.ValueType || len(j.Sources) != len(o.Sources) {
		return false
	}
	if j.Sink.String() != o.Sink.String() {
		return false
	}
	for i := range j.Sources {
		if j.Sources[i].String() != o.Sources[i].String() {
			return false
		}
	}
	return true
}
