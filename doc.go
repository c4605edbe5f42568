// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package pq implements an in-memory key/value store whose values are
// opaque byte strings, augmented with incrementally maintained
// materialized views ("joins"): a join watches a range of source keys and
// keeps a derived range of sink keys up to date as sources change, either
// eagerly (maintained) or lazily on demand (pull-only, with bounded
// staleness).
//
// The store is organized as a trie of Table values cut on the first '|'
// byte of each key (see TableName); every Table owns its own ordered set
// of entries plus the two interval indexes (package interval) that drive
// join maintenance: source_ranges, the live subscriptions created while
// validating a join, and join_ranges, the sink spans already known valid.
//
// The API is single-threaded and cooperative: every call runs to
// completion on the calling goroutine except PrepareValidate, which is the
// one operation allowed to suspend (standing in for a distributed
// partition fetch via the Partitioner interface).
package pq
