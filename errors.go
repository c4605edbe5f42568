// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import "errors"

// ErrRedundantJoin is returned by AddJoin when an equivalent join (same
// sink, same sources, same value type) is already installed over a sink
// range that overlaps the new one.
var ErrRedundantJoin = errors.New("pq: redundant join")

// ErrMalformedJoin is returned by AddJoin when the grammar line itself
// fails to parse; the underlying parse error is logged at Warn, not
// wrapped into the returned error.
var ErrMalformedJoin = errors.New("pq: malformed join spec")
