// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package join

import (
	"strconv"
)

// Values that flow through count/min/max/sum joins are decimal-text
// encoded int64s, the same convention spec.md's count-match example
// relies on (the sink value "4" after four matches is a text digit, not a
// binary int). Non-numeric existing values are treated as 0 rather than
// rejected — a join only ever writes numeric text into its own sink keys,
// so a parse failure can only come from a key that predates the join.

func parseCount(b []byte) int64 {
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}

func formatCount(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func accumCount(old []byte, exists bool, delta int64) []byte {
	var cur int64
	if exists {
		cur = parseCount(old)
	}
	return formatCount(cur + delta)
}

// accumValue folds incoming into old under vt's fold operator. The first
// contribution to a sink key simply seeds it with incoming.
func accumValue(vt ValueType, old []byte, exists bool, incoming []byte) []byte {
	v := parseCount(incoming)
	if !exists {
		return formatCount(v)
	}
	cur := parseCount(old)
	switch vt {
	case ValueMin:
		if v < cur {
			cur = v
		}
	case ValueMax:
		if v > cur {
			cur = v
		}
	case ValueSum:
		cur += v
	}
	return formatCount(cur)
}
