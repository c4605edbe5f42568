// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import (
	"testing"

	"github.com/pequod-go/pq/join"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipRange(t *testing.T) {
	qf, ql, ok := clipRange([]byte("a"), []byte("z"), []byte("m"), []byte("zz"))
	require.True(t, ok)
	assert.Equal(t, "m", string(qf))
	assert.Equal(t, "z", string(ql))

	_, _, ok = clipRange([]byte("a"), []byte("b"), []byte("c"), []byte("d"))
	assert.False(t, ok, "disjoint ranges have no intersection")

	_, _, ok = clipRange([]byte("a"), []byte("b"), []byte("b"), []byte("c"))
	assert.False(t, ok, "half-open ranges that merely touch do not intersect")
}

func TestGapsBetweenNoExistingRanges(t *testing.T) {
	gaps := gapsBetween([]byte("a"), []byte("z"), nil)
	require.Len(t, gaps, 1)
	assert.Equal(t, "a", string(gaps[0][0]))
	assert.Equal(t, "z", string(gaps[0][1]))
}

func TestGapsBetweenFillsHoles(t *testing.T) {
	j := &join.Join{}
	valid := []*JoinRange{
		{Join: j, IBegin: []byte("c"), IEnd: []byte("e")},
		{Join: j, IBegin: []byte("g"), IEnd: []byte("i")},
	}
	gaps := gapsBetween([]byte("a"), []byte("k"), valid)
	require.Len(t, gaps, 3)
	assert.Equal(t, [2]string{"a", "c"}, [2]string{string(gaps[0][0]), string(gaps[0][1])})
	assert.Equal(t, [2]string{"e", "g"}, [2]string{string(gaps[1][0]), string(gaps[1][1])})
	assert.Equal(t, [2]string{"i", "k"}, [2]string{string(gaps[2][0]), string(gaps[2][1])})
}

func TestGapsBetweenFullyCovered(t *testing.T) {
	j := &join.Join{}
	valid := []*JoinRange{
		{Join: j, IBegin: []byte("a"), IEnd: []byte("z")},
	}
	gaps := gapsBetween([]byte("a"), []byte("z"), valid)
	assert.Empty(t, gaps)
}

func TestGapsBetweenOverlappingValidRanges(t *testing.T) {
	// overlapping valid entries (can happen transiently after a staleness
	// extension) must not push the cursor backward.
	j := &join.Join{}
	valid := []*JoinRange{
		{Join: j, IBegin: []byte("a"), IEnd: []byte("f")},
		{Join: j, IBegin: []byte("c"), IEnd: []byte("e")},
	}
	gaps := gapsBetween([]byte("a"), []byte("z"), valid)
	require.Len(t, gaps, 1)
	assert.Equal(t, "f", string(gaps[0][0]))
	assert.Equal(t, "z", string(gaps[0][1]))
}
