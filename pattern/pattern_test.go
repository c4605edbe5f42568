// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndMatch(t *testing.T) {
	p, err := Parse("t|<user:1>|<page:1>")
	require.NoError(t, err)
	assert.Equal(t, 5, p.KeyLength())
	assert.Equal(t, []string{"user", "page"}, p.SlotNames())

	m, ok := p.Match([]byte("t|a|b"), Match{})
	require.True(t, ok)
	u, _ := m.Get("user")
	pg, _ := m.Get("page")
	assert.Equal(t, "a", string(u))
	assert.Equal(t, "b", string(pg))

	_, ok = p.Match([]byte("x|a|b"), Match{})
	assert.False(t, ok)

	_, ok = p.Match([]byte("t|a|b|"), Match{})
	assert.False(t, ok)
}

func TestSlotReuse(t *testing.T) {
	p, err := Parse("c|<user:1>|<page:1>|<user>")
	require.NoError(t, err)
	assert.Equal(t, 7, p.KeyLength())

	m, ok := p.Match([]byte("c|a|b|a"), Match{})
	require.True(t, ok)
	_ = m

	_, ok = p.Match([]byte("c|a|b|z"), Match{})
	assert.False(t, ok, "reused slot must bind to the same bytes")
}

func TestMatchAcceptsTruncatedRangeBoundary(t *testing.T) {
	p, err := Parse("t|<user:1>|<page:1>")
	require.NoError(t, err)

	// a range boundary key is routinely shorter than the full pattern,
	// cut exactly at a part boundary; anything past that point is simply
	// left unbound rather than rejected.
	m, ok := p.Match([]byte("t|a|"), Match{})
	require.True(t, ok)
	u, bound := m.Get("user")
	require.True(t, bound)
	assert.Equal(t, "a", string(u))
	_, pageBound := m.Get("page")
	assert.False(t, pageBound)
}

func TestMatchRejectsMidPartTruncation(t *testing.T) {
	p, err := Parse("t|<user:2>")
	require.NoError(t, err)
	// "t|a" has 1 of the 2 user bytes: cut in the middle of the slot
	_, ok := p.Match([]byte("t|a"), Match{})
	assert.False(t, ok)
}

func TestFirstSlotEnd(t *testing.T) {
	p, err := Parse("t|<id:6>|<v:1>")
	require.NoError(t, err)
	assert.Equal(t, 8, p.FirstSlotEnd())
	assert.Equal(t, "t|", string(p.FirstLiteral()))

	p, err = Parse("<id:4>|rest")
	require.NoError(t, err)
	assert.Equal(t, 4, p.FirstSlotEnd(), "a pattern with no leading literal cuts at the slot's own length")
	assert.Nil(t, p.FirstLiteral())

	p, err = Parse("t|")
	require.NoError(t, err)
	assert.Equal(t, -1, p.FirstSlotEnd(), "a pattern with no slot at all has nothing to cut on")
}

func TestUnterminatedSlotIsError(t *testing.T) {
	_, err := Parse("t|<user:1")
	assert.Error(t, err)
}

func TestReuseBeforeSizingIsError(t *testing.T) {
	_, err := Parse("t|<user>")
	assert.Error(t, err)
}

func TestExpandFullyBound(t *testing.T) {
	p, err := Parse("t|<user:1>|<page:1>")
	require.NoError(t, err)

	m := Match{}.Bind("user", []byte("a")).Bind("page", []byte("b"))
	kf := p.ExpandFirst(m)
	kl := p.ExpandLast(m)
	assert.Equal(t, kf, kl, "fully bound match has nothing to expand")

	kl = NormalizeRange(kf, kl)
	assert.Equal(t, "t|a|b\x00", string(kl))
	assert.Equal(t, "t|a|b", string(kf))
}

func TestExpandPartiallyBound(t *testing.T) {
	p, err := Parse("t|<user:1>|<page:1>")
	require.NoError(t, err)

	m := Match{}.Bind("user", []byte("a"))
	kf := p.ExpandFirst(m)
	kl := p.ExpandLast(m)
	assert.Equal(t, "t|a|\x00", string(kf))
	assert.Equal(t, "t|a}\x00", string(kl)) // 0xFF page byte carries into the '|' literal, bumping it to '}'
}

func TestExpandEmptyMatch(t *testing.T) {
	p, err := Parse("t|<user:1>")
	require.NoError(t, err)

	kf := p.ExpandFirst(Match{})
	kl := p.ExpandLast(Match{})
	assert.Equal(t, "t|\x00", string(kf))
	assert.Equal(t, "t}\x00", string(kl))
}
