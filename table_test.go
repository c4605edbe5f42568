// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import (
	"fmt"
	"testing"

	"github.com/pequod-go/pq/mutation"
	"github.com/pequod-go/pq/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableUpsertAndFind(t *testing.T) {
	tbl := newTable([]byte("t|"))
	d, isNew := tbl.upsert([]byte("t|k1"), []byte("v1"))
	assert.True(t, isNew)
	assert.Equal(t, "v1", string(d.Value()))

	d2, isNew := tbl.upsert([]byte("t|k1"), []byte("v2"))
	assert.False(t, isNew)
	assert.Equal(t, "v2", string(d2.Value()))
	assert.Equal(t, int64(1), tbl.stats.NInsert)
	assert.Equal(t, int64(1), tbl.stats.NModify)

	found, ok := tbl.find([]byte("t|k1"))
	require.True(t, ok)
	assert.Equal(t, "v2", string(found.Value()))

	_, ok = tbl.find([]byte("t|missing"))
	assert.False(t, ok)
}

func TestTableErase(t *testing.T) {
	tbl := newTable([]byte("t|"))
	tbl.upsert([]byte("t|k1"), []byte("v1"))
	d, ok := tbl.erase([]byte("t|k1"))
	require.True(t, ok)
	assert.Equal(t, "v1", string(d.Value()))
	assert.Equal(t, int64(1), tbl.stats.NErase)

	_, ok = tbl.find([]byte("t|k1"))
	assert.False(t, ok)

	_, ok = tbl.erase([]byte("t|k1"))
	assert.False(t, ok)
}

func TestTableModify(t *testing.T) {
	tbl := newTable([]byte("t|"))

	// Write on a missing key creates it
	_, res := tbl.modify([]byte("t|k1"), func(old []byte, exists bool) mutation.Result {
		assert.False(t, exists)
		return mutation.WriteResult([]byte("v1"))
	})
	assert.Equal(t, mutation.Write, res.Kind)
	d, ok := tbl.find([]byte("t|k1"))
	require.True(t, ok)
	assert.Equal(t, "v1", string(d.Value()))

	// Keep leaves the value untouched
	_, res = tbl.modify([]byte("t|k1"), func(old []byte, exists bool) mutation.Result {
		assert.Equal(t, "v1", string(old))
		return mutation.KeepResult()
	})
	assert.Equal(t, mutation.Keep, res.Kind)
	d, _ = tbl.find([]byte("t|k1"))
	assert.Equal(t, "v1", string(d.Value()))

	// Erase removes it
	_, res = tbl.modify([]byte("t|k1"), func(old []byte, exists bool) mutation.Result {
		return mutation.EraseResult()
	})
	assert.Equal(t, mutation.Erase, res.Kind)
	_, ok = tbl.find([]byte("t|k1"))
	assert.False(t, ok)
}

func TestTableRangeScanOrder(t *testing.T) {
	tbl := newTable(nil)
	keys := []string{"c", "a", "e", "b", "d"}
	for _, k := range keys {
		tbl.upsert([]byte(k), []byte(k))
	}

	var got []string
	tbl.rangeScan([]byte("b"), []byte("e"), func(d *Datum) bool {
		got = append(got, string(d.Key))
		return true
	})
	assert.Equal(t, []string{"b", "c", "d"}, got)
}

func TestTableSubtableRouting(t *testing.T) {
	root := newTable(nil)
	a := root.upsertSubtable([]byte("t|"))
	b := root.upsertSubtable([]byte("t|")) // idempotent
	assert.Same(t, a, b)

	a.upsert([]byte("t|x"), []byte("1"))

	found, ok := root.findSubtable([]byte("t|"))
	require.True(t, ok)
	assert.Same(t, a, found)

	_, ok = root.findSubtable([]byte("u|"))
	assert.False(t, ok)

	assert.Equal(t, int64(1), root.stats.NSubtables)
}

func TestMaybeInstallTriecutOnlyWhileEmpty(t *testing.T) {
	tbl := newTable([]byte("t|"))
	p, err := pattern.Parse("t|<id:6>|<v:1>")
	require.NoError(t, err)

	tbl.maybeInstallTriecut(p)
	assert.Equal(t, 6, tbl.triecut)

	// already populated: offering the pattern again must not cut it
	tbl.triecut = 0
	tbl.upsert([]byte("t|alreadyhere"), []byte("1"))
	tbl.maybeInstallTriecut(p)
	assert.Equal(t, 0, tbl.triecut, "an already-populated table keeps storing its entries directly")
}

func TestTableTriecutRoutesEachKeyToItsOwnSubtable(t *testing.T) {
	// the literal 100-key triecut scenario: a table cut 6 bytes past its
	// own name files each of 100 distinct 6-digit ids into its own child
	// subtable of exactly one entry.
	tbl := newTable([]byte("t|"))
	p, err := pattern.Parse("t|<id:6>|<v:1>")
	require.NoError(t, err)
	tbl.maybeInstallTriecut(p)
	require.Equal(t, 6, tbl.triecut)

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("t|%06d|x", i))
		tbl.upsert(key, []byte("v"))
	}

	assert.Equal(t, int64(100), tbl.stats.NSubtables)
	assert.Equal(t, 100, tbl.size())

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("t|%06d|x", i))
		d, ok := tbl.find(key)
		require.True(t, ok)
		assert.Equal(t, "v", string(d.Value()))

		child, ok := tbl.findSubtable([]byte(fmt.Sprintf("t|%06d", i)))
		require.True(t, ok)
		assert.Equal(t, 1, child.size())
	}

	var got []string
	tbl.rangeScan([]byte("t|000040"), []byte("t|000043"), func(d *Datum) bool {
		got = append(got, string(d.Key))
		return true
	})
	assert.Equal(t, []string{"t|000040|x", "t|000041|x", "t|000042|x"}, got)
}

func TestTableResolvePanicsOnKeyShorterThanTriecutBoundary(t *testing.T) {
	tbl := newTable([]byte("t|"))
	tbl.triecut = 6
	assert.Panics(t, func() {
		tbl.resolve([]byte("t|abc"), true)
	})
}
