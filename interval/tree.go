// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package interval implements an augmented ordered tree over half-open
// byte-string intervals [Begin, End). Every node additionally tracks
// subtreeIend, the maximum End reachable in its subtree, so that
// VisitContains and VisitOverlaps can prune whole subtrees instead of
// walking every entry.
//
// The generic balanced-tree building block is explicitly out of scope for
// the join engine this package supports (any ordered container with
// interval-tree augmentation may back it); this is a plain unbalanced
// binary search tree ordered by (Begin, End) in byte-lex order. Degenerate
// insert orders give linear depth, which is acceptable here: the engine
// never expects more than a few hundred live ranges per table.
package interval

import "bytes"

// Interval is a half-open range [Begin, End) in byte-lex order.
// Begin <= End; Begin == End denotes the empty interval produced by a
// fully-bound pattern match (see the pattern package).
type Interval struct {
	Begin, End []byte
}

// Contains reports whether point lies in [Begin, End).
func (iv Interval) Contains(point []byte) bool {
	return bytes.Compare(iv.Begin, point) <= 0 && bytes.Compare(point, iv.End) < 0
}

// ContainsInterval reports whether iv entirely contains o.
func (iv Interval) ContainsInterval(o Interval) bool {
	return bytes.Compare(iv.Begin, o.Begin) <= 0 && bytes.Compare(o.End, iv.End) <= 0
}

// Overlaps reports whether iv and o share any point.
func (iv Interval) Overlaps(o Interval) bool {
	return bytes.Compare(iv.Begin, o.End) < 0 && bytes.Compare(o.Begin, iv.End) < 0
}

func compareBegin(a, b Interval) int {
	if c := bytes.Compare(a.Begin, b.Begin); c != 0 {
		return c
	}
	return bytes.Compare(a.End, b.End)
}

// Entry is a live node handle returned by Insert. It stays valid until
// passed to Erase.
type Entry[T any] struct {
	n *node[T]
}

// Value returns the payload stored at this entry.
func (e *Entry[T]) Value() T { return e.n.value }

// Interval returns the interval stored at this entry.
func (e *Entry[T]) Interval() Interval { return e.n.iv }

type node[T any] struct {
	iv          Interval
	subtreeIend []byte
	value       T
	left, right *node[T]
	parent      *node[T]
}

// Tree is an augmented interval tree over byte-string ranges.
// The zero value is ready to use.
type Tree[T any] struct {
	root *node[T]
	size int
}

// Len returns the number of live entries.
func (t *Tree[T]) Len() int { return t.size }

// Insert adds iv/value as a new entry and returns a handle to it.
// Duplicate intervals (same Begin, End) are both kept — callers that need
// at-most-one-per-interval semantics (e.g. add_source folding) must check
// first with VisitContains/Find.
func (t *Tree[T]) Insert(iv Interval, value T) *Entry[T] {
	n := &node[T]{iv: iv, subtreeIend: iv.End, value: value}
	t.size++

	if t.root == nil {
		t.root = n
		return &Entry[T]{n}
	}

	cur := t.root
	for {
		if compareBegin(iv, cur.iv) < 0 {
			if cur.left == nil {
				cur.left = n
				n.parent = cur
				break
			}
			cur = cur.left
		} else {
			if cur.right == nil {
				cur.right = n
				n.parent = cur
				break
			}
			cur = cur.right
		}
	}
	reshapeUp(n)
	return &Entry[T]{n}
}

// Erase removes the entry from the tree. e must have come from this tree's
// Insert and not have been erased already.
func (t *Tree[T]) Erase(e *Entry[T]) {
	n := e.n
	t.size--

	if n.left != nil && n.right != nil {
		// unlink n's in-order successor (which has no left child), then
		// move that node itself into n's place, so every other Entry keeps
		// pointing at the node holding its own interval and value.
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		t.size++ // the nested Erase decrements it again
		t.Erase(&Entry[T]{succ})
		succ.left, succ.right = n.left, n.right
		succ.left.parent = succ
		if succ.right != nil {
			succ.right.parent = succ
		}
		reshape(succ)
		n.left, n.right = succ, nil
	}

	child := n.left
	if child == nil {
		child = n.right
	}

	parent := n.parent
	if child != nil {
		child.parent = parent
	}
	switch {
	case parent == nil:
		t.root = child
	case parent.left == n:
		parent.left = child
	default:
		parent.right = child
	}

	if parent != nil {
		reshapeUp(parent)
	} else if child != nil {
		reshapeUp(child)
	}
}

// reshape recomputes n.subtreeIend from its own End and its children.
func reshape[T any](n *node[T]) {
	end := n.iv.End
	if n.left != nil && bytes.Compare(n.left.subtreeIend, end) > 0 {
		end = n.left.subtreeIend
	}
	if n.right != nil && bytes.Compare(n.right.subtreeIend, end) > 0 {
		end = n.right.subtreeIend
	}
	n.subtreeIend = end
}

// reshapeUp recomputes subtreeIend from n up to the root, after an
// insert or erase changed the shape or contents below n.
func reshapeUp[T any](n *node[T]) {
	for cur := n; cur != nil; cur = cur.parent {
		reshape(cur)
	}
}

// Find returns the first live entry whose interval equals iv exactly.
func (t *Tree[T]) Find(iv Interval) (*Entry[T], bool) {
	cur := t.root
	for cur != nil {
		c := compareBegin(iv, cur.iv)
		switch {
		case c == 0:
			return &Entry[T]{cur}, true
		case c < 0:
			cur = cur.left
		default:
			cur = cur.right
		}
	}
	return nil, false
}

// VisitContains calls f for every live entry whose interval contains
// point, in ascending (Begin, End) order. Per the iterator-mutation-safety
// design note (the matching set is snapshotted before any f is invoked),
// f may safely erase any entry — including the one it was just handed —
// without corrupting the remaining walk. Walk stops early if f returns
// false.
func (t *Tree[T]) VisitContains(point []byte, f func(*Entry[T]) bool) {
	visit(t.root, f, func(n *node[T]) bool {
		return n.iv.Contains(point)
	}, func(n *node[T]) bool {
		return bytes.Compare(point, n.subtreeIend) < 0
	}, func(n *node[T]) bool {
		return bytes.Compare(n.iv.Begin, point) <= 0
	})
}

// VisitContainsInterval calls f for every live entry whose interval
// entirely contains x, in ascending (Begin, End) order.
func (t *Tree[T]) VisitContainsInterval(x Interval, f func(*Entry[T]) bool) {
	visit(t.root, f, func(n *node[T]) bool {
		return n.iv.ContainsInterval(x)
	}, func(n *node[T]) bool {
		return bytes.Compare(x.Begin, n.subtreeIend) < 0
	}, func(n *node[T]) bool {
		return bytes.Compare(n.iv.Begin, x.End) < 0
	})
}

// VisitOverlaps calls f for every live entry whose interval overlaps x, in
// ascending (Begin, End) order.
func (t *Tree[T]) VisitOverlaps(x Interval, f func(*Entry[T]) bool) {
	visit(t.root, f, func(n *node[T]) bool {
		return n.iv.Overlaps(x)
	}, func(n *node[T]) bool {
		return bytes.Compare(x.Begin, n.subtreeIend) < 0
	}, func(n *node[T]) bool {
		return bytes.Compare(n.iv.Begin, x.End) < 0
	})
}

// visit collects every node matching check, in ascending (Begin, End)
// order, pruning left descents via visitSubtree (subtreeIend) and right
// descents via visitRight — then invokes f over the snapshot. Collecting
// the whole match set before calling any f is the snapshot VisitContains
// documents: f is free to mutate the tree, including
// erasing the entry it was just given, without the in-progress walk
// depending on any pointer f might have just invalidated.
func visit[T any](root *node[T], f func(*Entry[T]) bool, check, visitSubtree, visitRight func(*node[T]) bool) {
	var matches []*node[T]
	var collect func(n *node[T])
	collect = func(n *node[T]) {
		if n == nil {
			return
		}
		if n.left != nil && visitSubtree(n.left) {
			collect(n.left)
		}
		if check(n) {
			matches = append(matches, n)
		}
		if visitRight(n) && n.right != nil {
			collect(n.right)
		}
	}
	collect(root)

	for _, n := range matches {
		if !f(&Entry[T]{n}) {
			return
		}
	}
}
