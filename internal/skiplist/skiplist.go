// Package skiplist implements the ordered int64 -> *bitmap.Set index
// described in spec.md §4.B: a probabilistic multi-level ordered list with
// capped height and a node pool for allocation reuse, grounded on
// cockroachdb/pebble's arenaskl (see DESIGN.md §B). Unlike arenaskl this
// list is not lock-free: spec §4.B delegates thread-safety to the owning
// engine, so every exported method assumes the caller already holds
// whatever lock protects the index.
package skiplist

import (
	"math"
	"math/rand"

	"github.com/taosdata/incbitmap/internal/bitmap"
)

const (
	maxHeight = 32
	pValue    = 1 / math.E
)

type node struct {
	key   int64
	value *bitmap.Set
	// next[i] is the index into the list's node slice of this node's
	// successor at level i, or 0 (the sentinel head) if none.
	next [maxHeight]int32
}

// List is an ordered int64 -> *bitmap.Set map with O(log n) expected
// find/insert/remove and ordered range iteration.
type List struct {
	nodes  []node // nodes[0] is the head sentinel; real nodes start at 1
	height int
	size   int
	free   []int32 // recycled node indices, the "node pool" of spec §4.B
	rng    *rand.Rand
}

// New returns an empty List.
func New() *List {
	l := &List{
		nodes:  make([]node, 1, 64),
		height: 1,
		rng:    rand.New(rand.NewSource(1)),
	}
	return l
}

func (l *List) randomHeight() int {
	h := 1
	for h < maxHeight && l.rng.Float64() < pValue {
		h++
	}
	return h
}

func (l *List) allocNode(key int64, value *bitmap.Set, height int) int32 {
	var idx int32
	if n := len(l.free); n > 0 {
		idx = l.free[n-1]
		l.free = l.free[:n-1]
		l.nodes[idx] = node{}
	} else {
		l.nodes = append(l.nodes, node{})
		idx = int32(len(l.nodes) - 1)
	}
	nd := &l.nodes[idx]
	nd.key = key
	nd.value = value
	return idx
}

// findPath locates, at every level, the last node whose key is < key
// (predecessors), for use by Insert/Remove/Find.
func (l *List) findPath(key int64) (preds [maxHeight]int32, succ int32, found bool) {
	cur := int32(0) // head
	for lvl := l.height - 1; lvl >= 0; lvl-- {
		for {
			next := l.nodes[cur].next[lvl]
			if next == 0 || l.nodes[next].key >= key {
				break
			}
			cur = next
		}
		preds[lvl] = cur
	}
	succ = l.nodes[cur].next[0]
	found = succ != 0 && l.nodes[succ].key == key
	return
}

// Find returns the bitmap stored under key, or nil if absent.
func (l *List) Find(key int64) *bitmap.Set {
	_, succ, found := l.findPath(key)
	if !found {
		return nil
	}
	return l.nodes[succ].value
}

// GetOrCreate returns the bitmap stored under key, creating an empty one and
// inserting it if key is not already present.
func (l *List) GetOrCreate(key int64) *bitmap.Set {
	preds, succ, found := l.findPath(key)
	if found {
		return l.nodes[succ].value
	}
	value := bitmap.New()
	l.insertAt(key, value, preds)
	return value
}

// Insert stores value under key, overwriting any existing entry, and
// reports whether key was newly created.
func (l *List) Insert(key int64, value *bitmap.Set) bool {
	preds, succ, found := l.findPath(key)
	if found {
		l.nodes[succ].value = value
		return false
	}
	l.insertAt(key, value, preds)
	return true
}

func (l *List) insertAt(key int64, value *bitmap.Set, preds [maxHeight]int32) {
	height := l.randomHeight()
	if height > l.height {
		for lvl := l.height; lvl < height; lvl++ {
			preds[lvl] = 0
		}
		l.height = height
	}
	idx := l.allocNode(key, value, height)
	nd := &l.nodes[idx]
	for lvl := 0; lvl < height; lvl++ {
		nd.next[lvl] = l.nodes[preds[lvl]].next[lvl]
		l.nodes[preds[lvl]].next[lvl] = idx
	}
	l.size++
}

// Remove deletes key, returning whether it was present.
func (l *List) Remove(key int64) bool {
	preds, succ, found := l.findPath(key)
	if !found {
		return false
	}
	for lvl := 0; lvl < l.height; lvl++ {
		if l.nodes[preds[lvl]].next[lvl] != succ {
			continue
		}
		l.nodes[preds[lvl]].next[lvl] = l.nodes[succ].next[lvl]
	}
	l.nodes[succ] = node{}
	l.free = append(l.free, succ)
	l.size--
	return true
}

// Len reports the number of keys currently stored.
func (l *List) Len() int { return l.size }

// ForEach invokes fn for every key in [lo, hi], in ascending order unless
// reverse is true (in which case descending).
func (l *List) ForEach(lo, hi int64, reverse bool, fn func(key int64, value *bitmap.Set)) {
	if reverse {
		var keys []int64
		l.ForEach(lo, hi, false, func(k int64, v *bitmap.Set) { keys = append(keys, k) })
		for i := len(keys) - 1; i >= 0; i-- {
			fn(keys[i], l.Find(keys[i]))
		}
		return
	}
	cur := int32(0)
	for lvl := l.height - 1; lvl >= 0; lvl-- {
		for {
			next := l.nodes[cur].next[lvl]
			if next == 0 || l.nodes[next].key >= lo {
				break
			}
			cur = next
		}
	}
	cur = l.nodes[cur].next[0]
	for cur != 0 && l.nodes[cur].key <= hi {
		fn(l.nodes[cur].key, l.nodes[cur].value)
		cur = l.nodes[cur].next[0]
	}
}
