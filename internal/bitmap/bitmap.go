// Package bitmap implements the compressed 64-bit block-id set described in
// spec.md §4.A: a container-per-chunk structure (array below a density
// threshold, dense bitset above it) with union/intersect/difference,
// portable little-endian serialization, and byte accounting. Not
// thread-safe — callers (the bitmap engine) hold their own lock.
package bitmap

import (
	"sort"

	"github.com/taosdata/incbitmap/internal/errs"
)

// Set is a compressed set of 64-bit block-ids.
type Set struct {
	containers map[uint64]container
}

// New returns an empty Set.
func New() *Set {
	return &Set{containers: make(map[uint64]container)}
}

func split(id uint64) (hi uint64, lo uint16) {
	return id >> chunkBits, uint16(id & (chunkSize - 1))
}

func join(hi uint64, lo uint16) uint64 {
	return hi<<chunkBits | uint64(lo)
}

// Add inserts id, returning true if it was not already present.
func (s *Set) Add(id uint64) bool {
	hi, lo := split(id)
	c, ok := s.containers[hi]
	if !ok {
		c = newArrayContainer()
		s.containers[hi] = c
	}
	added := c.add(lo)
	if added {
		s.containers[hi] = c.maybeConvert()
	}
	return added
}

// Remove deletes id, returning true if it was present.
func (s *Set) Remove(id uint64) bool {
	hi, lo := split(id)
	c, ok := s.containers[hi]
	if !ok {
		return false
	}
	removed := c.remove(lo)
	if !removed {
		return false
	}
	if c.cardinality() == 0 {
		delete(s.containers, hi)
	} else {
		s.containers[hi] = c.maybeConvert()
	}
	return removed
}

// Contains reports whether id is a member of the set.
func (s *Set) Contains(id uint64) bool {
	hi, lo := split(id)
	c, ok := s.containers[hi]
	if !ok {
		return false
	}
	return c.contains(lo)
}

// Clear empties the set in place.
func (s *Set) Clear() {
	s.containers = make(map[uint64]container)
}

// Cardinality returns the number of members.
func (s *Set) Cardinality() uint64 {
	var n uint64
	for _, c := range s.containers {
		n += uint64(c.cardinality())
	}
	return n
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := New()
	for hi, c := range s.containers {
		out.containers[hi] = c.clone()
	}
	return out
}

func (s *Set) sortedChunks() []uint64 {
	keys := make([]uint64, 0, len(s.containers))
	for hi := range s.containers {
		keys = append(keys, hi)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ToArray writes up to max ids, in ascending order, into a new slice.
func (s *Set) ToArray(max int) []uint64 {
	if max <= 0 {
		return nil
	}
	capHint := max
	if n := s.Cardinality(); uint64(capHint) > n {
		capHint = int(n)
	}
	out := make([]uint64, 0, capHint)
	for _, hi := range s.sortedChunks() {
		if len(out) >= max {
			break
		}
		c := s.containers[hi]
		// containers already iterate their local ids in ascending order
		// (array is kept sorted; bitset walks words low-to-high).
		c.forEach(func(lo uint16) {
			if len(out) < max {
				out = append(out, join(hi, lo))
			}
		})
	}
	return out
}

// ForEach invokes fn for every member in ascending order.
func (s *Set) ForEach(fn func(id uint64)) {
	for _, hi := range s.sortedChunks() {
		s.containers[hi].forEach(func(lo uint16) { fn(join(hi, lo)) })
	}
}

// UnionInPlace mutates s to contain every id in s or other.
func (s *Set) UnionInPlace(other *Set) {
	for hi, oc := range other.containers {
		c, ok := s.containers[hi]
		if !ok {
			s.containers[hi] = oc.clone()
			continue
		}
		oc.forEach(func(lo uint16) { c.add(lo) })
		s.containers[hi] = c.maybeConvert()
	}
}

// IntersectInPlace mutates s to contain only ids present in both s and other.
func (s *Set) IntersectInPlace(other *Set) {
	for hi, c := range s.containers {
		oc, ok := other.containers[hi]
		if !ok {
			delete(s.containers, hi)
			continue
		}
		kept := newArrayContainer()
		c.forEach(func(lo uint16) {
			if oc.contains(lo) {
				kept.add(lo)
			}
		})
		if kept.cardinality() == 0 {
			delete(s.containers, hi)
		} else {
			s.containers[hi] = kept.maybeConvert()
		}
	}
}

// DifferenceInPlace mutates s to remove every id also present in other.
func (s *Set) DifferenceInPlace(other *Set) {
	for hi, oc := range other.containers {
		c, ok := s.containers[hi]
		if !ok {
			continue
		}
		oc.forEach(func(lo uint16) { c.remove(lo) })
		if c.cardinality() == 0 {
			delete(s.containers, hi)
		} else {
			s.containers[hi] = c.maybeConvert()
		}
	}
}

// Union returns a new Set containing every id in a or b, without mutating
// either.
func Union(a, b *Set) *Set {
	out := a.Clone()
	out.UnionInPlace(b)
	return out
}

// Intersect returns a new Set containing ids present in both a and b.
func Intersect(a, b *Set) *Set {
	out := a.Clone()
	out.IntersectInPlace(b)
	return out
}

// MemoryBytes estimates the heap footprint of the set's containers.
func (s *Set) MemoryBytes() int {
	total := 48 // map header + Set struct, approximate
	for hi, c := range s.containers {
		total += 8 + c.memoryBytes()
		_ = hi
	}
	return total
}

var errShortBuffer = errs.New(errs.DataCorruption, "bitmap: truncated payload")
