package skiplist

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taosdata/incbitmap/internal/bitmap"
)

func TestInsertFindRemove(t *testing.T) {
	l := New()
	require.Nil(t, l.Find(10))

	b := l.GetOrCreate(10)
	b.Add(1)
	b.Add(2)
	require.Equal(t, 1, l.Len())

	got := l.Find(10)
	require.Equal(t, []uint64{1, 2}, got.ToArray(10))

	require.True(t, l.Remove(10))
	require.False(t, l.Remove(10))
	require.Nil(t, l.Find(10))
}

func TestForEachRangeAscendingAndDescending(t *testing.T) {
	l := New()
	for _, k := range []int64{5, 1, 3, 9, 7} {
		l.GetOrCreate(k).Add(uint64(k))
	}

	var got []int64
	l.ForEach(3, 7, false, func(k int64, _ *bitmap.Set) { got = append(got, k) })
	require.Equal(t, []int64{3, 5, 7}, got)

	var gotRev []int64
	l.ForEach(3, 7, true, func(k int64, _ *bitmap.Set) { gotRev = append(gotRev, k) })
	require.Equal(t, []int64{7, 5, 3}, gotRev)
}

func TestManyKeysOrdering(t *testing.T) {
	l := New()
	for i := int64(1000); i >= 1; i-- {
		l.GetOrCreate(i)
	}
	require.Equal(t, 1000, l.Len())

	var got []int64
	l.ForEach(1, 1000, false, func(k int64, _ *bitmap.Set) { got = append(got, k) })
	require.Len(t, got, 1000)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i])
	}
}

func TestInsertOverwriteReturnsFalse(t *testing.T) {
	l := New()
	require.True(t, l.Insert(1, bitmap.New()))
	require.False(t, l.Insert(1, bitmap.New()))
	require.Equal(t, 1, l.Len())
}

func TestRemoveThenReinsertReusesFreeList(t *testing.T) {
	l := New()
	l.GetOrCreate(1)
	l.GetOrCreate(2)
	require.True(t, l.Remove(1))
	before := len(l.nodes)
	l.GetOrCreate(3)
	require.Equal(t, before, len(l.nodes))
}
