package bitmap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddRemoveContains(t *testing.T) {
	s := New()
	require.True(t, s.Add(42))
	require.False(t, s.Add(42))
	require.True(t, s.Contains(42))
	require.Equal(t, uint64(1), s.Cardinality())

	require.True(t, s.Remove(42))
	require.False(t, s.Remove(42))
	require.False(t, s.Contains(42))
	require.Equal(t, uint64(0), s.Cardinality())
}

func TestPromotionToBitsetAndBack(t *testing.T) {
	s := New()
	for i := uint64(0); i < arrayMaxCard+10; i++ {
		s.Add(i)
	}
	c := s.containers[0]
	require.Equal(t, kindBitset, c.kind())
	require.Equal(t, uint64(arrayMaxCard+10), s.Cardinality())

	for i := uint64(0); i < arrayMaxCard; i++ {
		s.Remove(i)
	}
	c = s.containers[0]
	require.Equal(t, kindArray, c.kind())
	require.Equal(t, uint64(10), s.Cardinality())
}

func TestToArrayAscendingAndMax(t *testing.T) {
	s := New()
	ids := []uint64{5, 1, 1 << 20, 3, 1 << 40}
	for _, id := range ids {
		s.Add(id)
	}
	got := s.ToArray(1000)
	require.Equal(t, []uint64{1, 3, 5, 1 << 20, 1 << 40}, got)

	partial := s.ToArray(2)
	require.Equal(t, []uint64{1, 3}, partial)
}

func TestUnionIntersectDifference(t *testing.T) {
	a := New()
	b := New()
	for _, id := range []uint64{1, 2, 3, 1 << 17} {
		a.Add(id)
	}
	for _, id := range []uint64{2, 3, 4, 1 << 17} {
		b.Add(id)
	}

	u := Union(a, b)
	require.Equal(t, []uint64{1, 2, 3, 4, 1 << 17}, u.ToArray(100))

	i := Intersect(a, b)
	require.Equal(t, []uint64{2, 3, 1 << 17}, i.ToArray(100))

	d := a.Clone()
	d.DifferenceInPlace(b)
	require.Equal(t, []uint64{1}, d.ToArray(100))
}

func TestSerializeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := New()
	for i := 0; i < 20000; i++ {
		s.Add(rng.Uint64() % (1 << 40))
	}

	data := s.Serialize()
	require.Equal(t, s.SerializedSize(), len(data))

	back, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, s.ToArray(1 << 20), back.ToArray(1 << 20))
}

func TestDeserializeRejectsCorruption(t *testing.T) {
	s := New()
	s.Add(1)
	s.Add(1 << 30)
	data := s.Serialize()
	data[len(data)-1] ^= 0xFF

	_, err := Deserialize(data)
	require.Error(t, err)
}

func TestClearAndClone(t *testing.T) {
	s := New()
	s.Add(1)
	s.Add(2)
	clone := s.Clone()
	s.Clear()
	require.Equal(t, uint64(0), s.Cardinality())
	require.Equal(t, uint64(2), clone.Cardinality())
}
