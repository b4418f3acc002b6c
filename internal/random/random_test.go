package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeed(t *testing.T) {
	a, err := NewSeed()
	require.NoError(t, err)
	b, err := NewSeed()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRand_IntRangeInclusive(t *testing.T) {
	r := NewSeeded(42)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := r.IntRange(-2, 7)
		require.GreaterOrEqual(t, v, -2)
		require.LessOrEqual(t, v, 7)
		seen[v] = true
	}
	assert.Len(t, seen, 10, "every value in [-2, 7] should appear")
	assert.Equal(t, 3, r.IntRange(3, 3))
}

func TestRand_Deterministic(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestPick(t *testing.T) {
	assert.Equal(t, "", Pick(NewSeeded(1), nil))
	assert.Equal(t, "b", Pick(&Sequence{Picks: []int{1}}, []string{"a", "b", "c"}))
	assert.Equal(t, "c", Pick(&Sequence{Picks: []int{9}}, []string{"a", "b", "c"}), "clamped to last")
}

func TestSequence_Replays(t *testing.T) {
	s := &Sequence{Ints: []int{-2, 7}, Floats: []float64{0.25}}
	assert.Equal(t, -2, s.IntRange(-2, 7))
	assert.Equal(t, 7, s.IntRange(-2, 7))
	assert.Equal(t, -2, s.IntRange(-2, 7))
	assert.Equal(t, 3, s.IntRange(-2, 3), "clamped to max")
	assert.Equal(t, 0.25, s.Float64())
	assert.Equal(t, 0, (&Sequence{}).Intn(5))
}
