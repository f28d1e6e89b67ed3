package randvar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicAtAgreesOnEveryLane(t *testing.T) {
	r := New(10, 3.5)
	for k := 0; k < 10; k++ {
		require.Equal(t, r.At(0), r.At(k))
	}
	require.True(t, r.Deterministic())
}

func TestSetDemotesDeterministic(t *testing.T) {
	r := New(4, 1.0)
	r.Set(2, 9.0)
	require.False(t, r.Deterministic())
	require.Equal(t, 9.0, r.At(2))
	require.Equal(t, 1.0, r.At(0))
}

func TestSetSameValueStaysDeterministic(t *testing.T) {
	r := New(4, 1.0)
	r.Set(2, 1.0)
	require.True(t, r.Deterministic())
}

func TestUpdateDeterministicCollapses(t *testing.T) {
	r := NewFromSlice([]float64{2, 2, 2})
	require.True(t, r.Deterministic())
	r2 := NewFromSlice([]float64{2, 3, 2})
	require.False(t, r2.Deterministic())
}

func TestFilterNotNotIsIdentity(t *testing.T) {
	f := NewFilterFromSlice([]bool{true, false, true})
	require.Equal(t, f.expand(), f.Not().Not().expand())
}

func TestFilterOrNegationIsAllTrue(t *testing.T) {
	f := NewFilterFromSlice([]bool{true, false, true})
	require.True(t, f.Or(f.Not()).AllTrue())
}

func TestSelectDeterministicShortCircuits(t *testing.T) {
	mask := NewFilter(5, false)
	then := New(5, 1.0)
	els := New(5, 2.0)
	got := Select(mask, then, els)
	require.True(t, got.Deterministic())
	require.Equal(t, 2.0, got.At(0))
}

func TestArithmeticPreservesDeterminism(t *testing.T) {
	a := New(8, 2.0)
	b := New(8, 3.0)
	require.True(t, a.Add(b).Deterministic())
	require.Equal(t, 5.0, a.Add(b).At(3))
}
