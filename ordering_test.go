package formstage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenumberAndContiguity(t *testing.T) {
	stages := []Stage{{ID: "a", Order: 7}, {ID: "b", Order: 2}, {ID: "c", Order: 2}}
	assert.False(t, OrdersContiguous(stages))

	RenumberStages(stages)
	assert.True(t, OrdersContiguous(stages))
	assert.Equal(t, []int{1, 2, 3}, stageOrders(stages))

	assert.True(t, OrdersContiguous(nil))
	assert.False(t, OrdersContiguous([]Stage{{Order: 0}}))
}

func TestSortStagesByOrderIsStable(t *testing.T) {
	stages := []Stage{{ID: "c", Order: 3}, {ID: "a1", Order: 1}, {ID: "b", Order: 2}, {ID: "a2", Order: 1}}
	SortStagesByOrder(stages)

	ids := make([]string, len(stages))
	for i, st := range stages {
		ids[i] = st.ID
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, ids)
}

func TestRelocate(t *testing.T) {
	items := []string{"A", "B", "C", "D"}

	cases := []struct {
		from, to int
		want     []string
	}{
		{3, 0, []string{"D", "A", "B", "C"}},
		{0, 3, []string{"B", "C", "D", "A"}},
		{1, 2, []string{"A", "C", "B", "D"}},
		{2, 2, []string{"A", "B", "C", "D"}},
		{0, 99, []string{"B", "C", "D", "A"}},
		{3, -5, []string{"D", "A", "B", "C"}},
		{9, 0, []string{"A", "B", "C", "D"}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d->%d", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, Relocate(items, tc.from, tc.to))
		})
	}

	assert.Equal(t, []string{"A", "B", "C", "D"}, items, "input must not be modified")
}

func TestRelocateEveryPairIsPermutation(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	for from := range items {
		for to := range items {
			out := Relocate(items, from, to)
			assert.Len(t, out, len(items))
			assert.ElementsMatch(t, items, out)
			assert.Equal(t, from, out[to], "moved item lands at destination")
		}
	}
}

func TestNeighborIndex(t *testing.T) {
	n, ok := NeighborIndex(3, 1, DirectionUp)
	assert.True(t, ok)
	assert.Equal(t, 0, n)

	n, ok = NeighborIndex(3, 1, DirectionDown)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = NeighborIndex(3, 0, DirectionUp)
	assert.False(t, ok)
	_, ok = NeighborIndex(3, 2, DirectionDown)
	assert.False(t, ok)
	_, ok = NeighborIndex(3, 1, Direction("sideways"))
	assert.False(t, ok)
}

func TestResolveInsertionIndex(t *testing.T) {
	// moving down
	assert.Equal(t, 1, ResolveInsertionIndex(0, 2, true))
	assert.Equal(t, 2, ResolveInsertionIndex(0, 2, false))
	// moving up
	assert.Equal(t, 1, ResolveInsertionIndex(3, 1, true))
	assert.Equal(t, 2, ResolveInsertionIndex(3, 1, false))
	// onto itself
	assert.Equal(t, 2, ResolveInsertionIndex(2, 2, true))
	assert.Equal(t, 2, ResolveInsertionIndex(2, 2, false))
}

func TestPointerAboveMidpoint(t *testing.T) {
	item := Rect{Top: 100, Height: 40}
	assert.Equal(t, 120.0, item.Midpoint())
	assert.True(t, PointerAboveMidpoint(105, item))
	assert.False(t, PointerAboveMidpoint(120, item))
	assert.False(t, PointerAboveMidpoint(139, item))
}
