package formstage

import "sort"

// SortStagesByOrder sorts stages in place by Order. Ties keep their relative position.
func SortStagesByOrder(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})
}

// RenumberStages assigns Order = position + 1 to every stage, in slice order.
func RenumberStages(stages []Stage) {
	for i := range stages {
		stages[i].Order = i + 1
	}
}

// OrdersContiguous reports whether the Order values of stages are exactly {1..N}.
func OrdersContiguous(stages []Stage) bool {
	seen := make([]bool, len(stages)+1)
	for _, s := range stages {
		if s.Order < 1 || s.Order > len(stages) || seen[s.Order] {
			return false
		}
		seen[s.Order] = true
	}
	return true
}

// Relocate returns a new slice with the item at from moved to index to. The destination is
// clamped to the bounds of the list after removal. An out-of-range from returns a copy.
func Relocate[T any](items []T, from, to int) []T {
	out := make([]T, 0, len(items))
	if from < 0 || from >= len(items) {
		return append(out, items...)
	}

	moved := items[from]
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)

	if to < 0 {
		to = 0
	}
	if to > len(out) {
		to = len(out)
	}

	out = append(out, moved)
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}

// NeighborIndex returns the index a stage at index swaps with when moved in dir within a
// list of n items. ok is false at the boundaries.
func NeighborIndex(n, index int, dir Direction) (neighbor int, ok bool) {
	switch dir {
	case DirectionUp:
		neighbor = index - 1
	case DirectionDown:
		neighbor = index + 1
	default:
		return index, false
	}
	if index < 0 || index >= n || neighbor < 0 || neighbor >= n {
		return index, false
	}
	return neighbor, true
}

// PointerAboveMidpoint reports whether a pointer at pointerY targets the upper half of item.
func PointerAboveMidpoint(pointerY float64, item Rect) bool {
	return pointerY < item.Midpoint()
}

// ResolveInsertionIndex turns a drop over the item at pointerIndex into the index at which
// the dragged item (taken from sourceIndex) is inserted once it has been removed.
//
// Moving down with the pointer over the upper half lands just above the target; moving up
// with the pointer over the lower half lands just below it. Every other drop takes the
// target's place. The result is not clamped.
func ResolveInsertionIndex(sourceIndex, pointerIndex int, pointerAboveMidpoint bool) int {
	switch {
	case sourceIndex < pointerIndex && pointerAboveMidpoint:
		return pointerIndex - 1
	case sourceIndex > pointerIndex && !pointerAboveMidpoint:
		return pointerIndex + 1
	default:
		return pointerIndex
	}
}
