package skiplist

import "golang.org/x/exp/constraints"

var (
	StringComparator = orderedComparator[string]
	Int64Comparator  = orderedComparator[int64]
	Uint64Comparator = orderedComparator[uint64]
)

func orderedComparator[T constraints.Ordered](a, b T) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
