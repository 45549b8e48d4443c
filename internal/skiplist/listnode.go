package skiplist

import (
	"sync/atomic"
	"unsafe"
)

// listNodes records, one node per level, the rightmost tower preceding a key
// during a descent.
type listNodes[K any, V any] [maxHeight]*listNode[K, V]

// listNode is one tower of the list. The value and the forward pointers are
// read and written atomically, so readers may keep traversing while a writer
// links a new tower in.
type listNode[K any, V any] struct {
	key   K
	value atomic.Value
	next  [maxHeight]unsafe.Pointer
}

func (n *listNode[K, V]) loadNext(level int) *listNode[K, V] {
	return (*listNode[K, V])(atomic.LoadPointer(&n.next[level]))
}

func (n *listNode[K, V]) storeNext(level int, next *listNode[K, V]) {
	atomic.StorePointer(&n.next[level], unsafe.Pointer(next))
}

// loadValue returns the zero value until the first storeValue, which only
// matters for the head sentinel.
func (n *listNode[K, V]) loadValue() V {
	var zero V

	if val := n.value.Load(); val != nil {
		return val.(V)
	}

	return zero
}

func (n *listNode[K, V]) storeValue(value V) {
	n.value.Store(value)
}
