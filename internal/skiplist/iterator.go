package skiplist

// Iterator walks a Skiplist in key order at the bottom level.
type Iterator[K any, V any] struct {
	next *listNode[K, V]
}

func newIterator[K any, V any](node *listNode[K, V]) *Iterator[K, V] {
	return &Iterator[K, V]{next: node}
}

// HasNext returns true if there are more items in the iterator.
func (it *Iterator[K, V]) HasNext() bool {
	return it.next != nil
}

// Next returns the next key-value pair. It panics if there are no more items,
// so HasNext should always be called first.
func (it *Iterator[K, V]) Next() (key K, value V) {
	if it.next == nil {
		panic("skiplist: no more items in the iterator")
	}

	node := it.next
	it.next = node.loadNext(0)

	return node.key, node.loadValue()
}
