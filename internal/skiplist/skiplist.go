package skiplist

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

const (
	maxHeight    = 12
	branchFactor = 4
)

// Comparator compares two keys. It returns a negative number if a < b,
// 0 if a == b, and a positive number if a > b.
type Comparator[K any] func(a, b K) int

// Skiplist is a generic ordered map. It supports a single writer and multiple
// concurrent readers: readers never block, writers serialize on an internal mutex.
type Skiplist[K any, V any] struct {
	head        *listNode[K, V]
	compareKeys Comparator[K]
	mut         sync.Mutex
	height      int32
	size        int32
}

// New returns an empty Skiplist ordered by the given comparator.
func New[K any, V any](comparator Comparator[K]) *Skiplist[K, V] {
	return &Skiplist[K, V]{
		compareKeys: comparator,
		head:        &listNode[K, V]{},
	}
}

// Size returns the number of key-value pairs in the list.
func (l *Skiplist[K, V]) Size() int {
	return int(atomic.LoadInt32(&l.size))
}

func (l *Skiplist[K, V]) loadHeight() int {
	return int(atomic.LoadInt32(&l.height))
}

func (l *Skiplist[K, V]) storeHeight(h int) {
	atomic.StoreInt32(&l.height, int32(h))
}

// findLess descends the list towards the first node with a key >= the given
// key, recording the rightmost node strictly less than the key at every level.
func (l *Skiplist[K, V]) findLess(key K, searchPath *listNodes[K, V]) *listNode[K, V] {
	height := l.loadHeight()
	if height == 0 {
		return nil
	}

	level := height - 1
	node := l.head

	for {
		next := node.loadNext(level)

		if next != nil && l.compareKeys(key, next.key) > 0 {
			node = next
			continue
		}

		if searchPath != nil {
			searchPath[level] = node
		}

		if level == 0 {
			break
		}

		level--
	}

	return node
}

// Insert adds a key-value pair to the list. If the key is already present,
// its value is replaced.
func (l *Skiplist[K, V]) Insert(key K, value V) {
	l.mut.Lock()
	defer l.mut.Unlock()

	var searchPath listNodes[K, V]
	l.findLess(key, &searchPath)

	if searchPath[0] != nil {
		node := searchPath[0].loadNext(0)

		if node != nil && l.compareKeys(key, node.key) == 0 {
			node.storeValue(value)
			return
		}
	}

	newnode := &listNode[K, V]{key: key}
	newnode.storeValue(value)

	height := l.loadHeight()
	newheight := randomHeight()

	if newheight > height {
		for level := height; level < newheight; level++ {
			searchPath[level] = l.head
		}

		l.storeHeight(newheight)
	}

	// Link the new node bottom-up so that concurrent readers always see
	// a consistent list.
	for level := 0; level < newheight; level++ {
		newnode.storeNext(level, searchPath[level].loadNext(level))
	}

	for level := 0; level < newheight; level++ {
		searchPath[level].storeNext(level, newnode)
	}

	atomic.AddInt32(&l.size, 1)
}

// Get returns the value stored under the given key.
func (l *Skiplist[K, V]) Get(key K) (ret V, found bool) {
	var node *listNode[K, V]

	if prev := l.findLess(key, nil); prev != nil {
		node = prev.loadNext(0)
	}

	if node == nil || l.compareKeys(key, node.key) != 0 {
		return ret, false
	}

	return node.loadValue(), true
}

// Contains returns true if the list contains the given key.
func (l *Skiplist[K, V]) Contains(key K) bool {
	_, found := l.Get(key)
	return found
}

// Scan returns an iterator positioned at the smallest key.
// The list may change while the iterator is in use.
func (l *Skiplist[K, V]) Scan() *Iterator[K, V] {
	return newIterator(l.head.loadNext(0))
}

// ScanFrom returns an iterator positioned at the smallest key >= the given key.
func (l *Skiplist[K, V]) ScanFrom(key K) *Iterator[K, V] {
	var node *listNode[K, V]
	if prev := l.findLess(key, nil); prev != nil {
		node = prev.loadNext(0)
	}

	return newIterator(node)
}

func randomHeight() int {
	height := 1

	for height < maxHeight && ((rand.Int() % branchFactor) == 0) {
		height++
	}

	return height
}
