package skiplist

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGet(t *testing.T) {
	list := New[string, int](StringComparator)

	list.Insert("b", 2)
	list.Insert("a", 1)
	list.Insert("c", 3)

	value, found := list.Get("b")
	require.True(t, found)
	assert.Equal(t, 2, value)

	_, found = list.Get("d")
	assert.False(t, found)

	assert.True(t, list.Contains("a"))
	assert.Equal(t, 3, list.Size())
}

func TestInsertReplaces(t *testing.T) {
	list := New[string, int](StringComparator)

	list.Insert("a", 1)
	list.Insert("a", 2)

	value, _ := list.Get("a")
	assert.Equal(t, 2, value)
	assert.Equal(t, 1, list.Size())
}

func TestScanOrder(t *testing.T) {
	list := New[int64, string](Int64Comparator)

	keys := rand.Perm(100)
	for _, k := range keys {
		list.Insert(int64(k), fmt.Sprintf("value-%d", k))
	}

	var got []int64

	for it := list.Scan(); it.HasNext(); {
		key, _ := it.Next()
		got = append(got, key)
	}

	require.Len(t, got, 100)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool {
		return got[i] < got[j]
	}))
}

func TestScanFrom(t *testing.T) {
	list := New[string, int](StringComparator)

	for i, key := range []string{"a", "b", "c", "d"} {
		list.Insert(key, i)
	}

	it := list.ScanFrom("b")

	key, value := it.Next()
	assert.Equal(t, "b", key)
	assert.Equal(t, 1, value)

	// Seeking between keys lands on the next greater one.
	it = list.ScanFrom("bb")

	key, _ = it.Next()
	assert.Equal(t, "c", key)
}

func TestConcurrentReaders(t *testing.T) {
	list := New[uint64, uint64](Uint64Comparator)

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := uint64(0); i < 1000; i++ {
			list.Insert(i, i*2)
		}
	}()

	// Readers must never observe a torn list while the writer runs.
	for i := 0; i < 100; i++ {
		for it := list.Scan(); it.HasNext(); {
			key, value := it.Next()
			assert.Equal(t, key*2, value)
		}
	}

	<-done
	assert.Equal(t, 1000, list.Size())
}
