package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/flightlabs/aerodb/internal/lockmap"
	"github.com/flightlabs/aerodb/internal/skiplist"
)

// tableStore holds one table's rows in a skiplist memtable keyed by the
// encoded (partition, clustering) key. Writes to the same row serialize on a
// per-key lock; writes to distinct rows proceed in parallel.
type tableStore struct {
	schema Table
	rows   *skiplist.Skiplist[string, Row]
	locks  *lockmap.Map[string]

	dirtyMut sync.Mutex
	dirty    map[string]struct{}
}

func newTableStore(schema Table) *tableStore {
	return &tableStore{
		schema: schema,
		rows:   skiplist.New[string, Row](skiplist.StringComparator),
		locks:  lockmap.New[string](),
		dirty:  make(map[string]struct{}),
	}
}

// apply merges a mutation into the memtable using a read-merge-write cycle
// under the row's lock. Returns true if the stored row changed.
func (ts *tableStore) apply(row *Row) bool {
	key := row.Key()

	ts.locks.Lock(key)
	defer ts.locks.Unlock(key)

	curr, ok := ts.rows.Get(key)
	if !ok {
		curr = Row{
			PartitionKey:  row.PartitionKey,
			ClusteringKey: row.ClusteringKey,
			Cells:         make(map[string]Cell),
		}
	} else {
		// Readers iterate the stored row's cell map without taking the key
		// lock, so the merge must happen on a copy. Insert below publishes
		// the fresh map while readers keep the old one.
		curr = curr.Clone()
	}

	if !curr.Merge(row) {
		return false
	}

	ts.rows.Insert(key, curr)
	ts.markDirty(key)

	return true
}

// load places a row into the memtable without locking or dirty tracking.
// Used only while restoring state at startup, before any concurrent access.
func (ts *tableStore) load(row Row) {
	ts.rows.Insert(row.Key(), row)
}

func (ts *tableStore) get(partitionKey, clusteringKey string) (Row, bool) {
	return ts.rows.Get(RowKey(partitionKey, clusteringKey))
}

// scan returns every row of a partition, tombstoned rows included, ordered
// by the typed clustering key.
func (ts *tableStore) scan(partitionKey string) []Row {
	prefix := partitionKey + keySeparator

	var rows []Row

	it := ts.rows.ScanFrom(prefix)
	for it.HasNext() {
		key, row := it.Next()

		if !strings.HasPrefix(key, prefix) {
			break
		}

		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return ts.schema.CompareClustering(&rows[i], &rows[j]) < 0
	})

	return rows
}

func (ts *tableStore) markDirty(key string) {
	ts.dirtyMut.Lock()
	ts.dirty[key] = struct{}{}
	ts.dirtyMut.Unlock()
}

// takeDirty returns and clears the set of keys modified since the last flush.
func (ts *tableStore) takeDirty() map[string]struct{} {
	ts.dirtyMut.Lock()
	defer ts.dirtyMut.Unlock()

	dirty := ts.dirty
	ts.dirty = make(map[string]struct{})

	return dirty
}
