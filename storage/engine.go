package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var (
	ErrKeyspaceExists   = errors.New("keyspace already exists")
	ErrKeyspaceNotFound = errors.New("keyspace not found")
	ErrTableExists      = errors.New("table already exists")
	ErrTableNotFound    = errors.New("table not found")
)

var (
	bucketKeyspaces = []byte("keyspaces")
	bucketTables    = []byte("tables")
)

func rowsBucket(qualified string) []byte {
	return []byte("rows:" + qualified)
}

type Config struct {
	// DataDir is this node's private storage directory.
	DataDir string
	// FlushInterval is the period of the background flush loop moving
	// memtable rows into the bolt file and truncating the WAL.
	FlushInterval time.Duration
	Logger        kitlog.Logger
}

func DefaultConfig() Config {
	return Config{
		FlushInterval: 10 * time.Second,
		Logger:        kitlog.NewNopLogger(),
	}
}

// Engine is the per-node durable table store. Every table lives entirely in
// a memtable backed by a shared write-ahead log; a background loop flushes
// modified rows into a bolt file and truncates the log. A write is
// acknowledged only after it is in the log, so no acknowledged write is lost.
type Engine struct {
	mut       sync.RWMutex
	keyspaces map[string]Keyspace
	tables    map[string]*tableStore

	db     *bbolt.DB
	wal    *wal
	logger kitlog.Logger
	conf   Config

	wg   sync.WaitGroup
	stop chan struct{}
}

// Open restores the engine from the data directory: schema and rows come
// from the bolt file, then the WAL replays whatever was not flushed before
// the last shutdown.
func Open(conf Config) (*Engine, error) {
	if err := os.MkdirAll(conf.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(conf.DataDir, "aerodb.db"), 0o644, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt file: %w", err)
	}

	e := &Engine{
		keyspaces: make(map[string]Keyspace),
		tables:    make(map[string]*tableStore),
		db:        db,
		logger:    kitlog.With(conf.Logger, "component", "storage"),
		conf:      conf,
		stop:      make(chan struct{}),
	}

	if err := e.restore(); err != nil {
		_ = db.Close()
		return nil, err
	}

	e.wal, err = openWAL(filepath.Join(conf.DataDir, "aerodb.wal"), func(rec *walRecord) {
		if ts, ok := e.tables[rec.Keyspace+"."+rec.Table]; ok {
			ts.apply(&rec.Row)
		}
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	e.wg.Add(1)
	go e.flushLoop()

	return e, nil
}

func (e *Engine) restore() error {
	return e.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketKeyspaces); b != nil {
			if err := b.ForEach(func(_, v []byte) error {
				var ks Keyspace
				if err := msgpack.Unmarshal(v, &ks); err != nil {
					return fmt.Errorf("decode keyspace: %w", err)
				}

				e.keyspaces[ks.Name] = ks

				return nil
			}); err != nil {
				return err
			}
		}

		if b := tx.Bucket(bucketTables); b != nil {
			if err := b.ForEach(func(_, v []byte) error {
				var table Table
				if err := msgpack.Unmarshal(v, &table); err != nil {
					return fmt.Errorf("decode table: %w", err)
				}

				e.tables[table.QualifiedName()] = newTableStore(table)

				return nil
			}); err != nil {
				return err
			}
		}

		for qualified, ts := range e.tables {
			b := tx.Bucket(rowsBucket(qualified))
			if b == nil {
				continue
			}

			if err := b.ForEach(func(_, v []byte) error {
				var row Row
				if err := msgpack.Unmarshal(v, &row); err != nil {
					return fmt.Errorf("decode row: %w", err)
				}

				ts.load(row)

				return nil
			}); err != nil {
				return err
			}
		}

		return nil
	})
}

// CreateKeyspace registers a keyspace and persists it immediately.
func (e *Engine) CreateKeyspace(ks Keyspace) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	if _, ok := e.keyspaces[ks.Name]; ok {
		return ErrKeyspaceExists
	}

	payload, err := msgpack.Marshal(&ks)
	if err != nil {
		return fmt.Errorf("marshal keyspace: %w", err)
	}

	err = e.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketKeyspaces)
		if err != nil {
			return err
		}

		return b.Put([]byte(ks.Name), payload)
	})
	if err != nil {
		return fmt.Errorf("persist keyspace: %w", err)
	}

	e.keyspaces[ks.Name] = ks

	level.Info(e.logger).Log("msg", "keyspace created", "keyspace", ks.Name, "rf", ks.ReplicationFactor)

	return nil
}

// CreateTable registers a table schema and persists it immediately.
func (e *Engine) CreateTable(table Table) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	if _, ok := e.keyspaces[table.Keyspace]; !ok {
		return ErrKeyspaceNotFound
	}

	qualified := table.QualifiedName()

	if _, ok := e.tables[qualified]; ok {
		return ErrTableExists
	}

	payload, err := msgpack.Marshal(&table)
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}

	err = e.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketTables)
		if err != nil {
			return err
		}

		if err := b.Put([]byte(qualified), payload); err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists(rowsBucket(qualified))

		return err
	})
	if err != nil {
		return fmt.Errorf("persist table: %w", err)
	}

	e.tables[qualified] = newTableStore(table)

	level.Info(e.logger).Log("msg", "table created", "table", qualified)

	return nil
}

// Keyspace returns a keyspace definition.
func (e *Engine) Keyspace(name string) (Keyspace, bool) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	ks, ok := e.keyspaces[name]

	return ks, ok
}

// Table returns a table schema.
func (e *Engine) Table(keyspace, name string) (Table, bool) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	ts, ok := e.tables[keyspace+"."+name]
	if !ok {
		return Table{}, false
	}

	return ts.schema, true
}

// Write durably applies a mutation: WAL first, memtable second. The call
// returns only once the mutation would survive a crash.
func (e *Engine) Write(keyspace, table string, row *Row) error {
	e.mut.RLock()
	defer e.mut.RUnlock()

	ts, ok := e.tables[keyspace+"."+table]
	if !ok {
		return ErrTableNotFound
	}

	if err := e.wal.Append(&walRecord{
		Keyspace: keyspace,
		Table:    table,
		Row:      *row,
	}); err != nil {
		return err
	}

	ts.apply(row)

	return nil
}

// Delete writes a row tombstone with the given timestamp.
func (e *Engine) Delete(keyspace, table, partitionKey, clusteringKey string, timestamp int64) error {
	return e.Write(keyspace, table, &Row{
		PartitionKey:  partitionKey,
		ClusteringKey: clusteringKey,
		DeletedAt:     timestamp,
	})
}

// Get returns the row stored under the exact (partition, clustering) key.
// Tombstoned rows are returned as well: replicas must see tombstones to
// converge, filtering happens at the query layer.
func (e *Engine) Get(keyspace, table, partitionKey, clusteringKey string) (Row, bool, error) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	ts, ok := e.tables[keyspace+"."+table]
	if !ok {
		return Row{}, false, ErrTableNotFound
	}

	row, found := ts.get(partitionKey, clusteringKey)

	return row, found, nil
}

// Scan returns all rows of a partition in clustering-key order.
func (e *Engine) Scan(keyspace, table, partitionKey string) ([]Row, error) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	ts, ok := e.tables[keyspace+"."+table]
	if !ok {
		return nil, ErrTableNotFound
	}

	return ts.scan(partitionKey), nil
}

func (e *Engine) flushLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.conf.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if err := e.Flush(); err != nil {
				level.Error(e.logger).Log("msg", "flush failed", "err", err)
			}
		}
	}
}

// Flush persists all modified rows into the bolt file and truncates the WAL.
// It blocks writers for its duration.
func (e *Engine) Flush() error {
	e.mut.Lock()
	defer e.mut.Unlock()

	type flushedTable struct {
		store *tableStore
		keys  map[string]struct{}
	}

	var pending []flushedTable

	for _, ts := range e.tables {
		if dirty := ts.takeDirty(); len(dirty) > 0 {
			pending = append(pending, flushedTable{store: ts, keys: dirty})
		}
	}

	if len(pending) == 0 {
		return nil
	}

	err := e.db.Update(func(tx *bbolt.Tx) error {
		for _, ft := range pending {
			b, err := tx.CreateBucketIfNotExists(rowsBucket(ft.store.schema.QualifiedName()))
			if err != nil {
				return err
			}

			for key := range ft.keys {
				row, ok := ft.store.rows.Get(key)
				if !ok {
					continue
				}

				payload, err := msgpack.Marshal(&row)
				if err != nil {
					return fmt.Errorf("marshal row: %w", err)
				}

				if err := b.Put([]byte(key), payload); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		// Keys stay in the WAL until a flush succeeds, put them back.
		for _, ft := range pending {
			for key := range ft.keys {
				ft.store.markDirty(key)
			}
		}

		return fmt.Errorf("flush rows: %w", err)
	}

	if err := e.wal.Truncate(); err != nil {
		return err
	}

	level.Debug(e.logger).Log("msg", "memtables flushed", "tables", len(pending))

	return nil
}

// Close flushes outstanding rows and releases the data files.
func (e *Engine) Close() error {
	close(e.stop)
	e.wg.Wait()

	if err := e.Flush(); err != nil {
		return err
	}

	if err := e.wal.Close(); err != nil {
		return err
	}

	return e.db.Close()
}
