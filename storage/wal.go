package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flightlabs/aerodb/internal/binario"
)

type walRecord struct {
	Keyspace string `msgpack:"k"`
	Table    string `msgpack:"t"`
	Row      Row    `msgpack:"r"`
}

// wal is the engine's write-ahead log. Every mutation is appended and synced
// here before it becomes visible in a memtable, so an acknowledged write
// survives a crash. The log is truncated once the memtables are flushed.
type wal struct {
	mut    sync.Mutex
	file   *os.File
	writer *binario.Writer
}

// openWAL opens (or creates) the log file and replays surviving records.
// Records that cannot be decoded are assumed to be a torn tail write and
// replay stops there.
func openWAL(path string, apply func(rec *walRecord)) (*wal, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal file: %w", err)
	}

	reader := binario.NewReader(file, binary.BigEndian)

	var replayed int64

	for {
		payload, err := reader.ReadBytes()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				_ = file.Close()
				return nil, fmt.Errorf("read wal record: %w", err)
			}

			break
		}

		rec := &walRecord{}
		if err := msgpack.Unmarshal(payload, rec); err != nil {
			break
		}

		apply(rec)

		replayed += int64(len(payload)) + 4
	}

	// Position after the last valid record, dropping any torn tail.
	if err := file.Truncate(replayed); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("truncate wal tail: %w", err)
	}

	if _, err := file.Seek(replayed, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("seek wal: %w", err)
	}

	return &wal{
		file:   file,
		writer: binario.NewWriter(file, binary.BigEndian),
	}, nil
}

// Append durably records a mutation. It returns only after the record has
// been handed to the operating system and synced.
func (w *wal) Append(rec *walRecord) error {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal wal record: %w", err)
	}

	w.mut.Lock()
	defer w.mut.Unlock()

	if err := w.writer.WriteBytes(payload); err != nil {
		return fmt.Errorf("append wal record: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync wal: %w", err)
	}

	return nil
}

// Truncate discards all records. Called after a successful flush.
func (w *wal) Truncate() error {
	w.mut.Lock()
	defer w.mut.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek wal: %w", err)
	}

	return w.file.Sync()
}

func (w *wal) Close() error {
	w.mut.Lock()
	defer w.mut.Unlock()

	return w.file.Close()
}
