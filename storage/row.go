package storage

import "strings"

const (
	// partSeparator joins the values of a composite key part.
	partSeparator = "\x1f"
	// keySeparator joins the partition part and the clustering part into
	// the full row key. It sorts below partSeparator and all printable
	// characters, so rows of one partition are contiguous in key order.
	keySeparator = "\x00"
)

// EncodeKey joins key column values into a single comparable string.
func EncodeKey(values []string) string {
	return strings.Join(values, partSeparator)
}

// DecodeKey splits an encoded key back into its column values.
func DecodeKey(key string) []string {
	if key == "" {
		return nil
	}

	return strings.Split(key, partSeparator)
}

// RowKey builds the full memtable key of a row.
func RowKey(partitionKey, clusteringKey string) string {
	return partitionKey + keySeparator + clusteringKey
}

// Cell is one column value with the write timestamp used for conflict
// resolution.
type Cell struct {
	Value     string `msgpack:"v"`
	Timestamp int64  `msgpack:"t"`
}

// Supersedes reports whether c wins over other under last-write-wins.
// Equal timestamps are broken by comparing the values themselves, so every
// replica resolves a conflict to the same cell regardless of arrival order.
func (c Cell) Supersedes(other Cell) bool {
	if c.Timestamp != other.Timestamp {
		return c.Timestamp > other.Timestamp
	}

	return c.Value > other.Value
}

// Row is the stored form of a table row: per-column cells plus an optional
// row tombstone. Conflict resolution is per column, not per row.
type Row struct {
	PartitionKey  string          `msgpack:"p"`
	ClusteringKey string          `msgpack:"c"`
	Cells         map[string]Cell `msgpack:"cl"`
	// DeletedAt is the timestamp of the row tombstone, if any. Cells written
	// at or before it are shadowed.
	DeletedAt int64 `msgpack:"d"`
}

// Key returns the row's full memtable key.
func (r *Row) Key() string {
	return RowKey(r.PartitionKey, r.ClusteringKey)
}

// Merge folds other into r column by column and returns true if r changed.
func (r *Row) Merge(other *Row) bool {
	changed := false

	if other.DeletedAt > r.DeletedAt {
		r.DeletedAt = other.DeletedAt
		changed = true
	}

	if r.Cells == nil && len(other.Cells) > 0 {
		r.Cells = make(map[string]Cell, len(other.Cells))
	}

	for name, cell := range other.Cells {
		curr, ok := r.Cells[name]

		if !ok || cell.Supersedes(curr) {
			r.Cells[name] = cell
			changed = true
		}
	}

	return changed
}

// LiveCells returns the cells not shadowed by the row tombstone.
func (r *Row) LiveCells() map[string]Cell {
	if r.DeletedAt == 0 {
		return r.Cells
	}

	live := make(map[string]Cell, len(r.Cells))

	for name, cell := range r.Cells {
		if cell.Timestamp > r.DeletedAt {
			live[name] = cell
		}
	}

	return live
}

// IsLive reports whether the row still has any visible cells.
func (r *Row) IsLive() bool {
	return len(r.LiveCells()) > 0
}

// Clone returns a deep copy of the row.
func (r *Row) Clone() Row {
	cells := make(map[string]Cell, len(r.Cells))
	for name, cell := range r.Cells {
		cells[name] = cell
	}

	return Row{
		PartitionKey:  r.PartitionKey,
		ClusteringKey: r.ClusteringKey,
		Cells:         cells,
		DeletedAt:     r.DeletedAt,
	}
}

// Equal reports whether two rows hold identical cells and tombstones.
func (r *Row) Equal(other *Row) bool {
	if r.PartitionKey != other.PartitionKey ||
		r.ClusteringKey != other.ClusteringKey ||
		r.DeletedAt != other.DeletedAt ||
		len(r.Cells) != len(other.Cells) {
		return false
	}

	for name, cell := range r.Cells {
		if other.Cells[name] != cell {
			return false
		}
	}

	return true
}
