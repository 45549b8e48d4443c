package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the declared type of a table column. Values travel and are
// stored in textual form; the type drives validation and ordering.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInt       ColumnType = "int"
	TypeBigint    ColumnType = "bigint"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
)

// TimestampLayout is the accepted textual form of timestamp values.
const TimestampLayout = "2006-01-02 15:04:05"

// ParseColumnType maps a DDL type name to a ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(name)) {
	case TypeText, TypeInt, TypeBigint, TypeBoolean, TypeTimestamp:
		return ColumnType(strings.ToLower(name)), nil
	default:
		return "", fmt.Errorf("unknown column type: %s", name)
	}
}

// Validate checks that a textual value is acceptable for the type.
func (t ColumnType) Validate(value string) error {
	switch t {
	case TypeText:
		return nil
	case TypeInt:
		if _, err := strconv.ParseInt(value, 10, 32); err != nil {
			return fmt.Errorf("invalid int value: %q", value)
		}
	case TypeBigint:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("invalid bigint value: %q", value)
		}
	case TypeBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("invalid boolean value: %q", value)
		}
	case TypeTimestamp:
		if _, err := time.Parse(TimestampLayout, value); err != nil {
			return fmt.Errorf("invalid timestamp value: %q", value)
		}
	}

	return nil
}

// Compare orders two textual values according to the column type.
func (t ColumnType) Compare(a, b string) int {
	switch t {
	case TypeInt, TypeBigint:
		ai, aerr := strconv.ParseInt(a, 10, 64)
		bi, berr := strconv.ParseInt(b, 10, 64)

		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	case TypeTimestamp:
		at, aerr := time.Parse(TimestampLayout, a)
		bt, berr := time.Parse(TimestampLayout, b)

		if aerr == nil && berr == nil {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(a, b)
}

type Column struct {
	Name string     `msgpack:"n"`
	Type ColumnType `msgpack:"t"`
}

// Keyspace groups tables under one replication factor.
type Keyspace struct {
	Name              string `msgpack:"n"`
	ReplicationFactor int    `msgpack:"rf"`
}

// Table is the immutable schema of one table: its columns and the split of
// the primary key into partition and clustering parts.
type Table struct {
	Keyspace      string   `msgpack:"k"`
	Name          string   `msgpack:"n"`
	Columns       []Column `msgpack:"c"`
	PartitionKey  []string `msgpack:"pk"`
	ClusteringKey []string `msgpack:"ck"`
}

// QualifiedName returns the table's unique "keyspace.table" name.
func (t *Table) QualifiedName() string {
	return t.Keyspace + "." + t.Name
}

// Column returns the named column's definition.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}

	return Column{}, false
}

// IsPartitionKey reports whether the column is part of the partition key.
func (t *Table) IsPartitionKey(name string) bool {
	for _, col := range t.PartitionKey {
		if col == name {
			return true
		}
	}

	return false
}

// IsClusteringKey reports whether the column is part of the clustering key.
func (t *Table) IsClusteringKey(name string) bool {
	for _, col := range t.ClusteringKey {
		if col == name {
			return true
		}
	}

	return false
}

// IsPrimaryKey reports whether the column is part of the primary key.
func (t *Table) IsPrimaryKey(name string) bool {
	return t.IsPartitionKey(name) || t.IsClusteringKey(name)
}

// CompareClustering orders two rows of this table by their clustering key
// values, column by column, using the declared column types.
func (t *Table) CompareClustering(a, b *Row) int {
	av := DecodeKey(a.ClusteringKey)
	bv := DecodeKey(b.ClusteringKey)

	for i, name := range t.ClusteringKey {
		if i >= len(av) || i >= len(bv) {
			break
		}

		col, _ := t.Column(name)

		if cmp := col.Type.Compare(av[i], bv[i]); cmp != 0 {
			return cmp
		}
	}

	return 0
}
