package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumnType(t *testing.T) {
	for _, name := range []string{"text", "int", "bigint", "boolean", "timestamp", "TEXT"} {
		_, err := ParseColumnType(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseColumnType("varchar")
	assert.Error(t, err)
}

func TestColumnTypeValidate(t *testing.T) {
	assert.NoError(t, TypeText.Validate("anything"))
	assert.NoError(t, TypeInt.Validate("42"))
	assert.Error(t, TypeInt.Validate("forty-two"))
	assert.NoError(t, TypeBigint.Validate("9999999999"))
	assert.Error(t, TypeInt.Validate("9999999999")) // does not fit int32
	assert.NoError(t, TypeBoolean.Validate("true"))
	assert.Error(t, TypeBoolean.Validate("yes"))
	assert.NoError(t, TypeTimestamp.Validate("2024-06-01 15:04:05"))
	assert.Error(t, TypeTimestamp.Validate("June 1st"))
}

func TestColumnTypeCompare(t *testing.T) {
	// Numeric comparison, not lexicographic.
	assert.Negative(t, TypeInt.Compare("9", "10"))
	assert.Positive(t, TypeBigint.Compare("100", "20"))
	assert.Zero(t, TypeInt.Compare("5", "5"))

	assert.Negative(t, TypeTimestamp.Compare("2024-01-01 00:00:00", "2024-06-01 00:00:00"))

	assert.Negative(t, TypeText.Compare("10", "9"))
}

func TestCompareClustering(t *testing.T) {
	table := Table{
		Keyspace: "airport",
		Name:     "flights",
		Columns: []Column{
			{Name: "day", Type: TypeText},
			{Name: "departure", Type: TypeInt},
			{Name: "flight", Type: TypeText},
		},
		PartitionKey:  []string{"day"},
		ClusteringKey: []string{"departure", "flight"},
	}

	a := Row{PartitionKey: "mon", ClusteringKey: EncodeKey([]string{"9", "SU100"})}
	b := Row{PartitionKey: "mon", ClusteringKey: EncodeKey([]string{"10", "SU001"})}

	// departure compares as a number first.
	require.Negative(t, table.CompareClustering(&a, &b))
	require.Positive(t, table.CompareClustering(&b, &a))

	c := Row{PartitionKey: "mon", ClusteringKey: EncodeKey([]string{"9", "SU200"})}
	assert.Negative(t, table.CompareClustering(&a, &c))
}
