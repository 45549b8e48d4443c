package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/replication/consistency"
	"github.com/flightlabs/aerodb/storage"
)

type fakeCoordinator struct {
	writes  []*storage.Row
	rows    []storage.Row
	schemas []*nodeapi.SchemaRequest
}

func (c *fakeCoordinator) Write(
	_ context.Context, _ consistency.Level, _, _ string, row *storage.Row,
) error {
	c.writes = append(c.writes, row)
	return nil
}

func (c *fakeCoordinator) Read(
	_ context.Context, _ consistency.Level, _, _, _ string, _ *string,
) ([]storage.Row, error) {
	return c.rows, nil
}

func (c *fakeCoordinator) ApplySchema(_ context.Context, req *nodeapi.SchemaRequest) error {
	c.schemas = append(c.schemas, req)
	return nil
}

func flightRow(day, flight, status string, seats string, ts int64) storage.Row {
	return storage.Row{
		PartitionKey:  day,
		ClusteringKey: flight,
		Cells: map[string]storage.Cell{
			"day":    {Value: day, Timestamp: ts},
			"flight": {Value: flight, Timestamp: ts},
			"status": {Value: status, Timestamp: ts},
			"seats":  {Value: seats, Timestamp: ts},
		},
	}
}

func TestExecuteUse(t *testing.T) {
	coord := &fakeCoordinator{}
	executor := NewExecutor(testEngine(t), coord)

	_, keyspace, err := executor.Execute(context.Background(), "USE airport;", "", consistency.Quorum)
	require.NoError(t, err)
	assert.Equal(t, "airport", keyspace)

	_, _, err = executor.Execute(context.Background(), "USE nope;", "", consistency.Quorum)

	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestExecuteDDL(t *testing.T) {
	coord := &fakeCoordinator{}
	executor := NewExecutor(testEngine(t), coord)

	_, _, err := executor.Execute(
		context.Background(),
		"CREATE KEYSPACE cargo WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 2};",
		"", consistency.Quorum,
	)
	require.NoError(t, err)

	require.Len(t, coord.schemas, 1)
	require.NotNil(t, coord.schemas[0].Keyspace)
	assert.Equal(t, "cargo", coord.schemas[0].Keyspace.Name)
	assert.Equal(t, 2, coord.schemas[0].Keyspace.ReplicationFactor)
}

func TestExecuteInsert(t *testing.T) {
	coord := &fakeCoordinator{}
	executor := NewExecutor(testEngine(t), coord)

	result, _, err := executor.Execute(
		context.Background(),
		"INSERT INTO flights (day, flight, status) VALUES ('mon', 'SU100', 'boarding'), ('mon', 'SU200', 'delayed');",
		"airport", consistency.Quorum,
	)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)

	require.Len(t, coord.writes, 2)
	assert.Equal(t, "SU100", coord.writes[0].ClusteringKey)
	assert.Equal(t, "SU200", coord.writes[1].ClusteringKey)
}

func TestExecuteSelect(t *testing.T) {
	coord := &fakeCoordinator{
		rows: []storage.Row{
			flightRow("mon", "SU100", "boarding", "180", 10),
			flightRow("mon", "SU200", "delayed", "120", 10),
		},
	}

	executor := NewExecutor(testEngine(t), coord)

	result, _, err := executor.Execute(
		context.Background(),
		"SELECT flight, status FROM flights WHERE day = 'mon';",
		"airport", consistency.Quorum,
	)
	require.NoError(t, err)

	require.Len(t, result.Columns, 2)
	assert.Equal(t, "flight", result.Columns[0].Name)
	assert.Equal(t, storage.TypeText, result.Columns[0].Type)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, []string{"SU100", "boarding"}, result.Rows[0])
	assert.Equal(t, []string{"SU200", "delayed"}, result.Rows[1])
}

func TestExecuteSelectFiltersAndOrders(t *testing.T) {
	coord := &fakeCoordinator{
		rows: []storage.Row{
			flightRow("mon", "SU100", "boarding", "180", 10),
			flightRow("mon", "SU200", "delayed", "120", 10),
			flightRow("mon", "SU300", "boarding", "90", 10),
		},
	}

	executor := NewExecutor(testEngine(t), coord)

	result, _, err := executor.Execute(
		context.Background(),
		"SELECT flight FROM flights WHERE day = 'mon' AND status = 'boarding' ORDER BY flight DESC;",
		"airport", consistency.Quorum,
	)
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, []string{"SU300"}, result.Rows[0])
	assert.Equal(t, []string{"SU100"}, result.Rows[1])
}

func TestExecuteSelectHidesTombstones(t *testing.T) {
	deleted := flightRow("mon", "SU100", "boarding", "180", 10)
	deleted.DeletedAt = 20

	coord := &fakeCoordinator{
		rows: []storage.Row{
			deleted,
			flightRow("mon", "SU200", "delayed", "120", 10),
		},
	}

	executor := NewExecutor(testEngine(t), coord)

	result, _, err := executor.Execute(
		context.Background(),
		"SELECT flight FROM flights WHERE day = 'mon';",
		"airport", consistency.Quorum,
	)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, []string{"SU200"}, result.Rows[0])
}

func TestExecuteSelectTypedComparison(t *testing.T) {
	coord := &fakeCoordinator{
		rows: []storage.Row{
			flightRow("mon", "SU100", "boarding", "9", 10),
			flightRow("mon", "SU200", "delayed", "120", 10),
		},
	}

	executor := NewExecutor(testEngine(t), coord)

	// seats is an int column: 9 < 120 numerically, not lexicographically.
	result, _, err := executor.Execute(
		context.Background(),
		"SELECT flight FROM flights WHERE day = 'mon' AND seats < 100;",
		"airport", consistency.Quorum,
	)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, []string{"SU100"}, result.Rows[0])
}
