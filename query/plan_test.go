package query

import (
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightlabs/aerodb/storage"
)

func testEngine(t *testing.T) *storage.Engine {
	t.Helper()

	engine, err := storage.Open(storage.Config{
		DataDir:       t.TempDir(),
		FlushInterval: time.Minute,
		Logger:        kitlog.NewNopLogger(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = engine.Close()
	})

	require.NoError(t, engine.CreateKeyspace(storage.Keyspace{Name: "airport", ReplicationFactor: 2}))

	require.NoError(t, engine.CreateTable(storage.Table{
		Keyspace: "airport",
		Name:     "flights",
		Columns: []storage.Column{
			{Name: "day", Type: storage.TypeText},
			{Name: "flight", Type: storage.TypeText},
			{Name: "status", Type: storage.TypeText},
			{Name: "seats", Type: storage.TypeInt},
		},
		PartitionKey:  []string{"day"},
		ClusteringKey: []string{"flight"},
	}))

	return engine
}

func TestPlanInsert(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	plan, err := planner.Plan(
		"INSERT INTO flights (day, flight, status) VALUES ('mon', 'SU100', 'boarding');",
		"airport", 100,
	)
	require.NoError(t, err)

	assert.Equal(t, OpWrite, plan.Op)
	require.Len(t, plan.Rows, 1)

	row := plan.Rows[0]
	assert.Equal(t, "mon", row.PartitionKey)
	assert.Equal(t, "SU100", row.ClusteringKey)
	assert.Equal(t, storage.Cell{Value: "boarding", Timestamp: 100}, row.Cells["status"])

	// Key columns are written as cells too, so the row is visible even with
	// no regular columns set.
	assert.Contains(t, row.Cells, "day")
}

func TestPlanInsertValidation(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	tests := map[string]string{
		"unknown column": "INSERT INTO flights (day, flight, pilot) VALUES ('mon', 'SU100', 'J');",
		"unknown table":  "INSERT INTO cargo (day) VALUES ('mon');",
		"type mismatch":  "INSERT INTO flights (day, flight, seats) VALUES ('mon', 'SU100', 'lots');",
		"missing key":    "INSERT INTO flights (status) VALUES ('boarding');",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := planner.Plan(input, "airport", 100)

			var schemaErr *SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestPlanUpdate(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	plan, err := planner.Plan(
		"UPDATE flights SET status = 'departed' WHERE day = 'mon' AND flight = 'SU100';",
		"airport", 200,
	)
	require.NoError(t, err)

	require.Len(t, plan.Rows, 1)
	assert.Equal(t, storage.Cell{Value: "departed", Timestamp: 200}, plan.Rows[0].Cells["status"])

	// Updates must address one exact row.
	_, err = planner.Plan("UPDATE flights SET status = 'x' WHERE day = 'mon';", "airport", 200)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)

	// Key columns are immutable.
	_, err = planner.Plan(
		"UPDATE flights SET flight = 'SU999' WHERE day = 'mon' AND flight = 'SU100';",
		"airport", 200,
	)
	assert.ErrorAs(t, err, &schemaErr)
}

func TestPlanDelete(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	plan, err := planner.Plan(
		"DELETE FROM flights WHERE day = 'mon' AND flight = 'SU100';",
		"airport", 300,
	)
	require.NoError(t, err)

	require.Len(t, plan.Rows, 1)
	assert.EqualValues(t, 300, plan.Rows[0].DeletedAt)
	assert.Empty(t, plan.Rows[0].Cells)
}

func TestPlanSelect(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	plan, err := planner.Plan("SELECT * FROM flights WHERE day = 'mon';", "airport", 0)
	require.NoError(t, err)

	assert.Equal(t, OpSelect, plan.Op)
	assert.Equal(t, "mon", plan.PartitionKey)
	assert.Nil(t, plan.ClusteringKey)
	assert.Equal(t, []string{"day", "flight", "status", "seats"}, plan.Columns)

	// A fully bound primary key narrows the read to one row.
	plan, err = planner.Plan(
		"SELECT status FROM flights WHERE day = 'mon' AND flight = 'SU100';",
		"airport", 0,
	)
	require.NoError(t, err)
	require.NotNil(t, plan.ClusteringKey)
	assert.Equal(t, "SU100", *plan.ClusteringKey)
}

func TestPlanSelectValidation(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	tests := map[string]string{
		"no where clause filter":    "SELECT * FROM flights WHERE status = 'boarding';",
		"partition key under or":    "SELECT * FROM flights WHERE day = 'mon' OR day = 'tue';",
		"order by non clustering":   "SELECT * FROM flights WHERE day = 'mon' ORDER BY status;",
		"unknown filter column":     "SELECT * FROM flights WHERE day = 'mon' AND pilot = 'J';",
		"unknown projection column": "SELECT pilot FROM flights WHERE day = 'mon';",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := planner.Plan(input, "airport", 0)

			var schemaErr *SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestPlanRequiresKeyspace(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	_, err := planner.Plan("SELECT * FROM flights WHERE day = 'mon';", "", 0)

	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestPlanStatementCache(t *testing.T) {
	planner := NewPlanner(testEngine(t))

	input := "SELECT * FROM flights WHERE day = 'mon';"

	_, err := planner.Plan(input, "airport", 0)
	require.NoError(t, err)

	// The parsed AST is reused; planning still happens per call.
	_, ok := planner.cache.Get(input)
	assert.True(t, ok)

	// DDL is not cached.
	ddl := "CREATE KEYSPACE other WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1};"

	_, err = planner.Plan(ddl, "airport", 0)
	require.NoError(t, err)

	_, ok = planner.cache.Get(ddl)
	assert.False(t, ok)
}
