package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCreateKeyspace(t *testing.T) {
	stmt, err := Parse(
		"CREATE KEYSPACE airport WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 3};",
	)
	require.NoError(t, err)

	ck, ok := stmt.(*CreateKeyspaceStatement)
	require.True(t, ok)
	assert.Equal(t, "airport", ck.Name)
	assert.Equal(t, 3, ck.ReplicationFactor)
}

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE flights (
		day text,
		departure timestamp,
		flight text,
		status text,
		PRIMARY KEY ((day), departure, flight)
	);`)
	require.NoError(t, err)

	ct, ok := stmt.(*CreateTableStatement)
	require.True(t, ok)
	assert.Equal(t, "flights", ct.Name)
	assert.Len(t, ct.Columns, 4)
	assert.Equal(t, []string{"day"}, ct.PartitionKey)
	assert.Equal(t, []string{"departure", "flight"}, ct.ClusteringKey)
}

func TestParseCreateTable_SimpleKey(t *testing.T) {
	stmt, err := Parse("CREATE TABLE airports (code text, city text, PRIMARY KEY (code))")
	require.NoError(t, err)

	ct := stmt.(*CreateTableStatement)
	assert.Equal(t, []string{"code"}, ct.PartitionKey)
	assert.Empty(t, ct.ClusteringKey)
}

func TestParseUse(t *testing.T) {
	stmt, err := Parse("USE airport;")
	require.NoError(t, err)
	assert.Equal(t, "airport", stmt.(*UseStatement).Keyspace)
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse(
		"INSERT INTO flights (day, flight, status) VALUES ('mon', 'SU100', 'boarding'), ('mon', 'SU200', 'delayed');",
	)
	require.NoError(t, err)

	ins := stmt.(*InsertStatement)
	assert.Equal(t, "flights", ins.Table)
	assert.Equal(t, []string{"day", "flight", "status"}, ins.Columns)
	require.Len(t, ins.Rows, 2)
	assert.Equal(t, []string{"mon", "SU200", "delayed"}, ins.Rows[1])
}

func TestParseUpdate(t *testing.T) {
	stmt, err := Parse("UPDATE flights SET status = 'departed', gate = 'B2' WHERE day = 'mon' AND flight = 'SU100';")
	require.NoError(t, err)

	upd := stmt.(*UpdateStatement)
	assert.Equal(t, "flights", upd.Table)
	require.Len(t, upd.Assignments, 2)
	assert.Equal(t, Assignment{Column: "status", Value: "departed"}, upd.Assignments[0])

	bindings := equalityBindings(upd.Where)
	assert.Equal(t, map[string]string{"day": "mon", "flight": "SU100"}, bindings)
}

func TestParseDelete(t *testing.T) {
	stmt, err := Parse("DELETE FROM flights WHERE day = 'mon' AND flight = 'SU100';")
	require.NoError(t, err)

	del := stmt.(*DeleteStatement)
	assert.Equal(t, "flights", del.Table)
	assert.NotNil(t, del.Where)
}

func TestParseSelect(t *testing.T) {
	stmt, err := Parse(
		"SELECT flight, status FROM flights WHERE day = 'mon' AND departure >= '2024-06-01 00:00:00' ORDER BY departure DESC;",
	)
	require.NoError(t, err)

	sel := stmt.(*SelectStatement)
	assert.Equal(t, "flights", sel.Table)
	assert.Equal(t, []string{"flight", "status"}, sel.Columns)
	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Descending)

	// Range predicates do not bind columns; only the equality does.
	bindings := equalityBindings(sel.Where)
	assert.Equal(t, map[string]string{"day": "mon"}, bindings)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM flights WHERE day = 'mon'")
	require.NoError(t, err)

	sel := stmt.(*SelectStatement)
	assert.Nil(t, sel.Columns)
}

func TestParseExpressionPrecedence(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE a = '1' AND b = '2' OR NOT c = '3'")
	require.NoError(t, err)

	// OR binds loosest: (a AND b) OR (NOT c).
	or, ok := stmt.(*SelectStatement).Where.(*LogicalExpr)
	require.True(t, ok)
	assert.Equal(t, "OR", or.Operator)

	and, ok := or.Left.(*LogicalExpr)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Operator)

	_, ok = or.Right.(*NotExpr)
	assert.True(t, ok)

	// Columns inside OR do not bind the partition key.
	assert.Empty(t, equalityBindings(stmt.(*SelectStatement).Where))
}

func TestParseErrors(t *testing.T) {
	statements := []string{
		"",
		"DROP TABLE flights;",
		"SELECT FROM flights;",
		"INSERT INTO flights (a, b) VALUES ('1');",
		"CREATE TABLE t (a text);",
		"UPDATE flights SET status 'x' WHERE day = 'mon';",
		"SELECT * FROM flights WHERE day = 'mon' trailing",
		"SELECT * FROM flights WHERE day = 'mon",
		"CREATE KEYSPACE k WITH REPLICATION = {'replication_factor': 'many'};",
	}

	for _, input := range statements {
		_, err := Parse(input)

		var parseErr *ParseError
		assert.ErrorAs(t, err, &parseErr, input)
	}
}
