package query

import (
	"strconv"

	"github.com/flightlabs/aerodb/storage"
)

// Statement is a parsed statement, before any schema validation.
type Statement interface {
	stmt()
}

type CreateKeyspaceStatement struct {
	Name              string
	ReplicationFactor int
}

type ColumnDef struct {
	Name string
	Type string
}

type CreateTableStatement struct {
	Name          string
	Columns       []ColumnDef
	PartitionKey  []string
	ClusteringKey []string
}

type UseStatement struct {
	Keyspace string
}

type InsertStatement struct {
	Table   string
	Columns []string
	Rows    [][]string
}

type Assignment struct {
	Column string
	Value  string
}

type UpdateStatement struct {
	Table       string
	Assignments []Assignment
	Where       Expression
}

type DeleteStatement struct {
	Table string
	Where Expression
}

type Ordering struct {
	Column     string
	Descending bool
}

type SelectStatement struct {
	Table   string
	Columns []string // nil means SELECT *
	Where   Expression
	OrderBy []Ordering
}

func (*CreateKeyspaceStatement) stmt() {}
func (*CreateTableStatement) stmt()    {}
func (*UseStatement) stmt()            {}
func (*InsertStatement) stmt()         {}
func (*UpdateStatement) stmt()         {}
func (*DeleteStatement) stmt()         {}
func (*SelectStatement) stmt()         {}

// Expression is a WHERE predicate. Eval decides whether a row matches, given
// a lookup from column name to the row's textual value.
type Expression interface {
	Eval(schema *storage.Table, value func(column string) (string, bool)) bool
}

type ComparisonExpr struct {
	Column   string
	Operator string // =, <, >, <=, >=
	Value    string
}

func (e *ComparisonExpr) Eval(schema *storage.Table, value func(string) (string, bool)) bool {
	got, ok := value(e.Column)
	if !ok {
		return false
	}

	var cmp int

	if col, ok := schema.Column(e.Column); ok {
		cmp = col.Type.Compare(got, e.Value)
	} else {
		cmp = compareText(got, e.Value)
	}

	switch e.Operator {
	case "=":
		return cmp == 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}

	return false
}

type LogicalExpr struct {
	Operator string // AND, OR
	Left     Expression
	Right    Expression
}

func (e *LogicalExpr) Eval(schema *storage.Table, value func(string) (string, bool)) bool {
	if e.Operator == "AND" {
		return e.Left.Eval(schema, value) && e.Right.Eval(schema, value)
	}

	return e.Left.Eval(schema, value) || e.Right.Eval(schema, value)
}

type NotExpr struct {
	Inner Expression
}

func (e *NotExpr) Eval(schema *storage.Table, value func(string) (string, bool)) bool {
	return !e.Inner.Eval(schema, value)
}

func compareText(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// equalityBindings collects the columns bound by equality in every conjunct
// of the predicate. Only top-level AND chains contribute: a column compared
// inside OR or NOT is not fixed to a single value and does not bind.
func equalityBindings(expr Expression) map[string]string {
	bindings := make(map[string]string)
	collectBindings(expr, bindings)

	return bindings
}

func collectBindings(expr Expression, bindings map[string]string) {
	switch e := expr.(type) {
	case *ComparisonExpr:
		if e.Operator == "=" {
			bindings[e.Column] = e.Value
		}
	case *LogicalExpr:
		if e.Operator == "AND" {
			collectBindings(e.Left, bindings)
			collectBindings(e.Right, bindings)
		}
	}
}

// referencedColumns collects every column name the predicate mentions.
func referencedColumns(expr Expression, out map[string]struct{}) {
	switch e := expr.(type) {
	case *ComparisonExpr:
		out[e.Column] = struct{}{}
	case *LogicalExpr:
		referencedColumns(e.Left, out)
		referencedColumns(e.Right, out)
	case *NotExpr:
		referencedColumns(e.Inner, out)
	}
}

// parseReplicationFactor extracts the factor from a replication map, e.g.
// {'class': 'SimpleStrategy', 'replication_factor': 3}.
func parseReplicationFactor(options map[string]string) (int, error) {
	raw, ok := options["replication_factor"]
	if !ok {
		return 0, parseErrorf("replication map is missing replication_factor")
	}

	factor, err := strconv.Atoi(raw)
	if err != nil || factor < 1 {
		return 0, parseErrorf("invalid replication_factor: %q", raw)
	}

	if class, ok := options["class"]; ok && class != "SimpleStrategy" {
		return 0, parseErrorf("unsupported replication class: %q", class)
	}

	return factor, nil
}
