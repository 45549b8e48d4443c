package query

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/flightlabs/aerodb/storage"
)

// Operation classifies a plan by the coordinator action it requires.
type Operation int

const (
	OpCreateKeyspace Operation = iota + 1
	OpCreateTable
	OpUse
	OpWrite
	OpSelect
)

// Plan is a validated, executable form of one statement. For writes it
// carries the fully built rows; for selects the partition to read, the
// residual filter, and the output shape.
type Plan struct {
	Op    Operation
	Table *storage.Table

	// DDL payloads.
	NewKeyspace *storage.Keyspace
	NewTable    *storage.Table
	UseKeyspace string

	// Write payloads. Each row is complete: key columns encoded into the
	// row keys, cell timestamps assigned.
	Rows []storage.Row

	// Select payloads.
	PartitionKey  string
	ClusteringKey *string // set when the whole primary key is bound
	Filter        Expression
	Columns       []string
	OrderBy       []Ordering
}

const statementCacheSize = 512

// Planner validates statements against the locally known schema and turns
// them into plans. Parsed ASTs are cached by statement text, so a client
// re-issuing the same statement shape skips the parser.
type Planner struct {
	engine *storage.Engine
	cache  *lru.Cache[string, Statement]
}

func NewPlanner(engine *storage.Engine) *Planner {
	// Size is fixed; the constructor only fails on a non-positive size.
	cache, _ := lru.New[string, Statement](statementCacheSize)

	return &Planner{engine: engine, cache: cache}
}

// Plan parses and validates one statement. The keyspace argument is the
// session's current keyspace; now is the timestamp assigned to every cell
// the statement writes.
func (p *Planner) Plan(input, keyspace string, now int64) (*Plan, error) {
	stmt, ok := p.cache.Get(input)
	if !ok {
		var err error

		stmt, err = Parse(input)
		if err != nil {
			return nil, err
		}

		// DDL is rare and often one-shot; caching it would only evict the
		// statements worth keeping.
		switch stmt.(type) {
		case *InsertStatement, *UpdateStatement, *DeleteStatement, *SelectStatement:
			p.cache.Add(input, stmt)
		}
	}

	switch s := stmt.(type) {
	case *CreateKeyspaceStatement:
		return p.planCreateKeyspace(s)
	case *CreateTableStatement:
		return p.planCreateTable(s, keyspace)
	case *UseStatement:
		return p.planUse(s)
	case *InsertStatement:
		return p.planInsert(s, keyspace, now)
	case *UpdateStatement:
		return p.planUpdate(s, keyspace, now)
	case *DeleteStatement:
		return p.planDelete(s, keyspace, now)
	case *SelectStatement:
		return p.planSelect(s, keyspace)
	default:
		return nil, parseErrorf("unsupported statement")
	}
}

func (p *Planner) planCreateKeyspace(stmt *CreateKeyspaceStatement) (*Plan, error) {
	if _, ok := p.engine.Keyspace(stmt.Name); ok {
		return nil, schemaErrorf("keyspace %q already exists", stmt.Name)
	}

	return &Plan{
		Op: OpCreateKeyspace,
		NewKeyspace: &storage.Keyspace{
			Name:              stmt.Name,
			ReplicationFactor: stmt.ReplicationFactor,
		},
	}, nil
}

func (p *Planner) planCreateTable(stmt *CreateTableStatement, keyspace string) (*Plan, error) {
	if keyspace == "" {
		return nil, schemaErrorf("no keyspace selected, run USE first")
	}

	if _, ok := p.engine.Keyspace(keyspace); !ok {
		return nil, schemaErrorf("keyspace %q does not exist", keyspace)
	}

	if _, ok := p.engine.Table(keyspace, stmt.Name); ok {
		return nil, schemaErrorf("table %q already exists", stmt.Name)
	}

	table := &storage.Table{
		Keyspace:      keyspace,
		Name:          stmt.Name,
		PartitionKey:  stmt.PartitionKey,
		ClusteringKey: stmt.ClusteringKey,
	}

	seen := make(map[string]struct{}, len(stmt.Columns))

	for _, def := range stmt.Columns {
		if _, ok := seen[def.Name]; ok {
			return nil, schemaErrorf("duplicate column %q", def.Name)
		}
		seen[def.Name] = struct{}{}

		colType, err := storage.ParseColumnType(def.Type)
		if err != nil {
			return nil, schemaErrorf("column %q: %v", def.Name, err)
		}

		table.Columns = append(table.Columns, storage.Column{Name: def.Name, Type: colType})
	}

	for _, name := range append(append([]string{}, stmt.PartitionKey...), stmt.ClusteringKey...) {
		if _, ok := seen[name]; !ok {
			return nil, schemaErrorf("primary key column %q is not declared", name)
		}
	}

	return &Plan{Op: OpCreateTable, NewTable: table}, nil
}

func (p *Planner) planUse(stmt *UseStatement) (*Plan, error) {
	if _, ok := p.engine.Keyspace(stmt.Keyspace); !ok {
		return nil, schemaErrorf("keyspace %q does not exist", stmt.Keyspace)
	}

	return &Plan{Op: OpUse, UseKeyspace: stmt.Keyspace}, nil
}

func (p *Planner) lookupTable(keyspace, name string) (*storage.Table, error) {
	if keyspace == "" {
		return nil, schemaErrorf("no keyspace selected, run USE first")
	}

	table, ok := p.engine.Table(keyspace, name)
	if !ok {
		return nil, schemaErrorf("table %q does not exist in keyspace %q", name, keyspace)
	}

	return &table, nil
}

func (p *Planner) planInsert(stmt *InsertStatement, keyspace string, now int64) (*Plan, error) {
	table, err := p.lookupTable(keyspace, stmt.Table)
	if err != nil {
		return nil, err
	}

	for _, name := range stmt.Columns {
		if _, ok := table.Column(name); !ok {
			return nil, schemaErrorf("unknown column %q in table %q", name, stmt.Table)
		}
	}

	plan := &Plan{Op: OpWrite, Table: table}

	for _, values := range stmt.Rows {
		bound := make(map[string]string, len(values))

		for i, name := range stmt.Columns {
			col, _ := table.Column(name)

			if err := col.Type.Validate(values[i]); err != nil {
				return nil, schemaErrorf("column %q: %v", name, err)
			}

			bound[name] = values[i]
		}

		row, err := buildRow(table, bound, bound, now)
		if err != nil {
			return nil, err
		}

		plan.Rows = append(plan.Rows, row)
	}

	return plan, nil
}

func (p *Planner) planUpdate(stmt *UpdateStatement, keyspace string, now int64) (*Plan, error) {
	table, err := p.lookupTable(keyspace, stmt.Table)
	if err != nil {
		return nil, err
	}

	assigned := make(map[string]string, len(stmt.Assignments))

	for _, assign := range stmt.Assignments {
		col, ok := table.Column(assign.Column)
		if !ok {
			return nil, schemaErrorf("unknown column %q in table %q", assign.Column, stmt.Table)
		}

		if table.IsPrimaryKey(assign.Column) {
			return nil, schemaErrorf("cannot assign to primary key column %q", assign.Column)
		}

		if err := col.Type.Validate(assign.Value); err != nil {
			return nil, schemaErrorf("column %q: %v", assign.Column, err)
		}

		assigned[assign.Column] = assign.Value
	}

	bindings, err := primaryKeyBindings(table, stmt.Where, true)
	if err != nil {
		return nil, err
	}

	row, err := buildRow(table, bindings, assigned, now)
	if err != nil {
		return nil, err
	}

	return &Plan{Op: OpWrite, Table: table, Rows: []storage.Row{row}}, nil
}

func (p *Planner) planDelete(stmt *DeleteStatement, keyspace string, now int64) (*Plan, error) {
	table, err := p.lookupTable(keyspace, stmt.Table)
	if err != nil {
		return nil, err
	}

	bindings, err := primaryKeyBindings(table, stmt.Where, true)
	if err != nil {
		return nil, err
	}

	row, err := buildRow(table, bindings, nil, 0)
	if err != nil {
		return nil, err
	}

	row.DeletedAt = now

	return &Plan{Op: OpWrite, Table: table, Rows: []storage.Row{row}}, nil
}

func (p *Planner) planSelect(stmt *SelectStatement, keyspace string) (*Plan, error) {
	table, err := p.lookupTable(keyspace, stmt.Table)
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]struct{})
	referencedColumns(stmt.Where, referenced)

	for name := range referenced {
		if _, ok := table.Column(name); !ok {
			return nil, schemaErrorf("unknown column %q in table %q", name, stmt.Table)
		}
	}

	for _, name := range stmt.Columns {
		if _, ok := table.Column(name); !ok {
			return nil, schemaErrorf("unknown column %q in table %q", name, stmt.Table)
		}
	}

	for _, ordering := range stmt.OrderBy {
		if !table.IsClusteringKey(ordering.Column) {
			return nil, schemaErrorf(
				"ORDER BY is only supported on clustering key columns, %q is not one",
				ordering.Column,
			)
		}
	}

	bindings, err := primaryKeyBindings(table, stmt.Where, false)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Op:           OpSelect,
		Table:        table,
		PartitionKey: encodeKeyPart(table.PartitionKey, bindings),
		Filter:       stmt.Where,
		Columns:      stmt.Columns,
		OrderBy:      stmt.OrderBy,
	}

	if plan.Columns == nil {
		for _, col := range table.Columns {
			plan.Columns = append(plan.Columns, col.Name)
		}
	}

	// When every clustering column is also pinned by equality, the read
	// narrows to a single row instead of the whole partition.
	if allBound(table.ClusteringKey, bindings) {
		ck := encodeKeyPart(table.ClusteringKey, bindings)
		plan.ClusteringKey = &ck
	}

	return plan, nil
}

// primaryKeyBindings extracts the primary key values fixed by the predicate.
// The partition key must always be fully bound by equality; requireFull
// additionally demands the clustering key, for statements that address one
// exact row.
func primaryKeyBindings(
	table *storage.Table, where Expression, requireFull bool,
) (map[string]string, error) {
	if where == nil {
		return nil, schemaErrorf("a WHERE clause binding the partition key is required")
	}

	bindings := equalityBindings(where)

	for _, name := range table.PartitionKey {
		if _, ok := bindings[name]; !ok {
			return nil, schemaErrorf("partition key column %q must be bound by equality", name)
		}
	}

	if requireFull {
		for _, name := range table.ClusteringKey {
			if _, ok := bindings[name]; !ok {
				return nil, schemaErrorf("clustering key column %q must be bound by equality", name)
			}
		}
	}

	for name, value := range bindings {
		col, ok := table.Column(name)
		if !ok {
			return nil, schemaErrorf("unknown column %q in table %q", name, table.Name)
		}

		if table.IsPrimaryKey(name) {
			if err := col.Type.Validate(value); err != nil {
				return nil, schemaErrorf("column %q: %v", name, err)
			}
		}
	}

	return bindings, nil
}

// buildRow assembles a storage row: key columns from keys, one cell per
// entry of cells (key columns included, so an inserted row is visible even
// when it has no regular columns).
func buildRow(
	table *storage.Table, keys, cells map[string]string, now int64,
) (storage.Row, error) {
	for _, name := range table.PartitionKey {
		if _, ok := keys[name]; !ok {
			return storage.Row{}, schemaErrorf("partition key column %q must be set", name)
		}
	}

	for _, name := range table.ClusteringKey {
		if _, ok := keys[name]; !ok {
			return storage.Row{}, schemaErrorf("clustering key column %q must be set", name)
		}
	}

	row := storage.Row{
		PartitionKey:  encodeKeyPart(table.PartitionKey, keys),
		ClusteringKey: encodeKeyPart(table.ClusteringKey, keys),
	}

	if len(cells) > 0 {
		row.Cells = make(map[string]storage.Cell, len(cells))

		for name, value := range cells {
			row.Cells[name] = storage.Cell{Value: value, Timestamp: now}
		}
	}

	return row, nil
}

func encodeKeyPart(columns []string, bindings map[string]string) string {
	values := make([]string, len(columns))
	for i, name := range columns {
		values[i] = bindings[name]
	}

	return storage.EncodeKey(values)
}

func allBound(columns []string, bindings map[string]string) bool {
	if len(columns) == 0 {
		return false
	}

	for _, name := range columns {
		if _, ok := bindings[name]; !ok {
			return false
		}
	}

	return true
}
