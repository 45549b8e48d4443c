package query

import (
	"context"
	"sort"
	"time"

	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/replication/consistency"
	"github.com/flightlabs/aerodb/storage"
)

// Coordinator is the replication-side surface the executor drives. It is
// satisfied by the replication coordinator.
type Coordinator interface {
	Write(ctx context.Context, level consistency.Level, keyspace, table string, row *storage.Row) error
	Read(ctx context.Context, level consistency.Level, keyspace, table, partitionKey string, clusteringKey *string) ([]storage.Row, error)
	ApplySchema(ctx context.Context, req *nodeapi.SchemaRequest) error
}

// Result is the tabular outcome of one statement. Mutations and DDL return
// an empty result.
type Result struct {
	Columns []storage.Column
	Rows    [][]string
}

// Executor runs statements end to end: plan, dispatch through the
// coordinator, and shape the response rows.
type Executor struct {
	planner *Planner
	coord   Coordinator
}

func NewExecutor(engine *storage.Engine, coord Coordinator) *Executor {
	return &Executor{
		planner: NewPlanner(engine),
		coord:   coord,
	}
}

// Execute runs one statement under the session's current keyspace and
// consistency level. It returns the result and the keyspace the session
// should use from now on, which changes only for USE.
func (e *Executor) Execute(
	ctx context.Context, input, keyspace string, level consistency.Level,
) (*Result, string, error) {
	now := time.Now().UnixMicro()

	plan, err := e.planner.Plan(input, keyspace, now)
	if err != nil {
		return nil, keyspace, err
	}

	switch plan.Op {
	case OpUse:
		return &Result{}, plan.UseKeyspace, nil

	case OpCreateKeyspace:
		req := &nodeapi.SchemaRequest{Keyspace: plan.NewKeyspace}
		if err := e.coord.ApplySchema(ctx, req); err != nil {
			return nil, keyspace, err
		}

		return &Result{}, keyspace, nil

	case OpCreateTable:
		req := &nodeapi.SchemaRequest{Table: plan.NewTable}
		if err := e.coord.ApplySchema(ctx, req); err != nil {
			return nil, keyspace, err
		}

		return &Result{}, keyspace, nil

	case OpWrite:
		for i := range plan.Rows {
			err := e.coord.Write(ctx, level, plan.Table.Keyspace, plan.Table.Name, &plan.Rows[i])
			if err != nil {
				return nil, keyspace, err
			}
		}

		return &Result{}, keyspace, nil

	case OpSelect:
		result, err := e.executeSelect(ctx, level, plan)
		if err != nil {
			return nil, keyspace, err
		}

		return result, keyspace, nil

	default:
		return nil, keyspace, parseErrorf("unsupported statement")
	}
}

func (e *Executor) executeSelect(
	ctx context.Context, level consistency.Level, plan *Plan,
) (*Result, error) {
	rows, err := e.coord.Read(
		ctx, level,
		plan.Table.Keyspace, plan.Table.Name,
		plan.PartitionKey, plan.ClusteringKey,
	)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	for _, name := range plan.Columns {
		col, _ := plan.Table.Column(name)
		result.Columns = append(result.Columns, col)
	}

	var matched []map[string]string

	for i := range rows {
		row := &rows[i]
		if !row.IsLive() {
			continue
		}

		values := rowValues(plan.Table, row)

		lookup := func(column string) (string, bool) {
			v, ok := values[column]
			return v, ok
		}

		if plan.Filter != nil && !plan.Filter.Eval(plan.Table, lookup) {
			continue
		}

		matched = append(matched, values)
	}

	orderRows(plan.Table, matched, plan.OrderBy)

	for _, values := range matched {
		out := make([]string, len(plan.Columns))
		for i, name := range plan.Columns {
			out[i] = values[name]
		}

		result.Rows = append(result.Rows, out)
	}

	return result, nil
}

// rowValues flattens a stored row into column name to textual value. Key
// columns come from the encoded row keys, the rest from the live cells.
func rowValues(table *storage.Table, row *storage.Row) map[string]string {
	values := make(map[string]string, len(table.Columns))

	for name, cell := range row.LiveCells() {
		values[name] = cell.Value
	}

	pk := storage.DecodeKey(row.PartitionKey)
	for i, name := range table.PartitionKey {
		if i < len(pk) {
			values[name] = pk[i]
		}
	}

	ck := storage.DecodeKey(row.ClusteringKey)
	for i, name := range table.ClusteringKey {
		if i < len(ck) {
			values[name] = ck[i]
		}
	}

	return values
}

// orderRows sorts the matched rows by the requested orderings. Without an
// ORDER BY clause the rows keep the coordinator's clustering-key order.
func orderRows(table *storage.Table, rows []map[string]string, orderBy []Ordering) {
	if len(orderBy) == 0 {
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, ordering := range orderBy {
			col, _ := table.Column(ordering.Column)

			cmp := col.Type.Compare(rows[i][ordering.Column], rows[j][ordering.Column])
			if cmp == 0 {
				continue
			}

			if ordering.Descending {
				return cmp > 0
			}

			return cmp < 0
		}

		return false
	})
}
