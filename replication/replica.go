package replication

import (
	"context"
	"errors"

	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/storage"
)

// Replica executes replica-level sub-requests against the local storage
// engine. It serves double duty: the internode server dispatches remote
// sub-requests to it, and the coordinator uses it for inline local
// execution, so local and remote replicas behave identically.
type Replica struct {
	engine *storage.Engine
}

func NewReplica(engine *storage.Engine) *Replica {
	return &Replica{engine: engine}
}

func (r *Replica) Write(ctx context.Context, req *nodeapi.WriteRequest) error {
	return r.engine.Write(req.Keyspace, req.Table, &req.Row)
}

func (r *Replica) Read(ctx context.Context, req *nodeapi.ReadRequest) ([]storage.Row, error) {
	if req.ClusteringKey != nil {
		row, found, err := r.engine.Get(req.Keyspace, req.Table, req.PartitionKey, *req.ClusteringKey)
		if err != nil {
			return nil, err
		}

		if !found {
			return nil, nil
		}

		return []storage.Row{row}, nil
	}

	return r.engine.Scan(req.Keyspace, req.Table, req.PartitionKey)
}

// ApplySchema applies a DDL statement locally. Creation is idempotent so
// that the statement can be re-applied to replicas that already have it.
func (r *Replica) ApplySchema(ctx context.Context, req *nodeapi.SchemaRequest) error {
	if req.Keyspace != nil {
		if err := r.engine.CreateKeyspace(*req.Keyspace); err != nil {
			if errors.Is(err, storage.ErrKeyspaceExists) {
				return nil
			}

			return err
		}
	}

	if req.Table != nil {
		if err := r.engine.CreateTable(*req.Table); err != nil {
			if errors.Is(err, storage.ErrTableExists) {
				return nil
			}

			return err
		}
	}

	return nil
}
