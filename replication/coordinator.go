package replication

import (
	"context"
	"fmt"
	"sort"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/flightlabs/aerodb/internal/generic"
	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/replication/consistency"
	"github.com/flightlabs/aerodb/ring"
	"github.com/flightlabs/aerodb/storage"
)

type Config struct {
	Cluster      *membership.Cluster
	Registry     *nodeapi.Registry
	Engine       *storage.Engine
	Logger       kitlog.Logger
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Coordinator executes queries against the replica set of each partition:
// it resolves replicas through the ring, fans sub-requests out to them, and
// resolves the result according to the requested consistency level.
type Coordinator struct {
	cluster      *membership.Cluster
	registry     *nodeapi.Registry
	engine       *storage.Engine
	local        *Replica
	logger       kitlog.Logger
	writeTimeout time.Duration
	readTimeout  time.Duration
}

func NewCoordinator(conf Config) *Coordinator {
	return &Coordinator{
		cluster:      conf.Cluster,
		registry:     conf.Registry,
		engine:       conf.Engine,
		local:        NewReplica(conf.Engine),
		logger:       kitlog.With(conf.Logger, "component", "coordinator"),
		writeTimeout: conf.WriteTimeout,
		readTimeout:  conf.ReadTimeout,
	}
}

// clientFor resolves a replica to a client: the local replica is executed
// inline, remote ones through the connection registry.
func (c *Coordinator) clientFor(ctx context.Context, node membership.Node) (Client, error) {
	if node.ID == c.cluster.SelfID() {
		return c.local, nil
	}

	return c.registry.Conn(ctx, node)
}

// replicasFor computes the replica set of a partition key from the current
// membership snapshot. The snapshot is taken once per operation, so a gossip
// update halfway through never yields a torn view.
func (c *Coordinator) replicasFor(keyspace, partitionKey string) ([]membership.Node, int, error) {
	ks, ok := c.engine.Keyspace(keyspace)
	if !ok {
		return nil, 0, storage.ErrKeyspaceNotFound
	}

	replicas := ring.New(c.cluster.State()).ReplicasFor(partitionKey, ks.ReplicationFactor)

	return replicas, ks.ReplicationFactor, nil
}

// Write replicates a single-row mutation and returns once the requested
// number of replicas has acknowledged it. Slower replicas continue in the
// background.
func (c *Coordinator) Write(
	ctx context.Context, level consistency.Level, keyspace, table string, row *storage.Row,
) error {
	replicas, rf, err := c.replicasFor(keyspace, row.PartitionKey)
	if err != nil {
		return err
	}

	needAcks := level.N(rf)
	if needAcks > len(replicas) {
		return ErrUnavailable
	}

	req := &nodeapi.WriteRequest{
		Keyspace: keyspace,
		Table:    table,
		Row:      *row,
	}

	return Replicate[struct{}]{
		Nodes:      replicas,
		MinAcks:    needAcks,
		Timeout:    c.writeTimeout,
		Conns:      c.clientFor,
		Logger:     c.logger,
		Background: true,
	}.Do(
		ctx,
		func(ctx context.Context, node membership.Node, client Client) (struct{}, error) {
			return struct{}{}, client.Write(ctx, req)
		},
		func(abort func(), nodeID membership.NodeID, _ struct{}, err error) error {
			return nil
		},
	)
}

// Delete replicates a row tombstone.
func (c *Coordinator) Delete(
	ctx context.Context, level consistency.Level,
	keyspace, table, partitionKey, clusteringKey string, timestamp int64,
) error {
	return c.Write(ctx, level, keyspace, table, &storage.Row{
		PartitionKey:  partitionKey,
		ClusteringKey: clusteringKey,
		DeletedAt:     timestamp,
	})
}

// Read queries the replica set of a partition, merges the responses by
// column timestamps, and repairs any replica that returned stale data.
// Rows are returned in clustering-key order, tombstoned rows included.
func (c *Coordinator) Read(
	ctx context.Context, level consistency.Level,
	keyspace, table, partitionKey string, clusteringKey *string,
) ([]storage.Row, error) {
	replicas, rf, err := c.replicasFor(keyspace, partitionKey)
	if err != nil {
		return nil, err
	}

	needAcks := level.N(rf)
	if needAcks > len(replicas) {
		return nil, ErrUnavailable
	}

	req := &nodeapi.ReadRequest{
		Keyspace:      keyspace,
		Table:         table,
		PartitionKey:  partitionKey,
		ClusteringKey: clusteringKey,
	}

	var replies []readReply

	err = Replicate[[]storage.Row]{
		Nodes:   replicas,
		MinAcks: needAcks,
		Timeout: c.readTimeout,
		Conns:   c.clientFor,
		Logger:  c.logger,
	}.Do(
		ctx,
		func(ctx context.Context, node membership.Node, client Client) ([]storage.Row, error) {
			return client.Read(ctx, req)
		},
		func(abort func(), nodeID membership.NodeID, rows []storage.Row, err error) error {
			if err == nil {
				replies = append(replies, readReply{nodeID: nodeID, rows: rows})
			}

			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	merged, stale := mergeReplies(replies)

	if len(stale) > 0 {
		c.repair(keyspace, table, replicas, stale, merged)
	}

	schema, ok := c.engine.Table(keyspace, table)
	if !ok {
		return nil, storage.ErrTableNotFound
	}

	rows := generic.MapValues(merged)

	sort.SliceStable(rows, func(i, j int) bool {
		return schema.CompareClustering(&rows[i], &rows[j]) < 0
	})

	return rows, nil
}

// repair pushes the merged rows back to the replicas that returned stale
// data. It runs in the background and is best-effort: a failed repair just
// leaves the replica to be repaired by a later read.
func (c *Coordinator) repair(
	keyspace, table string,
	replicas []membership.Node, stale []membership.NodeID,
	merged map[string]storage.Row,
) {
	staleSet := make(map[membership.NodeID]struct{}, len(stale))
	for _, id := range stale {
		staleSet[id] = struct{}{}
	}

	var targets []membership.Node

	for _, node := range replicas {
		if _, ok := staleSet[node.ID]; ok {
			targets = append(targets, node)
		}
	}

	level.Debug(c.logger).Log(
		"msg", "repairing stale replicas",
		"table", keyspace+"."+table,
		"replicas", fmt.Sprintf("%v", stale),
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		defer cancel()

		for _, node := range targets {
			client, err := c.clientFor(ctx, node)
			if err != nil {
				level.Debug(c.logger).Log("msg", "repair skipped", "node_id", node.ID, "err", err)
				continue
			}

			for key := range merged {
				row := merged[key]

				err := client.Write(ctx, &nodeapi.WriteRequest{
					Keyspace: keyspace,
					Table:    table,
					Row:      row,
				})
				if err != nil {
					level.Debug(c.logger).Log("msg", "repair write failed", "node_id", node.ID, "err", err)
					break
				}
			}
		}
	}()
}

// ApplySchema applies a DDL statement on every alive node, the local one
// included. Schema changes require all reachable nodes to accept them, so
// that any node may later coordinate queries against the new table.
func (c *Coordinator) ApplySchema(ctx context.Context, req *nodeapi.SchemaRequest) error {
	if err := c.local.ApplySchema(ctx, req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	for _, node := range c.cluster.State().Alive() {
		if node.ID == c.cluster.SelfID() {
			continue
		}

		node := node

		g.Go(func() error {
			client, err := c.clientFor(ctx, node)
			if err != nil {
				return fmt.Errorf("node %s: %w", node.ID, err)
			}

			if err := client.ApplySchema(ctx, req); err != nil {
				return fmt.Errorf("node %s: %w", node.ID, err)
			}

			return nil
		})
	}

	return g.Wait()
}
