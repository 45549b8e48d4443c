package replication

import (
	"context"
	"net"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/replication/consistency"
	"github.com/flightlabs/aerodb/storage"
)

// testCoordinator wires a coordinator over a single-node cluster, so every
// operation resolves to the local replica.
func testCoordinator(t *testing.T) (*Coordinator, *storage.Engine) {
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

	conf := membership.DefaultConfig()
	conf.LocalNode = membership.Node{ID: 1, Name: "node1", PeerAddr: "127.0.0.1:7000"}
	conf.ClusterID = 42

	cluster := membership.NewCluster(conf)

	coord := NewCoordinator(Config{
		Cluster:      cluster,
		Registry:     nodeapi.NewRegistry(nil),
		Engine:       engine,
		Logger:       kitlog.NewNopLogger(),
		WriteTimeout: time.Second,
		ReadTimeout:  time.Second,
	})

	return coord, engine
}

func createFlightsTable(t *testing.T, coord *Coordinator) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, coord.ApplySchema(ctx, &nodeapi.SchemaRequest{
		Keyspace: &storage.Keyspace{Name: "airport", ReplicationFactor: 1},
	}))

	require.NoError(t, coord.ApplySchema(ctx, &nodeapi.SchemaRequest{
		Table: &storage.Table{
			Keyspace: "airport",
			Name:     "flights",
			Columns: []storage.Column{
				{Name: "day", Type: storage.TypeText},
				{Name: "flight", Type: storage.TypeText},
				{Name: "status", Type: storage.TypeText},
			},
			PartitionKey:  []string{"day"},
			ClusteringKey: []string{"flight"},
		},
	}))
}

func TestCoordinatorWriteRead(t *testing.T) {
	coord, engine := testCoordinator(t)
	createFlightsTable(t, coord)

	ctx := context.Background()

	row := storage.Row{
		PartitionKey:  "mon",
		ClusteringKey: "SU100",
		Cells:         map[string]storage.Cell{"status": {Value: "boarding", Timestamp: 10}},
	}
	require.NoError(t, coord.Write(ctx, consistency.Quorum, "airport", "flights", &row))

	stored, found, err := engine.Get("airport", "flights", "mon", "SU100")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "boarding", stored.Cells["status"].Value)

	rows, err := coord.Read(ctx, consistency.Quorum, "airport", "flights", "mon", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SU100", rows[0].ClusteringKey)
}

func TestCoordinatorDelete(t *testing.T) {
	coord, _ := testCoordinator(t)
	createFlightsTable(t, coord)

	ctx := context.Background()

	row := storage.Row{
		PartitionKey:  "mon",
		ClusteringKey: "SU100",
		Cells:         map[string]storage.Cell{"status": {Value: "boarding", Timestamp: 10}},
	}
	require.NoError(t, coord.Write(ctx, consistency.One, "airport", "flights", &row))
	require.NoError(t, coord.Delete(ctx, consistency.One, "airport", "flights", "mon", "SU100", 20))

	// Tombstones are returned to the caller: filtering them out is the
	// query layer's job, replicas need them to converge.
	rows, err := coord.Read(ctx, consistency.One, "airport", "flights", "mon", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsLive())
}

func TestCoordinatorUnknownKeyspace(t *testing.T) {
	coord, _ := testCoordinator(t)

	err := coord.Write(
		context.Background(), consistency.Quorum,
		"nope", "flights", &storage.Row{PartitionKey: "mon"},
	)
	assert.ErrorIs(t, err, storage.ErrKeyspaceNotFound)
}

func TestCoordinatorSchemaIdempotent(t *testing.T) {
	coord, _ := testCoordinator(t)
	createFlightsTable(t, coord)

	// Re-applying the same DDL succeeds: replicas may receive it twice.
	createFlightsTable(t, coord)
}

func TestCoordinatorReadRepair(t *testing.T) {
	openEngine := func() *storage.Engine {
		engine, err := storage.Open(storage.Config{
			DataDir:       t.TempDir(),
			FlushInterval: time.Minute,
			Logger:        kitlog.NewNopLogger(),
		})
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = engine.Close()
		})

		return engine
	}

	engineA := openEngine()
	engineB := openEngine()

	for _, engine := range []*storage.Engine{engineA, engineB} {
		require.NoError(t, engine.CreateKeyspace(storage.Keyspace{Name: "airport", ReplicationFactor: 2}))
		require.NoError(t, engine.CreateTable(storage.Table{
			Keyspace: "airport",
			Name:     "flights",
			Columns: []storage.Column{
				{Name: "day", Type: storage.TypeText},
				{Name: "flight", Type: storage.TypeText},
				{Name: "status", Type: storage.TypeText},
			},
			PartitionKey:  []string{"day"},
			ClusteringKey: []string{"flight"},
		}))
	}

	// The second replica is a real peer: its replica handler runs behind an
	// internode listener on a loopback port.
	confB := membership.DefaultConfig()
	confB.LocalNode = membership.Node{ID: 2, Name: "node2"}
	confB.ClusterID = 42
	clusterB := membership.NewCluster(confB)

	serverB := nodeapi.NewServer(clusterB, NewReplica(engineB), kitlog.NewNopLogger())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = serverB.Serve(listener)
	}()
	t.Cleanup(serverB.Shutdown)

	confA := membership.DefaultConfig()
	confA.LocalNode = membership.Node{ID: 1, Name: "node1", PeerAddr: "127.0.0.1:7000"}
	confA.ClusterID = 42
	clusterA := membership.NewCluster(confA)

	_, err = clusterA.HandlePushPull(&membership.Digest{
		ClusterID: 42,
		FromID:    2,
		Nodes: []membership.Node{{
			ID:        2,
			Name:      "node2",
			PeerAddr:  listener.Addr().String(),
			Heartbeat: 1,
			Status:    membership.StatusAlive,
		}},
	})
	require.NoError(t, err)

	registry := nodeapi.NewRegistry(nil)
	t.Cleanup(registry.Close)

	coord := NewCoordinator(Config{
		Cluster:      clusterA,
		Registry:     registry,
		Engine:       engineA,
		Logger:       kitlog.NewNopLogger(),
		WriteTimeout: time.Second,
		ReadTimeout:  time.Second,
	})

	// Replica B missed the latest status update.
	require.NoError(t, engineA.Write("airport", "flights", &storage.Row{
		PartitionKey:  "mon",
		ClusteringKey: "SU100",
		Cells:         map[string]storage.Cell{"status": {Value: "delayed", Timestamp: 20}},
	}))
	require.NoError(t, engineB.Write("airport", "flights", &storage.Row{
		PartitionKey:  "mon",
		ClusteringKey: "SU100",
		Cells:         map[string]storage.Cell{"status": {Value: "boarding", Timestamp: 10}},
	}))

	rows, err := coord.Read(context.Background(), consistency.All, "airport", "flights", "mon", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "delayed", rows[0].Cells["status"].Value)

	// The stale replica gets the merged row written back in the background.
	require.Eventually(t, func() bool {
		row, found, err := engineB.Get("airport", "flights", "mon", "SU100")
		return err == nil && found && row.Cells["status"].Value == "delayed"
	}, 3*time.Second, 10*time.Millisecond)
}
