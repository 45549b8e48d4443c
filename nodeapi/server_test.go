package nodeapi

import (
	"context"
	"net"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/storage"
)

type stubGossip struct{}

func (stubGossip) HandlePushPull(digest *membership.Digest) (*membership.Digest, error) {
	return digest, nil
}

type stubReplica struct {
	deadlines chan time.Time
}

func (r *stubReplica) Write(ctx context.Context, req *WriteRequest) error {
	if deadline, ok := ctx.Deadline(); ok {
		r.deadlines <- deadline
	}

	return nil
}

func (r *stubReplica) Read(ctx context.Context, req *ReadRequest) ([]storage.Row, error) {
	return nil, nil
}

func (r *stubReplica) ApplySchema(ctx context.Context, req *SchemaRequest) error {
	return nil
}

func TestServerBoundsRequestHandling(t *testing.T) {
	replica := &stubReplica{deadlines: make(chan time.Time, 1)}
	server := NewServer(stubGossip{}, replica, kitlog.NewNopLogger())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Shutdown)

	conn, err := Dial(context.Background(), listener.Addr().String())
	require.NoError(t, err)

	defer conn.Close()

	start := time.Now()

	require.NoError(t, conn.Write(context.Background(), &WriteRequest{
		Keyspace: "airport",
		Table:    "flights",
		Row:      storage.Row{PartitionKey: "mon", ClusteringKey: "SU100"},
	}))

	select {
	case deadline := <-replica.deadlines:
		assert.WithinDuration(t, start.Add(serverRequestTimeout), deadline, 5*time.Second)
	case <-time.After(time.Second):
		t.Fatal("replica handler was not invoked")
	}
}
