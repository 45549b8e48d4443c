package replication

import (
	"context"
	"errors"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/storage"
)

var (
	// ErrUnavailable means too few replicas are alive to even attempt the
	// requested consistency level.
	ErrUnavailable = errors.New("not enough replicas available")

	// ErrTimeout means the replicas that were contacted did not produce
	// enough acknowledgements within the timeout.
	ErrTimeout = errors.New("consistency level not satisfied in time")
)

// Client is the replica-side surface the coordinator fans out over. It is
// implemented by remote peer connections and by the local Replica, so the
// coordinator never special-cases where a replica lives.
type Client interface {
	Write(ctx context.Context, req *nodeapi.WriteRequest) error
	Read(ctx context.Context, req *nodeapi.ReadRequest) ([]storage.Row, error)
	ApplySchema(ctx context.Context, req *nodeapi.SchemaRequest) error
}

// ConnFunc resolves a replica node to a Client.
type ConnFunc func(ctx context.Context, node membership.Node) (Client, error)

type nodeReply[T any] struct {
	nodeID membership.NodeID
	reply  T
	err    error
}

// MapFn executes one replica sub-request.
type MapFn[T any] func(ctx context.Context, node membership.Node, client Client) (T, error)

// ReduceFn folds one replica reply into the operation result. Calling abort
// stops the operation after the current reply.
type ReduceFn[T any] func(abort func(), nodeID membership.NodeID, reply T, err error) error

// Replicate fans a sub-request out to a replica set in parallel and collects
// replies until MinAcks successful ones arrive. The caller gets control back
// as soon as the threshold is met; remaining in-flight calls complete or
// expire in the background and their late replies are discarded.
type Replicate[T any] struct {
	Nodes      []membership.Node
	MinAcks    int
	Timeout    time.Duration
	Conns      ConnFunc
	Logger     kitlog.Logger
	AckedIDs   map[membership.NodeID]struct{}
	Background bool
}

func (r Replicate[T]) Do(ctx context.Context, mapFn MapFn[T], reduceFn ReduceFn[T]) error {
	if r.Timeout == 0 {
		panic("replicate: timeout is not set")
	}

	if r.AckedIDs == nil {
		r.AckedIDs = make(map[membership.NodeID]struct{})
	}

	// The map context deliberately does not descend from ctx: stragglers may
	// outlive the caller when the threshold is already met.
	mapCtx, cancelMap := context.WithTimeout(context.Background(), r.Timeout)

	replies := make(chan *nodeReply[T], len(r.Nodes))

	wg := sync.WaitGroup{}

	for i := range r.Nodes {
		node := r.Nodes[i]

		if _, ok := r.AckedIDs[node.ID]; ok {
			continue
		}

		if !node.IsReachable() {
			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			reply := &nodeReply[T]{nodeID: node.ID}

			client, err := r.Conns(mapCtx, node)
			if err != nil {
				level.Warn(r.Logger).Log("msg", "failed to reach replica", "node_id", node.ID, "err", err)
				reply.err = err
				replies <- reply

				return
			}

			reply.reply, reply.err = mapFn(mapCtx, node, client)

			if reply.err != nil {
				level.Warn(r.Logger).Log("msg", "replica request failed", "node_id", node.ID, "err", reply.err)
			}

			replies <- reply
		}()
	}

	go func() {
		wg.Wait()
		cancelMap()
		close(replies)
	}()

	if len(r.AckedIDs) >= r.MinAcks {
		return nil
	}

	aborted := false
	abort := func() {
		aborted = true
		cancelMap()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reply, ok := <-replies:
			if !ok {
				// Every replica has replied or timed out and the
				// threshold is still unmet.
				return ErrTimeout
			}

			err := reduceFn(abort, reply.nodeID, reply.reply, reply.err)

			if aborted {
				return err
			}

			if err != nil {
				cancelMap()
				return err
			}

			if reply.err == nil {
				r.AckedIDs[reply.nodeID] = struct{}{}

				if len(r.AckedIDs) >= r.MinAcks {
					if !r.Background {
						cancelMap()
					}

					return nil
				}
			}
		}
	}
}
