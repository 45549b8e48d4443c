package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flightlabs/aerodb/internal/generic"
)

// ErrWrongCluster is returned for digests whose fingerprint does not match
// the local cluster secret.
var ErrWrongCluster = errors.New("digest from a different cluster")

// Digest is the unit of a gossip exchange: the sender's full membership table
// plus the cluster fingerprint.
type Digest struct {
	ClusterID uint64
	FromID    NodeID
	Nodes     []Node
}

// Transport performs a single push-pull gossip exchange with a peer: it
// delivers the local digest and returns the peer's digest in response.
type Transport interface {
	PushPull(ctx context.Context, addr string, digest *Digest) (*Digest, error)
}

// Cluster maintains this node's view of the cluster: the membership table,
// the failure detector, and the background gossip loop. The table is mutated
// only here; everything else reads immutable snapshots via State.
type Cluster struct {
	mut      sync.Mutex
	nodes    map[NodeID]Node
	lastSeen map[NodeID]time.Time
	version  uint64
	state    atomic.Pointer[State]

	selfID    NodeID
	clusterID uint64
	peers     []string
	transport Transport
	logger    kitlog.Logger
	conf      Config

	wg   sync.WaitGroup
	stop chan struct{}
}

func NewCluster(conf Config) *Cluster {
	localNode := conf.LocalNode
	localNode.Status = StatusAlive

	nodes := map[NodeID]Node{localNode.ID: localNode}

	cl := &Cluster{
		nodes:     nodes,
		lastSeen:  map[NodeID]time.Time{localNode.ID: time.Now()},
		selfID:    localNode.ID,
		clusterID: conf.ClusterID,
		peers:     conf.Peers,
		transport: conf.Transport,
		logger:    kitlog.With(conf.Logger, "component", "membership"),
		conf:      conf,
		stop:      make(chan struct{}),
	}

	cl.publish()

	return cl
}

// SelfID returns the ID of the local node.
func (cl *Cluster) SelfID() NodeID {
	return cl.selfID
}

// Self returns the local node's current table entry.
func (cl *Cluster) Self() Node {
	node, _ := cl.State().Node(cl.selfID)
	return node
}

// State returns the current membership snapshot.
func (cl *Cluster) State() *State {
	return cl.state.Load()
}

// Start launches the background gossip loop.
func (cl *Cluster) Start() {
	cl.wg.Add(1)

	go func() {
		defer cl.wg.Done()

		ticker := time.NewTicker(cl.conf.GossipInterval)
		defer ticker.Stop()

		for {
			select {
			case <-cl.stop:
				return
			case <-ticker.C:
				cl.tick()
			}
		}
	}()
}

// Stop terminates the gossip loop and waits for in-flight exchanges.
func (cl *Cluster) Stop() {
	close(cl.stop)
	cl.wg.Wait()
}

// Join performs an initial push-pull with the configured peers. It succeeds
// as soon as any one of them responds.
func (cl *Cluster) Join(ctx context.Context) error {
	if len(cl.peers) == 0 {
		return nil
	}

	peers := make([]string, len(cl.peers))
	copy(peers, cl.peers)
	generic.Shuffle(peers)

	var lastErr error

	for _, addr := range peers {
		remote, err := cl.transport.PushPull(ctx, addr, cl.digest())
		if err != nil {
			lastErr = err
			continue
		}

		cl.merge(remote)

		return nil
	}

	return fmt.Errorf("no peer responded: %w", lastErr)
}

// HandlePushPull merges a digest received from a peer and returns the local
// digest in response. It is invoked by the internode protocol handler.
func (cl *Cluster) HandlePushPull(digest *Digest) (*Digest, error) {
	if digest.ClusterID != cl.clusterID {
		return nil, ErrWrongCluster
	}

	cl.merge(digest)

	return cl.digest(), nil
}

func (cl *Cluster) digest() *Digest {
	state := cl.State()

	return &Digest{
		ClusterID: cl.clusterID,
		FromID:    cl.selfID,
		Nodes:     state.Nodes,
	}
}

// tick runs one gossip round: bump the local heartbeat, re-evaluate peer
// statuses, and push-pull with a few random reachable peers.
func (cl *Cluster) tick() {
	cl.mut.Lock()

	self := cl.nodes[cl.selfID]
	self.Heartbeat++
	cl.nodes[cl.selfID] = self
	cl.lastSeen[cl.selfID] = time.Now()

	cl.detectFailures()
	cl.publishLocked()

	targets := make([]Node, 0, len(cl.nodes))

	for id, node := range cl.nodes {
		if id != cl.selfID && node.IsReachable() {
			targets = append(targets, node)
		}
	}

	cl.mut.Unlock()

	generic.Shuffle(targets)

	if len(targets) > cl.conf.Fanout {
		targets = targets[:cl.conf.Fanout]
	}

	for _, target := range targets {
		cl.wg.Add(1)

		go func(target Node) {
			defer cl.wg.Done()
			cl.exchange(target)
		}(target)
	}
}

func (cl *Cluster) exchange(target Node) {
	ctx, cancel := context.WithTimeout(context.Background(), cl.conf.ExchangeTimeout)
	defer cancel()

	remote, err := cl.transport.PushPull(ctx, target.PeerAddr, cl.digest())
	if err != nil {
		level.Debug(cl.logger).Log(
			"msg", "gossip exchange failed",
			"node_id", target.ID,
			"addr", target.PeerAddr,
			"err", err,
		)

		return
	}

	cl.merge(remote)
}

// merge folds a remote membership table into the local one. Per node, the
// entry with the higher heartbeat wins; on equal heartbeats the worse status
// is kept so that failure claims propagate deterministically.
func (cl *Cluster) merge(digest *Digest) {
	cl.mut.Lock()
	defer cl.mut.Unlock()

	now := time.Now()

	for _, node := range digest.Nodes {
		if node.ID == cl.selfID {
			// Someone has fresher information about ourselves than we do
			// (e.g. after a restart). Jump ahead of it so that peers do not
			// resurrect our old incarnation.
			if self := cl.nodes[cl.selfID]; node.Heartbeat > self.Heartbeat {
				self.Heartbeat = node.Heartbeat + 1
				cl.nodes[cl.selfID] = self
			}

			continue
		}

		curr, known := cl.nodes[node.ID]
		if !known {
			cl.nodes[node.ID] = node
			cl.lastSeen[node.ID] = now

			level.Info(cl.logger).Log(
				"msg", "discovered node",
				"node_id", node.ID,
				"name", node.Name,
				"addr", node.PeerAddr,
			)

			continue
		}

		switch {
		case node.Heartbeat > curr.Heartbeat:
			// A fresh heartbeat can only originate from the node itself,
			// so it is alive no matter what status the digest claims.
			node.Status = StatusAlive
			cl.nodes[node.ID] = node
			cl.lastSeen[node.ID] = now
		case node.Heartbeat == curr.Heartbeat && node.Status.WorseThan(curr.Status):
			curr.Status = node.Status
			cl.nodes[node.ID] = curr
		}
	}

	cl.detectFailures()
	cl.publishLocked()
}

// detectFailures degrades nodes that have been silent for too long.
// Must be called with the table lock held.
func (cl *Cluster) detectFailures() {
	now := time.Now()

	for id, node := range cl.nodes {
		if id == cl.selfID {
			continue
		}

		elapsed := now.Sub(cl.lastSeen[id])

		status := StatusAlive

		switch {
		case elapsed > cl.conf.DeadAfter:
			status = StatusDead
		case elapsed > cl.conf.SuspectAfter:
			status = StatusSuspected
		}

		if status.WorseThan(node.Status) {
			level.Warn(cl.logger).Log(
				"msg", "node status changed",
				"node_id", id,
				"from", node.Status,
				"to", status,
				"silent_for", elapsed,
			)

			node.Status = status
			cl.nodes[id] = node
		}
	}
}

func (cl *Cluster) publish() {
	cl.mut.Lock()
	defer cl.mut.Unlock()
	cl.publishLocked()
}

func (cl *Cluster) publishLocked() {
	cl.version++
	cl.state.Store(newState(cl.version, cl.nodes))
}
