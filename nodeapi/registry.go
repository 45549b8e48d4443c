package nodeapi

import (
	"context"
	"sync"

	"github.com/flightlabs/aerodb/membership"
)

// Registry caches one connection per peer, dialed lazily. A connection that
// fails is forgotten and re-dialed on the next use.
type Registry struct {
	mut    sync.Mutex
	conns  map[membership.NodeID]*Conn
	dialer Dialer
}

func NewRegistry(dialer Dialer) *Registry {
	if dialer == nil {
		dialer = Dial
	}

	return &Registry{
		conns:  make(map[membership.NodeID]*Conn),
		dialer: dialer,
	}
}

// Conn returns a connection to the given node, dialing if necessary.
func (r *Registry) Conn(ctx context.Context, node membership.Node) (*Conn, error) {
	r.mut.Lock()
	if conn, ok := r.conns[node.ID]; ok {
		if !conn.Broken() {
			r.mut.Unlock()
			return conn, nil
		}

		_ = conn.Close()
		delete(r.conns, node.ID)
	}
	r.mut.Unlock()

	// Dial outside the lock so one unreachable peer does not stall lookups
	// of the others.
	conn, err := r.dialer(ctx, node.PeerAddr)
	if err != nil {
		return nil, err
	}

	r.mut.Lock()
	defer r.mut.Unlock()

	if existing, ok := r.conns[node.ID]; ok && !existing.Broken() {
		_ = conn.Close()
		return existing, nil
	}

	r.conns[node.ID] = conn

	return conn, nil
}

// Forget drops the cached connection to a node, closing it.
func (r *Registry) Forget(id membership.NodeID) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if conn, ok := r.conns[id]; ok {
		_ = conn.Close()
		delete(r.conns, id)
	}
}

// Close drops every cached connection.
func (r *Registry) Close() {
	r.mut.Lock()
	defer r.mut.Unlock()

	for id, conn := range r.conns {
		_ = conn.Close()
		delete(r.conns, id)
	}
}

// GossipTransport adapts the registry-less dialer to the membership
// package's transport interface. Gossip exchanges are addressed by peer
// address rather than node ID, since the peer may not be in the table yet.
type GossipTransport struct {
	dialer Dialer
}

func NewGossipTransport(dialer Dialer) *GossipTransport {
	if dialer == nil {
		dialer = Dial
	}

	return &GossipTransport{dialer: dialer}
}

func (t *GossipTransport) PushPull(
	ctx context.Context, addr string, digest *membership.Digest,
) (*membership.Digest, error) {
	conn, err := t.dialer(ctx, addr)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = conn.Close()
	}()

	return conn.PushPull(ctx, digest)
}
