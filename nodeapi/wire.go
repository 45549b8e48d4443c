// Package nodeapi implements the internode protocol: framed messages over
// TCP carrying gossip digests and replica-level read/write sub-requests.
// The frame layout is fixed: a kind byte, a big-endian uint32 payload
// length, and a msgpack-encoded payload.
package nodeapi

import (
	"fmt"

	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/storage"
)

const (
	// Request kinds.
	KindGossip uint8 = iota + 1
	KindWrite
	KindRead
	KindSchema

	// Response kinds.
	KindAck
	KindRows
	KindError
)

// NodeInfo is the wire form of a membership table entry.
type NodeInfo struct {
	ID        uint32 `msgpack:"id"`
	Name      string `msgpack:"nm"`
	Ordinal   int    `msgpack:"or"`
	PeerAddr  string `msgpack:"pa"`
	Heartbeat uint64 `msgpack:"hb"`
	Status    int8   `msgpack:"st"`
}

// GossipRequest carries one side of a push-pull gossip exchange.
// The same shape serves as the response.
type GossipRequest struct {
	ClusterID uint64     `msgpack:"cid"`
	FromID    uint32     `msgpack:"fid"`
	Nodes     []NodeInfo `msgpack:"nds"`
}

// WriteRequest applies a single-row mutation (including tombstones) on a
// replica.
type WriteRequest struct {
	Keyspace string      `msgpack:"ks"`
	Table    string      `msgpack:"tb"`
	Row      storage.Row `msgpack:"rw"`
}

// ReadRequest asks a replica for a row or a whole partition.
type ReadRequest struct {
	Keyspace      string  `msgpack:"ks"`
	Table         string  `msgpack:"tb"`
	PartitionKey  string  `msgpack:"pk"`
	ClusteringKey *string `msgpack:"ck"`
}

// RowsResponse returns the rows a replica holds for a ReadRequest.
type RowsResponse struct {
	Rows []storage.Row `msgpack:"rws"`
}

// SchemaRequest applies a DDL statement on a replica. Exactly one of the
// fields is set.
type SchemaRequest struct {
	Keyspace *storage.Keyspace `msgpack:"ks"`
	Table    *storage.Table    `msgpack:"tb"`
}

// ErrorResponse is the wire form of a replica-side failure.
type ErrorResponse struct {
	Code    string `msgpack:"cd"`
	Message string `msgpack:"ms"`
}

// RemoteError is an error reported by the peer rather than the transport.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s): %s", e.Code, e.Message)
}

func toWireDigest(digest *membership.Digest) *GossipRequest {
	nodes := make([]NodeInfo, len(digest.Nodes))

	for i, node := range digest.Nodes {
		nodes[i] = NodeInfo{
			ID:        uint32(node.ID),
			Name:      node.Name,
			Ordinal:   node.Ordinal,
			PeerAddr:  node.PeerAddr,
			Heartbeat: node.Heartbeat,
			Status:    int8(node.Status),
		}
	}

	return &GossipRequest{
		ClusterID: digest.ClusterID,
		FromID:    uint32(digest.FromID),
		Nodes:     nodes,
	}
}

func fromWireDigest(req *GossipRequest) *membership.Digest {
	nodes := make([]membership.Node, len(req.Nodes))

	for i, info := range req.Nodes {
		nodes[i] = membership.Node{
			ID:        membership.NodeID(info.ID),
			Name:      info.Name,
			Ordinal:   info.Ordinal,
			PeerAddr:  info.PeerAddr,
			Heartbeat: info.Heartbeat,
			Status:    membership.Status(info.Status),
		}
	}

	return &membership.Digest{
		ClusterID: req.ClusterID,
		FromID:    membership.NodeID(req.FromID),
		Nodes:     nodes,
	}
}
