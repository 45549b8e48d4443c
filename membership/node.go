package membership

import "fmt"

// NodeID is a unique cluster node identifier, derived deterministically from
// the cluster secret and the node's ordinal.
type NodeID uint32

func (id NodeID) String() string {
	return fmt.Sprintf("%d", id)
}

// Node is a single row of the membership table: everything a node knows
// about one of its peers.
type Node struct {
	// ID is the unique identifier of the node.
	ID NodeID
	// Name is the human-readable name of the node.
	Name string
	// Ordinal is the node's position in the cluster topology file.
	Ordinal int
	// PeerAddr is the advertised address of the node's internode listener.
	PeerAddr string
	// Heartbeat is a counter incremented by the node itself on every gossip
	// round. A higher counter always denotes fresher information.
	Heartbeat uint64
	// Status is the failure detector's current verdict for the node.
	Status Status
}

// IsReachable returns true if the node should be considered for
// replica placement and gossip exchanges.
func (n *Node) IsReachable() bool {
	return n.Status == StatusAlive
}
