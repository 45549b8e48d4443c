// Package ring maps partition keys to replica sets via consistent hashing.
// A Ring is built deterministically from a membership snapshot: two nodes
// holding identical snapshots always compute identical replica sets.
package ring

import (
	"encoding/binary"
	"sort"

	"github.com/twmb/murmur3"

	"github.com/flightlabs/aerodb/membership"
)

// Token is a position in the 64-bit hash space.
type Token uint64

// TokenFor hashes a partition key to its ring position.
func TokenFor(partitionKey string) Token {
	return Token(murmur3.Sum64([]byte(partitionKey)))
}

func nodeToken(id membership.NodeID) Token {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(id))

	return Token(murmur3.Sum64(buf))
}

type entry struct {
	token Token
	node  membership.Node
}

// Ring is an immutable arrangement of the alive nodes of one membership
// snapshot on the token circle.
type Ring struct {
	entries []entry
}

// New places every alive node of the snapshot on the ring, ordered by token.
func New(state *membership.State) *Ring {
	alive := state.Alive()
	entries := make([]entry, 0, len(alive))

	for _, node := range alive {
		entries = append(entries, entry{
			token: nodeToken(node.ID),
			node:  node,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].token == entries[j].token {
			return entries[i].node.ID < entries[j].node.ID
		}

		return entries[i].token < entries[j].token
	})

	return &Ring{entries: entries}
}

// Size returns the number of nodes on the ring.
func (r *Ring) Size() int {
	return len(r.entries)
}

// ReplicasFor returns the nodes owning the given partition key, in ring
// order starting from the primary. If fewer than rf alive nodes exist, all
// of them are returned rather than failing: replication degrades, reads and
// writes do not.
func (r *Ring) ReplicasFor(partitionKey string, rf int) []membership.Node {
	if len(r.entries) == 0 {
		return nil
	}

	if rf > len(r.entries) {
		rf = len(r.entries)
	}

	token := TokenFor(partitionKey)

	// First entry clockwise from the key's token, wrapping at the top.
	start := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].token >= token
	})
	if start == len(r.entries) {
		start = 0
	}

	replicas := make([]membership.Node, 0, rf)
	seen := make(map[membership.NodeID]struct{}, rf)

	for i := 0; len(replicas) < rf && i < len(r.entries); i++ {
		e := r.entries[(start+i)%len(r.entries)]

		if _, ok := seen[e.node.ID]; ok {
			continue
		}

		seen[e.node.ID] = struct{}{}
		replicas = append(replicas, e.node)
	}

	return replicas
}

// PrimaryFor returns the first replica for the partition key.
func (r *Ring) PrimaryFor(partitionKey string) (membership.Node, bool) {
	replicas := r.ReplicasFor(partitionKey, 1)
	if len(replicas) == 0 {
		return membership.Node{}, false
	}

	return replicas[0], true
}
