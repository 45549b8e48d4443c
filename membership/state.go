package membership

import (
	"sort"

	"github.com/flightlabs/aerodb/internal/generic"
)

// State is an immutable snapshot of the membership table. The cluster swaps
// in a fresh snapshot atomically after every change, so components on the
// read/write path hold a consistent view for the duration of an operation
// without taking any locks.
type State struct {
	// Nodes holds every known node, dead ones included, sorted by ID.
	Nodes []Node
	// Version increases monotonically with every published snapshot.
	Version uint64
}

func newState(version uint64, nodes map[NodeID]Node) *State {
	list := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		list = append(list, node)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	return &State{
		Nodes:   list,
		Version: version,
	}
}

// Node returns the node with the given ID, if present.
func (s *State) Node(id NodeID) (Node, bool) {
	i := sort.Search(len(s.Nodes), func(i int) bool {
		return s.Nodes[i].ID >= id
	})

	if i < len(s.Nodes) && s.Nodes[i].ID == id {
		return s.Nodes[i], true
	}

	return Node{}, false
}

// Alive returns the nodes currently considered reachable, in ID order.
func (s *State) Alive() []Node {
	return generic.Filter(s.Nodes, func(n Node) bool {
		return n.IsReachable()
	})
}
