package replication

import (
	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/storage"
)

type readReply struct {
	nodeID membership.NodeID
	rows   []storage.Row
}

// mergeReplies folds the rows returned by each replica into the most recent
// version of every row, and reports which replicas returned stale data and
// therefore need repair. Tombstoned rows participate like any other row so
// that deletions converge too.
func mergeReplies(replies []readReply) (map[string]storage.Row, []membership.NodeID) {
	merged := make(map[string]storage.Row)

	for _, reply := range replies {
		for i := range reply.rows {
			row := reply.rows[i]

			curr, ok := merged[row.Key()]
			if !ok {
				merged[row.Key()] = row.Clone()
				continue
			}

			curr.Merge(&row)
			merged[row.Key()] = curr
		}
	}

	var stale []membership.NodeID

	for _, reply := range replies {
		byKey := make(map[string]*storage.Row, len(reply.rows))
		for i := range reply.rows {
			byKey[reply.rows[i].Key()] = &reply.rows[i]
		}

		for key := range merged {
			mergedRow := merged[key]

			own, ok := byKey[key]
			if !ok || !own.Equal(&mergedRow) {
				stale = append(stale, reply.nodeID)
				break
			}
		}
	}

	return merged, stale
}
