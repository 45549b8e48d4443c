package membership

import (
	"time"

	kitlog "github.com/go-kit/log"
)

type Config struct {
	// LocalNode describes the node itself. Its status is forced to alive.
	LocalNode Node
	// ClusterID is the fingerprint derived from the shared cluster secret.
	// Digests carrying a different fingerprint are rejected.
	ClusterID uint64
	// Peers are internode addresses from the topology file, used for the
	// initial join.
	Peers []string

	Transport Transport
	Logger    kitlog.Logger

	// GossipInterval is the period of the anti-entropy gossip loop.
	GossipInterval time.Duration
	// ExchangeTimeout bounds a single push-pull exchange with a peer.
	ExchangeTimeout time.Duration
	// SuspectAfter is how long a node may stay silent before it is suspected.
	SuspectAfter time.Duration
	// DeadAfter is how long a node may stay silent before it is declared dead.
	DeadAfter time.Duration
	// Fanout is the number of random peers contacted per gossip round.
	Fanout int
}

func DefaultConfig() Config {
	return Config{
		Logger:          kitlog.NewNopLogger(),
		GossipInterval:  1 * time.Second,
		ExchangeTimeout: 2 * time.Second,
		SuspectAfter:    5 * time.Second,
		DeadAfter:       30 * time.Second,
		Fanout:          3,
	}
}
