package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// NodeConfig is a single entry of the cluster topology file.
type NodeConfig struct {
	Ordinal    int    `toml:"ordinal"`
	Host       string `toml:"host"`
	ClientPort int    `toml:"client_port"`
	PeerPort   int    `toml:"peer_port"`
}

// PeerAddr returns the address of the node's internode listener.
func (n NodeConfig) PeerAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.PeerPort)
}

// ClientAddr returns the address of the node's client-facing listener.
func (n NodeConfig) ClientAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.ClientPort)
}

// Cluster is the topology shared by every node of a cluster. Each node finds
// its own entry by ordinal and treats the remaining entries as peers.
type Cluster struct {
	Nodes []NodeConfig `toml:"nodes"`
}

// LoadCluster reads and validates a TOML topology file.
func LoadCluster(path string) (*Cluster, error) {
	var cluster Cluster

	if _, err := toml.DecodeFile(path, &cluster); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if len(cluster.Nodes) == 0 {
		return nil, fmt.Errorf("topology file %s lists no nodes", path)
	}

	seen := make(map[int]struct{}, len(cluster.Nodes))

	for _, node := range cluster.Nodes {
		if node.Host == "" || node.ClientPort == 0 || node.PeerPort == 0 {
			return nil, fmt.Errorf("node %d: host, client_port and peer_port are required", node.Ordinal)
		}

		if _, ok := seen[node.Ordinal]; ok {
			return nil, fmt.Errorf("duplicate node ordinal %d", node.Ordinal)
		}

		seen[node.Ordinal] = struct{}{}
	}

	return &cluster, nil
}

// Node returns the topology entry with the given ordinal.
func (c *Cluster) Node(ordinal int) (NodeConfig, bool) {
	for _, node := range c.Nodes {
		if node.Ordinal == ordinal {
			return node, true
		}
	}

	return NodeConfig{}, false
}

// PeerAddrs returns internode addresses of every node except the given ordinal.
func (c *Cluster) PeerAddrs(selfOrdinal int) []string {
	addrs := make([]string, 0, len(c.Nodes))

	for _, node := range c.Nodes {
		if node.Ordinal != selfOrdinal {
			addrs = append(addrs, node.PeerAddr())
		}
	}

	return addrs
}

const (
	// SecretEnvVar is the environment variable holding the cluster-wide
	// shared secret. Nodes with different secrets never form a cluster.
	SecretEnvVar = "AERODB_CLUSTER_SECRET"

	maxSecretDigits = 18
)

// Secret is the cluster-wide shared secret: a bounded-length numeric value
// from which node identities and the cluster fingerprint are derived.
type Secret struct {
	value uint64
}

// SecretFromEnv reads the shared secret from the process environment.
func SecretFromEnv() (Secret, error) {
	raw, ok := os.LookupEnv(SecretEnvVar)
	if !ok {
		return Secret{}, fmt.Errorf("%s is not set", SecretEnvVar)
	}

	return ParseSecret(raw)
}

// ParseSecret validates the textual form of the shared secret.
func ParseSecret(raw string) (Secret, error) {
	if len(raw) == 0 || len(raw) > maxSecretDigits {
		return Secret{}, fmt.Errorf("cluster secret must be 1 to %d digits", maxSecretDigits)
	}

	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return Secret{}, fmt.Errorf("cluster secret must be numeric: %w", err)
	}

	return Secret{value: value}, nil
}

func (s Secret) Value() uint64 {
	return s.value
}
