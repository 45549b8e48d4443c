package config

import (
	"encoding/binary"

	"github.com/twmb/murmur3"
)

// DeriveNodeID computes the stable identity of a node from the shared secret
// and the node's ordinal. Every node derives the same ID for the same peer,
// so identities never need to be exchanged explicitly.
func DeriveNodeID(secret Secret, ordinal int) uint32 {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ordinal))

	return murmur3.SeedSum32(uint32(secret.value)^uint32(secret.value>>32), buf)
}

// ClusterFingerprint derives the value carried in every gossip digest to
// reject digests coming from a cluster with a different secret.
func ClusterFingerprint(secret Secret) uint64 {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, secret.value)

	return murmur3.Sum64(buf)
}
