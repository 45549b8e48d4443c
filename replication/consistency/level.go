// Package consistency defines the tunable consistency levels of read and
// write operations.
package consistency

import (
	"fmt"
	"strings"
)

// Level is the minimum number of replica acknowledgements required before an
// operation is reported successful.
type Level int

const (
	// One succeeds after a single replica acknowledges.
	One Level = iota + 1

	// Quorum requires a majority of the replication factor.
	Quorum

	// All requires every replica.
	All
)

// N returns how many of rf replicas must acknowledge to satisfy the level.
func (l Level) N(rf int) int {
	switch l {
	case One:
		return 1
	case Quorum:
		return rf/2 + 1
	case All:
		return rf
	default:
		panic(fmt.Sprintf("unknown consistency level: %d", l))
	}
}

func (l Level) String() string {
	switch l {
	case One:
		return "one"
	case Quorum:
		return "quorum"
	case All:
		return "all"
	default:
		return ""
	}
}

// Parse maps a level name to a Level. An empty name defaults to Quorum.
func Parse(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "one":
		return One, nil
	case "quorum", "":
		return Quorum, nil
	case "all":
		return All, nil
	default:
		return 0, fmt.Errorf("unknown consistency level: %q", name)
	}
}
