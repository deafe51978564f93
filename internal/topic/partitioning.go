package topic

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Strategy is the wire-level partitioning payload a send carries.
type Strategy int

const (
	// StrategyBalanced round-robins across partitions with a monotonic
	// counter, independent of message content.
	StrategyBalanced Strategy = iota
	// StrategyPartitionID routes directly to a caller-chosen partition.
	StrategyPartitionID
	// StrategyMessagesKey hashes an arbitrary key to a partition; the same
	// key always lands on the same partition for a fixed partition count.
	StrategyMessagesKey
)

// Partitioning carries a Strategy plus whichever argument it needs.
type Partitioning struct {
	Strategy    Strategy
	PartitionID uint32 // used by StrategyPartitionID, 0-based
	Key         []byte // used by StrategyMessagesKey
}

// balancer assigns partition indexes for a Topic's incoming sends. It is not
// safe to copy.
type balancer struct {
	roundRobin uint64
}

// choose resolves a Partitioning to a concrete 0-based partition index,
// given the current partition count. Key-based routing is deliberately not
// rebalanced when partitionsCount changes
func (b *balancer) choose(p Partitioning, partitionsCount uint32) uint32 {
	if partitionsCount == 0 {
		return 0
	}
	switch p.Strategy {
	case StrategyPartitionID:
		return p.PartitionID % partitionsCount
	case StrategyMessagesKey:
		h := xxhash.Sum64(p.Key)
		return uint32(h % uint64(partitionsCount))
	default:
		n := atomic.AddUint64(&b.roundRobin, 1) - 1
		return uint32(n % uint64(partitionsCount))
	}
}
