// Package group implements consumer-group membership,
// ascending round-robin partition assignment, and the poll/store_offset/
// get_offset surface a group exposes to its members.
package group

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Group tracks one consumer group's membership and partition assignment
// for a single topic.
type Group struct {
	ID    uint32
	Name  string
	Topic *topic.Topic

	mu         sync.Mutex
	members    map[uint32]time.Time // member_id -> last heartbeat
	assignment map[uint32][]uint32  // member_id -> assigned partition indexes, ascending
	now        func() time.Time
}

// NewGroup creates an empty group bound to a topic.
func NewGroup(id uint32, name string, t *topic.Topic) *Group {
	return &Group{
		ID: id, Name: name, Topic: t,
		members:    make(map[uint32]time.Time),
		assignment: make(map[uint32][]uint32),
		now:        time.Now,
	}
}

// Join adds memberID and triggers a reassignment
func (g *Group) Join(memberID uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[memberID] = g.now()
	g.reassignLocked()
}

// Leave removes memberID and its assignment, then reassigns the remaining
// partitions.
func (g *Group) Leave(memberID uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, memberID)
	delete(g.assignment, memberID)
	g.reassignLocked()
}

// Heartbeat refreshes memberID's last-seen time.
func (g *Group) Heartbeat(memberID uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[memberID]; !ok {
		return wire.New(wire.KindConsumerGroupMemberNotFound, "member %d not found in group %d", memberID, g.ID)
	}
	g.members[memberID] = g.now()
	return nil
}

// reassignLocked recomputes every member's partition set: ascending
// round-robin of partition ids across members in ascending member_id,
// deterministic Called with g.mu held.
func (g *Group) reassignLocked() {
	members := make([]uint32, 0, len(g.members))
	for m := range g.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	next := make(map[uint32][]uint32, len(members))
	for _, m := range members {
		next[m] = nil
	}

	if len(members) > 0 {
		count := g.Topic.PartitionsCount()
		for p := uint32(0); p < count; p++ {
			m := members[p%uint32(len(members))]
			next[m] = append(next[m], p)
		}
	}
	g.assignment = next
}

// AssignmentFor returns the ascending partition indexes currently assigned
// to memberID.
func (g *Group) AssignmentFor(memberID uint32) []uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uint32, len(g.assignment[memberID]))
	copy(out, g.assignment[memberID])
	return out
}

// consumerKey is the offset-tracking key for a group member polling a
// specific partition: offsets are tracked per group, not per member, so
// reassignment does not lose progress.
func (g *Group) consumerKey() string {
	return fmt.Sprintf("group-%d", g.ID)
}

// Poll serves messages from every partition currently assigned to
// memberID, using the group's committed offset for each, and auto-commits
// on return
func (g *Group) Poll(memberID uint32, countPerPartition int) (map[uint32][]*message.Message, error) {
	assigned := g.AssignmentFor(memberID)
	if len(assigned) == 0 {
		return nil, nil
	}

	out := make(map[uint32][]*message.Message, len(assigned))
	for _, p := range assigned {
		msgs, err := g.Topic.Poll(p, partition.PollRequest{
			Strategy:   partition.StrategyNext,
			Count:      countPerPartition,
			Consumer:   g.consumerKey(),
			AutoCommit: true,
		})
		if err != nil {
			if wire.KindOf(err) == wire.KindNoMessages {
				continue
			}
			return nil, err
		}
		out[p] = msgs
	}
	return out, nil
}

// StoreOffset explicitly commits an offset for a partition in this group,
//
func (g *Group) StoreOffset(partitionIdx uint32, offset uint64) error {
	return g.Topic.StoreOffsetFor(partitionIdx, g.consumerKey(), offset)
}

// GetOffset returns the committed offset for a partition in this group.
func (g *Group) GetOffset(partitionIdx uint32) (uint64, bool, error) {
	return g.Topic.GetOffsetFor(partitionIdx, g.consumerKey())
}
