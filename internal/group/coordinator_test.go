package group

import (
	"testing"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/segment"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTopic(t *testing.T, partitions uint32) *topic.Topic {
	t.Helper()
	cfg := topic.Config{
		Partition: partition.Config{
			Segment:                segment.Config{MaxSize: 1 << 20, IndexStride: 1, CacheIndexes: true},
			MessagesRequiredToSave: 1,
			CacheCapacity:          1024,
		},
	}
	top, err := topic.Open(t.TempDir(), 1, 1, "t", cfg, diskio.New(2), cache.NewQuota(1<<20))
	require.NoError(t, err)
	require.NoError(t, top.CreatePartitions(partitions))
	return top
}

// TestGroupRebalanceOnJoinAndLeave covers a 4-partition topic where
// members A then B join, then B leaves.
func TestGroupRebalanceOnJoinAndLeave(t *testing.T) {
	top := newTestTopic(t, 4)
	g := NewGroup(1, "g1", top)

	const memberA, memberB = 1, 2

	g.Join(memberA)
	assert.Equal(t, []uint32{0, 1, 2, 3}, g.AssignmentFor(memberA))

	g.Join(memberB)
	assert.Equal(t, []uint32{0, 2}, g.AssignmentFor(memberA))
	assert.Equal(t, []uint32{1, 3}, g.AssignmentFor(memberB))

	g.Leave(memberB)
	assert.Equal(t, []uint32{0, 1, 2, 3}, g.AssignmentFor(memberA))
	assert.Empty(t, g.AssignmentFor(memberB))
}

func TestGroupPollServesAssignedPartitionsAndCommits(t *testing.T) {
	top := newTestTopic(t, 2)
	_, _, _, err := top.Send([]*message.Message{{Payload: []byte("a")}}, topic.Partitioning{Strategy: topic.StrategyPartitionID, PartitionID: 0})
	require.NoError(t, err)
	_, _, _, err = top.Send([]*message.Message{{Payload: []byte("b")}}, topic.Partitioning{Strategy: topic.StrategyPartitionID, PartitionID: 1})
	require.NoError(t, err)

	g := NewGroup(1, "g1", top)
	g.Join(1)

	out, err := g.Poll(1, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", string(out[0][0].Payload))
	assert.Equal(t, "b", string(out[1][0].Payload))

	offset, ok, err := g.GetOffset(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), offset)
}

func TestManagerCreateAndDeleteGroup(t *testing.T) {
	top := newTestTopic(t, 1)
	m := NewManager()

	g, err := m.CreateGroup(top, 0, "g1")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), g.ID)

	_, ok := m.Get(top.ID, g.ID)
	assert.True(t, ok)

	require.NoError(t, m.DeleteGroup(top.ID, g.ID))
	_, ok = m.Get(top.ID, g.ID)
	assert.False(t, ok)
}
