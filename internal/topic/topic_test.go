package topic

import (
	"testing"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTopic(t *testing.T, partitions uint32) *Topic {
	t.Helper()
	cfg := Config{
		Partition: partition.Config{
			Segment:                segment.Config{MaxSize: 1 << 20, IndexStride: 1, CacheIndexes: true},
			MessagesRequiredToSave: 1,
			CacheCapacity:          1024,
		},
	}
	top, err := Open(t.TempDir(), 1, 1, "t", cfg, diskio.New(2), cache.NewQuota(1<<20))
	require.NoError(t, err)
	require.NoError(t, top.CreatePartitions(partitions))
	return top
}

func msgWithKey(payload string, key []byte) *message.Message {
	m := &message.Message{Payload: []byte(payload)}
	return m
}

// TestTopicSendAndPollBalanced checks, at the
// topic level, that a single-partition topic's send of two messages is returned in full by poll.
func TestTopicSendAndPollBalanced(t *testing.T) {
	top := newTestTopic(t, 1)

	idx, first, last, err := top.Send([]*message.Message{msgWithKey("a", nil), msgWithKey("b", nil)}, Partitioning{Strategy: StrategyBalanced})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)
	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(1), last)

	out, err := top.Poll(0, partition.PollRequest{Strategy: partition.StrategyOffset, Offset: 0, Count: 10})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestTopicMessagesKeyIsStable(t *testing.T) {
	top := newTestTopic(t, 4)
	key := []byte("order-42")

	idx1, _, _, err := top.Send([]*message.Message{msgWithKey("a", key)}, Partitioning{Strategy: StrategyMessagesKey, Key: key})
	require.NoError(t, err)
	idx2, _, _, err := top.Send([]*message.Message{msgWithKey("b", key)}, Partitioning{Strategy: StrategyMessagesKey, Key: key})
	require.NoError(t, err)

	assert.Equal(t, idx1, idx2)
}

func TestTopicPartitionIDDirect(t *testing.T) {
	top := newTestTopic(t, 4)
	idx, _, _, err := top.Send([]*message.Message{msgWithKey("a", nil)}, Partitioning{Strategy: StrategyPartitionID, PartitionID: 2})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx)
}

func TestTopicDeletePartitionsRemovesFromTail(t *testing.T) {
	top := newTestTopic(t, 4)
	require.NoError(t, top.DeletePartitions(2))
	assert.Equal(t, uint32(2), top.PartitionsCount())
}

func TestTopicPurgeResetsOffsetsAndMessageCount(t *testing.T) {
	top := newTestTopic(t, 1)

	msgs := make([]*message.Message, 99)
	for i := range msgs {
		msgs[i] = msgWithKey("x", nil)
	}
	_, _, _, err := top.Send(msgs, Partitioning{Strategy: StrategyBalanced})
	require.NoError(t, err)
	require.Equal(t, uint64(99), top.GetDetails().Messages)

	require.NoError(t, top.Purge())
	assert.Equal(t, uint64(0), top.GetDetails().Messages)

	idx, first, last, err := top.Send([]*message.Message{msgWithKey("a", nil)}, Partitioning{Strategy: StrategyBalanced})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)
	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(0), last)
}

func TestTopicSendCompressesAndPollDecompresses(t *testing.T) {
	cfg := Config{
		Partition: partition.Config{
			Segment:                segment.Config{MaxSize: 1 << 20, IndexStride: 1, CacheIndexes: true},
			MessagesRequiredToSave: 1,
			CacheCapacity:          1024,
		},
		CompressionDefault: CompressionGzip,
	}
	top, err := Open(t.TempDir(), 1, 1, "t", cfg, diskio.New(2), cache.NewQuota(1<<20))
	require.NoError(t, err)
	require.NoError(t, top.CreatePartitions(1))

	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for compressibility")
	_, _, _, err = top.Send([]*message.Message{msgWithKey(string(payload), nil)}, Partitioning{Strategy: StrategyBalanced})
	require.NoError(t, err)

	out, err := top.Poll(0, partition.PollRequest{Strategy: partition.StrategyOffset, Offset: 0, Count: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, payload, out[0].Payload)
}

func TestTopicCompressionOverrideRejected(t *testing.T) {
	cfg := Config{
		Partition: partition.Config{
			Segment:                segment.Config{MaxSize: 1 << 20, IndexStride: 1, CacheIndexes: true},
			MessagesRequiredToSave: 1,
			CacheCapacity:          1024,
		},
		CompressionDefault:  CompressionNone,
		CompressionOverride: false,
	}
	top, err := Open(t.TempDir(), 1, 1, "t", cfg, diskio.New(2), cache.NewQuota(1<<20))
	require.NoError(t, err)

	assert.NoError(t, top.ValidateCompression(CompressionNone))
	assert.Error(t, top.ValidateCompression(CompressionGzip))
}
