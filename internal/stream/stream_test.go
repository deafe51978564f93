package stream

import (
	"testing"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/segment"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	s, err := Open(t.TempDir(), 1, "prod", diskio.New(2), cache.NewQuota(1<<20))
	require.NoError(t, err)
	return s
}

func smallTopicConfig() topic.Config {
	return topic.Config{
		Partition: partition.Config{
			Segment:                segment.Config{MaxSize: 1 << 20, IndexStride: 1, CacheIndexes: true},
			MessagesRequiredToSave: 1,
			CacheCapacity:          1024,
		},
	}
}

func TestStreamCreateTopicAssignsID(t *testing.T) {
	s := newTestStream(t)
	top, err := s.CreateTopic(0, "events", smallTopicConfig())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), top.ID)

	got, ok := s.GetTopicByName("events")
	require.True(t, ok)
	assert.Equal(t, top.ID, got.ID)
}

func TestStreamCreateTopicRejectsDuplicateName(t *testing.T) {
	s := newTestStream(t)
	_, err := s.CreateTopic(1, "events", smallTopicConfig())
	require.NoError(t, err)
	_, err = s.CreateTopic(2, "events", smallTopicConfig())
	require.Error(t, err)
}

func TestStreamDeleteTopicRemovesFromBothMaps(t *testing.T) {
	s := newTestStream(t)
	top, err := s.CreateTopic(1, "events", smallTopicConfig())
	require.NoError(t, err)

	require.NoError(t, s.DeleteTopic(top.ID))
	_, ok := s.GetTopic(top.ID)
	assert.False(t, ok)
	_, ok = s.GetTopicByName("events")
	assert.False(t, ok)
}

func TestStreamReopenRecoversTopics(t *testing.T) {
	dir := t.TempDir()
	pool := diskio.New(2)
	quota := cache.NewQuota(1 << 20)

	s, err := Open(dir, 1, "prod", pool, quota)
	require.NoError(t, err)
	_, err = s.CreateTopic(1, "events", smallTopicConfig())
	require.NoError(t, err)

	reopened, err := Open(dir, 1, "prod", pool, quota)
	require.NoError(t, err)
	got, ok := reopened.GetTopicByName("events")
	require.True(t, ok)
	assert.Equal(t, uint32(1), got.ID)
}
