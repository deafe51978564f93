package partition

import (
	"testing"
	"time"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPartition(t *testing.T, cfg Config) *Partition {
	t.Helper()
	if cfg.Segment.MaxSize == 0 {
		cfg.Segment = segment.Config{MaxSize: 1 << 20, IndexStride: 1, CacheIndexes: true}
	}
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = 1024
	}
	if cfg.MessagesRequiredToSave == 0 {
		cfg.MessagesRequiredToSave = 1
	}
	p, err := Open(t.TempDir(), 1, 1, 0, cfg, diskio.New(2), cache.NewQuota(1<<20))
	require.NoError(t, err)
	return p
}

func plainMsg(payload string) *message.Message {
	return &message.Message{Payload: []byte(payload)}
}

// TestPartitionAppendAndPoll creates a partition, sends messages, and
// checks poll returns what was sent in order with contiguous offsets.
func TestPartitionAppendAndPoll(t *testing.T) {
	p := newTestPartition(t, Config{})

	first, last, err := p.Append([]*message.Message{plainMsg("a"), plainMsg("b"), plainMsg("c")})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(2), last)

	out, err := p.Poll(PollRequest{Strategy: StrategyOffset, Offset: 0, Count: 10})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a", string(out[0].Payload))
	assert.Equal(t, "c", string(out[2].Payload))
	assert.Equal(t, uint64(0), out[0].Offset)
	assert.Equal(t, uint64(2), out[2].Offset)
}

// TestPartitionRotatesSegmentWhenFull uses a
// tiny max segment size to force rotation, and checks a poll spanning the boundary
// still returns a contiguous run.
func TestPartitionRotatesSegmentWhenFull(t *testing.T) {
	cfg := Config{
		Segment:                segment.Config{MaxSize: 1, IndexStride: 1, CacheIndexes: true},
		MessagesRequiredToSave: 1,
		CacheCapacity:          1024,
	}
	p := newTestPartition(t, cfg)

	for i := 0; i < 5; i++ {
		_, _, err := p.Append([]*message.Message{plainMsg("x")})
		require.NoError(t, err)
	}

	assert.Greater(t, len(p.segments), 1)

	out, err := p.Poll(PollRequest{Strategy: StrategyFirst, Count: 10})
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, m := range out {
		assert.Equal(t, uint64(i), m.Offset)
	}
}

// TestPartitionDedupDropsDuplicate checks a repeated message id within the dedup window is dropped.
func TestPartitionDedupDropsDuplicate(t *testing.T) {
	cfg := Config{DedupEnabled: true, DedupMaxEntries: 1000, DedupExpiry: 60 * time.Second}
	p := newTestPartition(t, cfg)

	clock := time.Unix(2000, 0)
	p.now = func() time.Time { return clock }
	p.dedup.now = func() time.Time { return clock }

	id := idFor(42)
	m1 := plainMsg("v1")
	m1.ID = id
	_, _, err := p.Append([]*message.Message{m1})
	require.NoError(t, err)

	clock = clock.Add(time.Second)
	m2 := plainMsg("v2")
	m2.ID = id
	_, _, err = p.Append([]*message.Message{m2})
	require.NoError(t, err)

	out, err := p.Poll(PollRequest{Strategy: StrategyFirst, Count: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "v1", string(out[0].Payload))

	clock = clock.Add(61 * time.Second)
	m3 := plainMsg("v3")
	m3.ID = id
	_, _, err = p.Append([]*message.Message{m3})
	require.NoError(t, err)

	out, err = p.Poll(PollRequest{Strategy: StrategyFirst, Count: 10})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestPartitionAutoCommitPersistsOffset(t *testing.T) {
	p := newTestPartition(t, Config{})
	_, _, err := p.Append([]*message.Message{plainMsg("a"), plainMsg("b")})
	require.NoError(t, err)

	_, err = p.Poll(PollRequest{Strategy: StrategyFirst, Count: 1, Consumer: "c1", AutoCommit: true})
	require.NoError(t, err)

	got, ok := p.GetOffset("c1")
	require.True(t, ok)
	assert.Equal(t, uint64(0), got)

	out, err := p.Poll(PollRequest{Strategy: StrategyNext, Consumer: "c1", Count: 10, AutoCommit: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(1), out[0].Offset)
}

func TestPartitionPollNoMessagesReturnsError(t *testing.T) {
	p := newTestPartition(t, Config{})
	_, err := p.Poll(PollRequest{Strategy: StrategyFirst, Count: 10})
	require.Error(t, err)
}

// TestPartitionSweepDropsExpiredSegments exercises the retention sweep: a
// fully expired sealed segment is removed, but the active segment never is.
func TestPartitionSweepDropsExpiredSegments(t *testing.T) {
	cfg := Config{
		Segment:                segment.Config{MaxSize: 1, IndexStride: 1, CacheIndexes: true},
		MessagesRequiredToSave: 1,
		CacheCapacity:          1024,
	}
	p := newTestPartition(t, cfg)
	clock := time.Unix(10_000, 0)
	p.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		_, _, err := p.Append([]*message.Message{plainMsg("x")})
		require.NoError(t, err)
	}
	require.Greater(t, len(p.segments), 1)
	segmentsBefore := len(p.segments)

	expiry := 10 * time.Second
	err := p.Sweep(clock.Add(time.Hour), &expiry, nil)
	require.NoError(t, err)
	assert.Less(t, len(p.segments), segmentsBefore)
	assert.GreaterOrEqual(t, len(p.segments), 1)
}

// TestPartitionReopenRecoversState verifies boot-time segment discovery
// reconstructs the correct current offset from files on disk.
func TestPartitionReopenRecoversState(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Segment:                segment.Config{MaxSize: 1 << 20, IndexStride: 1, CacheIndexes: true},
		MessagesRequiredToSave: 1,
		CacheCapacity:          1024,
	}
	pool := diskio.New(2)
	quota := cache.NewQuota(1 << 20)

	p, err := Open(dir, 1, 1, 0, cfg, pool, quota)
	require.NoError(t, err)
	_, _, err = p.Append([]*message.Message{plainMsg("a"), plainMsg("b")})
	require.NoError(t, err)
	require.NoError(t, p.segments[len(p.segments)-1].Close())

	reopened, err := Open(dir, 1, 1, 0, cfg, pool, quota)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reopened.CurrentOffset())
}
