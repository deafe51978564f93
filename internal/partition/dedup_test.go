package partition

import (
	"testing"
	"time"

	"github.com/FairForge/streamkeg/internal/message"
	"github.com/stretchr/testify/assert"
)

func idFor(b byte) message.ID {
	var id message.ID
	id[0] = b
	return id
}

// TestDedupDropsRepeatWithinWindow checks that with
// max_entries=1000, expiry=60s, a repeat id sent 1s later is dropped.
func TestDedupDropsRepeatWithinWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	w := newDedupWindow(1000, 60*time.Second, func() time.Time { return now })

	id := idFor(42)
	assert.False(t, w.seenRecently(id))
	w.insert(id)

	now = now.Add(1 * time.Second)
	assert.True(t, w.seenRecently(id))
}

// TestDedupAcceptsAfterExpiry confirms the repeat is accepted once the
// window has passed.
func TestDedupAcceptsAfterExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	w := newDedupWindow(1000, 60*time.Second, func() time.Time { return now })

	id := idFor(42)
	w.insert(id)

	now = now.Add(61 * time.Second)
	assert.False(t, w.seenRecently(id))
}

func TestDedupEvictsOverCapacity(t *testing.T) {
	now := time.Unix(1000, 0)
	w := newDedupWindow(2, time.Hour, func() time.Time { return now })

	w.insert(idFor(1))
	w.insert(idFor(2))
	w.insert(idFor(3))

	assert.False(t, w.seenRecently(idFor(1)))
	assert.True(t, w.seenRecently(idFor(2)))
	assert.True(t, w.seenRecently(idFor(3)))
}

func TestDedupReinsertRefreshesRecency(t *testing.T) {
	now := time.Unix(1000, 0)
	w := newDedupWindow(2, time.Hour, func() time.Time { return now })

	w.insert(idFor(1))
	w.insert(idFor(2))
	w.insert(idFor(1)) // refresh id 1 to front
	w.insert(idFor(3)) // should evict id 2, not id 1

	assert.True(t, w.seenRecently(idFor(1)))
	assert.False(t, w.seenRecently(idFor(2)))
	assert.True(t, w.seenRecently(idFor(3)))
}
