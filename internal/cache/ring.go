// Package cache implements a bounded ring of recent messages, evicted in
// insertion order (reads do not refresh an entry), plus the shared memory
// quota that bounds it across every partition in the broker.
package cache

import (
	"container/list"
	"sync"

	"github.com/FairForge/streamkeg/internal/message"
)

// Quota is the process-wide memory budget shared by every partition's
// message cache; segment index caches are not counted against it. A ring
// reserves a message's bytes right after inserting it, and the bytes of
// evicted entries are subtracted again; when the quota is exhausted, entries
// are evicted from the back of the registered rings (see evictOldestLocked).
// Partitions push a message into their ring only after it has been written
// to its segment, so a message still being appended is never in the cache.
type Quota struct {
	mu    sync.Mutex
	limit int64
	used  int64
	rings []*Ring
}

// NewQuota creates a shared quota with the given byte limit. A zero or
// negative limit means unbounded (cache never evicts for memory pressure).
func NewQuota(limitBytes int64) *Quota {
	return &Quota{limit: limitBytes}
}

func (q *Quota) register(r *Ring) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rings = append(q.rings, r)
}

// reserve accounts for n additional bytes, evicting ring entries (not
// necessarily r's own, see evictOldestLocked) until there is room, unless
// the quota is unbounded.
func (q *Quota) reserve(r *Ring, n int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit <= 0 {
		q.used += n
		return
	}
	for q.used+n > q.limit {
		if !q.evictOldestLocked() {
			break
		}
	}
	q.used += n
}

func (q *Quota) release(n int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used -= n
	if q.used < 0 {
		q.used = 0
	}
}

// evictOldestLocked evicts the back (oldest-inserted) entry of the ring whose
// back entry has the lowest sequence number. Sequence numbers are counted per
// ring, so this is not a global insertion order across rings. Called with
// q.mu held.
func (q *Quota) evictOldestLocked() bool {
	var oldestRing *Ring
	var oldestSeq uint64 = ^uint64(0)
	for _, r := range q.rings {
		seq, ok := r.oldestSeq()
		if ok && seq < oldestSeq {
			oldestSeq = seq
			oldestRing = r
		}
	}
	if oldestRing == nil {
		return false
	}
	freed := oldestRing.evictOldestForQuota()
	q.used -= freed
	if q.used < 0 {
		q.used = 0
	}
	return freed > 0
}

type ringEntry struct {
	msg *message.Message
	seq uint64
}

// Ring is one partition's bounded cache of recently appended messages,
// indexed by offset so poll() can serve directly from memory when the
// requested range is fully covered.
type Ring struct {
	mu       sync.RWMutex
	capacity int // max message count kept in memory, independent of the quota
	quota    *Quota
	seqGen   uint64

	byOffset map[uint64]*list.Element
	order    *list.List // front = newest, back = oldest
}

// NewRing creates a ring bounded both by message count (capacity) and by the
// shared byte quota.
func NewRing(capacity int, quota *Quota) *Ring {
	if quota == nil {
		quota = NewQuota(0)
	}
	r := &Ring{
		capacity: capacity,
		quota:    quota,
		byOffset: make(map[uint64]*list.Element),
		order:    list.New(),
	}
	quota.register(r)
	return r
}

// Push inserts a freshly appended message at the tail (most recent).
func (r *Ring) Push(m *message.Message) {
	r.mu.Lock()
	r.seqGen++
	entry := &ringEntry{msg: m, seq: r.seqGen}
	elem := r.order.PushFront(entry)
	r.byOffset[m.Offset] = elem
	size := int64(m.EncodedSize())
	evictedLocally := r.evictOverCapacityLocked()
	r.mu.Unlock()

	r.quota.reserve(r, size-evictedLocally)
}

// evictOverCapacityLocked drops entries past the message-count capacity and
// returns the total encoded size freed. Called with r.mu held.
func (r *Ring) evictOverCapacityLocked() int64 {
	if r.capacity <= 0 {
		return 0
	}
	var freed int64
	for r.order.Len() > r.capacity {
		back := r.order.Back()
		if back == nil {
			break
		}
		e := back.Value.(*ringEntry)
		freed += int64(e.msg.EncodedSize())
		r.order.Remove(back)
		delete(r.byOffset, e.msg.Offset)
	}
	return freed
}

func (r *Ring) oldestSeq() (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	back := r.order.Back()
	if back == nil {
		return 0, false
	}
	return back.Value.(*ringEntry).seq, true
}

func (r *Ring) evictOldestForQuota() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	back := r.order.Back()
	if back == nil {
		return 0
	}
	e := back.Value.(*ringEntry)
	r.order.Remove(back)
	delete(r.byOffset, e.msg.Offset)
	return int64(e.msg.EncodedSize())
}

// Range returns up to limit consecutive messages starting at fromOffset, in
// offset order, stopping at the first offset that is not cached. The bool is
// false when fromOffset itself is not cached; true does not mean that limit
// messages were returned.
func (r *Ring) Range(fromOffset uint64, limit int) ([]*message.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.byOffset) == 0 {
		return nil, false
	}
	if _, ok := r.byOffset[fromOffset]; !ok {
		return nil, false
	}

	out := make([]*message.Message, 0, limit)
	offset := fromOffset
	for len(out) < limit {
		elem, ok := r.byOffset[offset]
		if !ok {
			break
		}
		out = append(out, elem.Value.(*ringEntry).msg)
		offset++
	}
	return out, len(out) > 0
}

// Len reports how many messages are currently cached.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order.Len()
}
