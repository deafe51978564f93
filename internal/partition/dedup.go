package partition

import (
	"container/list"
	"sync"
	"time"

	"github.com/FairForge/streamkeg/internal/message"
)

// dedupEntry is one tracked message id, ordered newest-first in window.order
// so eviction of both expired and over-capacity entries can scan from the
// tail.
type dedupEntry struct {
	id     message.ID
	seenAt time.Time
}

// window is the bounded, time-expiring set of recently seen message ids used
// to discard duplicates at append time / glossary.
type window struct {
	mu         sync.Mutex
	maxEntries int
	expiry     time.Duration
	byID       map[message.ID]*list.Element
	order      *list.List // front = newest
	now        func() time.Time
}

func newDedupWindow(maxEntries int, expiry time.Duration, now func() time.Time) *window {
	if now == nil {
		now = time.Now
	}
	return &window{
		maxEntries: maxEntries,
		expiry:     expiry,
		byID:       make(map[message.ID]*list.Element),
		order:      list.New(),
		now:        now,
	}
}

// seenRecently reports whether id was already inserted within the window. It
// also performs lazy eviction of anything past its expiry.
func (w *window) seenRecently(id message.ID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictExpiredLocked()
	_, exists := w.byID[id]
	return exists
}

// insert records id as seen, evicting expired and over-capacity entries.
func (w *window) insert(id message.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictExpiredLocked()

	if elem, exists := w.byID[id]; exists {
		elem.Value.(*dedupEntry).seenAt = w.now()
		w.order.MoveToFront(elem)
		return
	}

	entry := &dedupEntry{id: id, seenAt: w.now()}
	elem := w.order.PushFront(entry)
	w.byID[id] = elem

	for w.maxEntries > 0 && w.order.Len() > w.maxEntries {
		back := w.order.Back()
		if back == nil {
			break
		}
		w.order.Remove(back)
		delete(w.byID, back.Value.(*dedupEntry).id)
	}
}

// evictExpiredLocked drops every entry older than expiry. Precision is
// bounded only by the caller's clock resolution, which time.Time trivially
// satisfies for the second-or-coarser windows this is configured with.
func (w *window) evictExpiredLocked() {
	if w.expiry <= 0 {
		return
	}
	now := w.now()
	for {
		back := w.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*dedupEntry)
		if now.Sub(entry.seenAt) < w.expiry {
			return
		}
		w.order.Remove(back)
		delete(w.byID, entry.id)
	}
}
