// Package stream implements a thin owner of topics plus the
// name/id uniqueness maps that every create/update/delete mirrors from the
// topic layer.
package stream

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Details is the read-only snapshot returned by GetDetails.
type Details struct {
	ID         uint32
	Name       string
	TopicCount int
}

// Stream owns a set of topics by id and by name.
type Stream struct {
	ID   uint32
	Name string

	dir   string
	pool  *diskio.Pool
	quota *cache.Quota

	mu       sync.RWMutex
	byID     map[uint32]*topic.Topic
	byName   map[string]*topic.Topic
	nextID   uint32
}

// Open reconstructs a Stream from its on-disk directory, opening every
// topic subdirectory it contains (named by numeric topic id).
func Open(dir string, id uint32, name string, pool *diskio.Pool, quota *cache.Quota) (*Stream, error) {
	s := &Stream{
		ID: id, Name: name, dir: dir, pool: pool, quota: quota,
		byID: make(map[uint32]*topic.Topic), byName: make(map[string]*topic.Topic),
		nextID: 1,
	}

	ids, err := discoverTopicIDs(dir)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "scan stream dir: %v", err)
	}
	for _, tid := range ids {
		meta, err := loadTopicMeta(topicDir(dir, tid))
		if err != nil {
			return nil, err
		}
		t, err := topic.Open(topicDir(dir, tid), id, tid, meta.Name, meta.Config, pool, quota)
		if err != nil {
			return nil, err
		}
		s.byID[tid] = t
		s.byName[meta.Name] = t
		if tid >= s.nextID {
			s.nextID = tid + 1
		}
	}
	return s, nil
}

func topicDir(streamDir string, id uint32) string {
	return filepath.Join(streamDir, "topics", strconv.FormatUint(uint64(id), 10))
}

func discoverTopicIDs(dir string) ([]uint32, error) {
	topicsDir := filepath.Join(dir, "topics")
	entries, err := os.ReadDir(topicsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []uint32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CreateTopic allocates a new topic id (if id is 0, auto-assigns the next
// free one), persists its info file write-ahead of the in-memory insert per
// and opens it.
func (s *Stream) CreateTopic(id uint32, name string, cfg topic.Config) (*topic.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == 0 {
		id = s.nextID
	}
	if _, exists := s.byID[id]; exists {
		return nil, wire.New(wire.KindTopicIDAlreadyExists, "topic id %d already exists in stream %d", id, s.ID)
	}
	if _, exists := s.byName[name]; exists {
		return nil, wire.New(wire.KindTopicNameAlreadyExists, "topic name %q already exists in stream %d", name, s.ID)
	}

	dir := topicDir(s.dir, id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, wire.New(wire.KindIoError, "create topic dir: %v", err)
	}
	if err := writeTopicMeta(dir, metaFromConfig(name, cfg)); err != nil {
		return nil, err
	}

	t, err := topic.Open(dir, s.ID, id, name, cfg, s.pool, s.quota)
	if err != nil {
		return nil, err
	}
	s.byID[id] = t
	s.byName[name] = t
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return t, nil
}

// DeleteTopic removes a topic entirely, including its on-disk directory.
func (s *Stream) DeleteTopic(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return wire.New(wire.KindTopicNotFound, "topic %d not found in stream %d", id, s.ID)
	}
	delete(s.byID, id)
	delete(s.byName, t.Name)
	if err := os.RemoveAll(topicDir(s.dir, id)); err != nil {
		return wire.New(wire.KindIoError, "remove topic dir: %v", err)
	}
	return nil
}

// GetTopic resolves by numeric id.
func (s *Stream) GetTopic(id uint32) (*topic.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok
}

// GetTopicByName resolves by name.
func (s *Stream) GetTopicByName(name string) (*topic.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byName[name]
	return t, ok
}

// UpdateTopicName renames a topic, maintaining the uniqueness map.
func (s *Stream) UpdateTopicName(id uint32, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return wire.New(wire.KindTopicNotFound, "topic %d not found in stream %d", id, s.ID)
	}
	if _, exists := s.byName[newName]; exists {
		return wire.New(wire.KindTopicNameAlreadyExists, "topic name %q already exists in stream %d", newName, s.ID)
	}
	delete(s.byName, t.Name)
	t.Name = newName
	s.byName[newName] = t
	return writeTopicMeta(topicDir(s.dir, id), metaFromConfig(newName, t.Config()))
}

// Topics returns every topic owned by this stream.
func (s *Stream) Topics() []*topic.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*topic.Topic, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Purge removes every message from every topic owned by this stream.
func (s *Stream) Purge() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.byID {
		if err := t.Purge(); err != nil {
			return err
		}
	}
	return nil
}

// GetDetails summarizes the stream's current state.
func (s *Stream) GetDetails() Details {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Details{ID: s.ID, Name: s.Name, TopicCount: len(s.byID)}
}
