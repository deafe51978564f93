// Package registry implements the process-wide stream/topic
// table, populated from on-disk metadata at boot and kept current via a
// write-ahead persistence rule (write the metadata file, then update the
// in-memory map).
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/stream"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Registry is the broker's single process-wide table of streams.
type Registry struct {
	dir   string
	pool  *diskio.Pool
	quota *cache.Quota

	mu     sync.RWMutex
	byID   map[uint32]*stream.Stream
	byName map[string]*stream.Stream
	nextID uint32
}

// Boot scans dir for stream subdirectories (named by numeric stream id) and
// reconstructs every stream, topic and partition beneath it from the
// metadata left on disk by the previous run.
func Boot(dir string, pool *diskio.Pool, quota *cache.Quota) (*Registry, error) {
	r := &Registry{
		dir: dir, pool: pool, quota: quota,
		byID: make(map[uint32]*stream.Stream), byName: make(map[string]*stream.Stream),
		nextID: 1,
	}

	ids, err := discoverStreamIDs(dir)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "scan registry dir: %v", err)
	}
	for _, id := range ids {
		name, err := loadStreamName(streamDir(dir, id))
		if err != nil {
			return nil, err
		}
		s, err := stream.Open(streamDir(dir, id), id, name, pool, quota)
		if err != nil {
			return nil, err
		}
		r.byID[id] = s
		r.byName[name] = s
		if id >= r.nextID {
			r.nextID = id + 1
		}
	}
	return r, nil
}

func streamDir(dir string, id uint32) string {
	return filepath.Join(dir, "streams", strconv.FormatUint(uint64(id), 10))
}

func discoverStreamIDs(dir string) ([]uint32, error) {
	streamsDir := filepath.Join(dir, "streams")
	entries, err := os.ReadDir(streamsDir)
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

func loadStreamName(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "stream.info"))
	if err != nil {
		return "", wire.New(wire.KindIoError, "read stream info: %v", err)
	}
	return string(data), nil
}

func writeStreamName(dir, name string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return wire.New(wire.KindIoError, "create stream dir: %v", err)
	}
	path := filepath.Join(dir, "stream.info")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(name), 0o640); err != nil {
		return wire.New(wire.KindIoError, "write stream info: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return wire.New(wire.KindIoError, "rename stream info into place: %v", err)
	}
	return nil
}

// CreateStream allocates a new stream id (0 means auto-assign), persists
// its info file before inserting into the in-memory maps, and returns it.
func (r *Registry) CreateStream(id uint32, name string) (*stream.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == 0 {
		id = r.nextID
	}
	if _, exists := r.byID[id]; exists {
		return nil, wire.New(wire.KindStreamIDAlreadyExists, "stream id %d already exists", id)
	}
	if _, exists := r.byName[name]; exists {
		return nil, wire.New(wire.KindStreamNameAlreadyExists, "stream name %q already exists", name)
	}

	dir := streamDir(r.dir, id)
	if err := writeStreamName(dir, name); err != nil {
		return nil, err
	}

	s, err := stream.Open(dir, id, name, r.pool, r.quota)
	if err != nil {
		return nil, err
	}
	r.byID[id] = s
	r.byName[name] = s
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return s, nil
}

// DeleteStream removes a stream and its entire on-disk subtree.
func (r *Registry) DeleteStream(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return wire.New(wire.KindStreamNotFound, "stream %d not found", id)
	}
	delete(r.byID, id)
	delete(r.byName, s.Name)
	if err := os.RemoveAll(streamDir(r.dir, id)); err != nil {
		return wire.New(wire.KindIoError, "remove stream dir: %v", err)
	}
	return nil
}

// ResolveStream resolves an Identifier against the stream table.
func (r *Registry) ResolveStream(id wire.Identifier) (*stream.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id.IsNumeric() {
		s, ok := r.byID[id.Numeric()]
		return s, ok
	}
	s, ok := r.byName[id.Name()]
	return s, ok
}

// ResolveTopic resolves a topic Identifier within a stream Identifier.
func (r *Registry) ResolveTopic(streamID, topicID wire.Identifier) (*stream.Stream, *topic.Topic, bool) {
	s, ok := r.ResolveStream(streamID)
	if !ok {
		return nil, nil, false
	}
	if topicID.IsNumeric() {
		t, ok := s.GetTopic(topicID.Numeric())
		return s, t, ok
	}
	t, ok := s.GetTopicByName(topicID.Name())
	return s, t, ok
}

// Streams returns every stream currently registered.
func (r *Registry) Streams() []*stream.Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*stream.Stream, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
