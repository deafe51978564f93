package group

import (
	"sync"

	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Manager holds, per topic, the map of consumer groups.
type Manager struct {
	mu     sync.RWMutex
	byTopic map[uint32]map[uint32]*Group // topic id -> group id -> Group
	nextID  map[uint32]uint32
}

// NewManager returns an empty group manager.
func NewManager() *Manager {
	return &Manager{
		byTopic: make(map[uint32]map[uint32]*Group),
		nextID:  make(map[uint32]uint32),
	}
}

// CreateGroup creates a group under t (id 0 auto-assigns).
func (m *Manager) CreateGroup(t *topic.Topic, id uint32, name string) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups, ok := m.byTopic[t.ID]
	if !ok {
		groups = make(map[uint32]*Group)
		m.byTopic[t.ID] = groups
	}
	if id == 0 {
		id = m.nextID[t.ID] + 1
	}
	if _, exists := groups[id]; exists {
		return nil, wire.New(wire.KindConsumerGroupIDAlreadyExists, "consumer group %d already exists on topic %d", id, t.ID)
	}

	g := NewGroup(id, name, t)
	groups[id] = g
	if id > m.nextID[t.ID] {
		m.nextID[t.ID] = id
	}
	return g, nil
}

// DeleteGroup removes a group from a topic.
func (m *Manager) DeleteGroup(topicID, groupID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups, ok := m.byTopic[topicID]
	if !ok {
		return wire.New(wire.KindConsumerGroupNotFound, "consumer group %d not found on topic %d", groupID, topicID)
	}
	if _, ok := groups[groupID]; !ok {
		return wire.New(wire.KindConsumerGroupNotFound, "consumer group %d not found on topic %d", groupID, topicID)
	}
	delete(groups, groupID)
	return nil
}

// Get resolves a group by topic and group id.
func (m *Manager) Get(topicID, groupID uint32) (*Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups, ok := m.byTopic[topicID]
	if !ok {
		return nil, false
	}
	g, ok := groups[groupID]
	return g, ok
}

// Groups returns every group registered under topicID.
func (m *Manager) Groups(topicID uint32) []*Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := m.byTopic[topicID]
	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	return out
}
