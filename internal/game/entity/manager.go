package entity

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/animation"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

// Manager manages all entities and ticks their animations.
type Manager struct {
	cache    *animation.Cache
	entities map[uint32]*Entity
	player   *Entity // Reference to local player
	playerID uint32  // Player entity ID
}

// NewManager creates a new entity manager playing animations from c.
func NewManager(c *animation.Cache) *Manager {
	return &Manager{
		cache:    c,
		entities: make(map[uint32]*Entity),
	}
}

// Cache returns the animation cache entities load from.
func (m *Manager) Cache() *animation.Cache {
	return m.cache
}

// Add adds an entity.
func (m *Manager) Add(e *Entity) {
	m.entities[e.ID] = e
}

// Remove removes an entity and releases its animations.
func (m *Manager) Remove(id uint32) {
	if e, ok := m.entities[id]; ok {
		e.DropAnimations(m.cache)
		delete(m.entities, id)
	}
	if id == m.playerID {
		m.player = nil
		m.playerID = 0
	}
}

// Get returns an entity by ID.
func (m *Manager) Get(id uint32) *Entity {
	return m.entities[id]
}

// SetPlayer sets the local player entity.
func (m *Manager) SetPlayer(e *Entity) {
	m.player = e
	m.playerID = e.ID
	m.Add(e)
}

// Player returns the local player.
func (m *Manager) Player() *Entity {
	return m.player
}

// Update advances all entities in ID order.
func (m *Manager) Update(deltaMs int64) {
	for _, e := range m.All() {
		e.Update(m.cache, deltaMs)
	}
}

// All returns all entities sorted by ID.
func (m *Manager) All() []*Entity {
	result := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Holders returns every entity as a reload holder.
func (m *Manager) Holders() []animation.Holder {
	all := m.All()
	holders := make([]animation.Holder, len(all))
	for i, e := range all {
		holders[i] = e
	}
	return holders
}

// ReloadAnimations re-reads every cached animation and lets each entity
// load its slots again. Layers come back empty.
func (m *Manager) ReloadAnimations() error {
	errs := []error{m.cache.ReloadAll(m.Holders()...)}
	for _, e := range m.All() {
		errs = append(errs, e.Reacquire(m.cache))
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Warn("animation reload incomplete", zap.Error(err))
	}
	return err
}

// Count returns the total number of entities.
func (m *Manager) Count() int {
	return len(m.entities)
}

// CountByType returns the number of entities of a specific type.
func (m *Manager) CountByType(entityType Type) int {
	count := 0
	for _, e := range m.entities {
		if e.Type == entityType {
			count++
		}
	}
	return count
}

// ClearAll removes all entities including the player and releases their
// animations.
func (m *Manager) ClearAll() {
	for _, e := range m.entities {
		e.DropAnimations(m.cache)
	}
	m.entities = make(map[uint32]*Entity)
	m.player = nil
	m.playerID = 0
}
