package chat

import (
	"sync"
	"time"

	"khwaaish/pkg/chatlog"
	"khwaaish/pkg/logger"
)

// Manager owns one Engine per chat id. Transcripts come from a
// chatlog.Manager so both views agree on which chats exist.
type Manager struct {
	mu      sync.RWMutex
	engines map[string]*Engine
	logs    *chatlog.Manager
	factory Factory
	choices []string
}

// NewManager creates engines with factory. choices narrows the retailers
// offered in each chat; nil offers every known flow.
func NewManager(factory Factory, choices []string) *Manager {
	return &Manager{
		engines: make(map[string]*Engine),
		logs:    chatlog.NewManager(),
		factory: factory,
		choices: choices,
	}
}

func (m *Manager) GetOrCreate(chatID string) *Engine {
	m.mu.RLock()
	e, ok := m.engines[chatID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.engines[chatID]; ok {
		return e
	}
	e = NewEngine(chatID, m.logs.GetOrCreate(chatID), m.factory)
	if m.choices != nil {
		e.SetChoices(m.choices)
	}
	m.engines[chatID] = e
	return e
}

func (m *Manager) Get(chatID string) (*Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[chatID]
	return e, ok
}

func (m *Manager) Remove(chatID string) {
	m.mu.Lock()
	e, ok := m.engines[chatID]
	delete(m.engines, chatID)
	m.mu.Unlock()

	if ok {
		if ctrl := e.Controller(); ctrl != nil {
			ctrl.Reset()
		}
	}
	m.logs.Remove(chatID)
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

// PruneIdle drops chats whose transcript has not changed since maxIdle ago.
// Chats with a request in flight, or for which keep returns true, stay.
func (m *Manager) PruneIdle(maxIdle time.Duration, keep func(chatID string) bool) int {
	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for _, id := range m.logs.ListKeys() {
		log, ok := m.logs.Get(id)
		if !ok || !log.Updated().Before(cutoff) {
			continue
		}
		if keep != nil && keep(id) {
			continue
		}
		e, ok := m.Get(id)
		if ok {
			if ctrl := e.Controller(); ctrl != nil && ctrl.Loading() {
				continue
			}
		}
		m.Remove(id)
		removed++
	}
	if removed > 0 {
		logger.InfoCF("chat", "Pruned idle chats", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed
}
