package chatlog

import (
	"sort"
	"strings"
	"sync"

	"khwaaish/pkg/logger"
)

// Manager keeps one Log per chat id. Transcripts live in memory only.
type Manager struct {
	logs map[string]*Log
	mu   sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{logs: make(map[string]*Log)}
}

func (m *Manager) GetOrCreate(chatID string) *Log {
	m.mu.RLock()
	l, ok := m.logs[chatID]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check existence after acquiring write lock
	if l, ok = m.logs[chatID]; ok {
		return l
	}
	l = NewLog()
	m.logs[chatID] = l
	logger.DebugCF("chatlog", "Created chat log", map[string]interface{}{
		logger.FieldChatID: chatID,
	})
	return l
}

func (m *Manager) Get(chatID string) (*Log, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.logs[chatID]
	return l, ok
}

func (m *Manager) Remove(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, chatID)
}

func (m *Manager) ListKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.logs))
	for k := range m.logs {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
