package chatlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Message is immutable once pushed.
type Message struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
}

type Observer func(Message)

// Log is an append-only, insertion-ordered transcript. Clear is the only way
// entries leave it.
type Log struct {
	mu        sync.RWMutex
	messages  []Message
	observers []Observer
	cleared   []func()
	updated   time.Time
}

func NewLog() *Log {
	return &Log{messages: []Message{}, updated: time.Now()}
}

func (l *Log) PushUser(text string) string {
	return l.push(RoleUser, text)
}

func (l *Log) PushSystem(text string) string {
	return l.push(RoleSystem, text)
}

func (l *Log) push(role Role, content string) string {
	msg := Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		Created: time.Now(),
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.updated = msg.Created
	observers := append([]Observer(nil), l.observers...)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(msg)
	}
	return msg.ID
}

// Subscribe registers fn for every future push. Observers run on the pushing
// goroutine after the log lock is released.
func (l *Log) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func (l *Log) Updated() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updated
}

// SubscribeClear registers fn to run after every Clear.
func (l *Log) SubscribeClear(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleared = append(l.cleared, fn)
}

// Clear empties the transcript for a new chat.
func (l *Log) Clear() {
	l.mu.Lock()
	l.messages = []Message{}
	l.updated = time.Now()
	cleared := append([]func(){}, l.cleared...)
	l.mu.Unlock()

	for _, fn := range cleared {
		fn()
	}
}
