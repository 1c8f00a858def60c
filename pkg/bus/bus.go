package bus

import (
	"context"
	"sync"
	"time"

	"khwaaish/pkg/logger"
)

// MessageBus carries client actions in and transcript events out. Outbound
// handlers are registered per chat id by the connection that owns the chat.
type MessageBus struct {
	inbound   chan InboundMessage
	outbound  chan OutboundMessage
	handlers  map[string]MessageHandler
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

const queueWriteTimeout = 2 * time.Second

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, 100),
		outbound: make(chan OutboundMessage, 256),
		handlers: make(map[string]MessageHandler),
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return false
	}
	ch := mb.inbound
	mb.mu.RUnlock()

	defer func() {
		if recover() != nil {
			logger.WarnCF("bus", "PublishInbound on closed channel recovered", map[string]interface{}{
				logger.FieldChatID: msg.ChatID,
				"action":           msg.Action,
			})
		}
	}()

	select {
	case ch <- msg:
		return true
	case <-time.After(queueWriteTimeout):
		logger.ErrorCF("bus", "PublishInbound timeout (queue full)", map[string]interface{}{
			logger.FieldChatID: msg.ChatID,
			"action":           msg.Action,
		})
		return false
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return false
	}
	ch := mb.outbound
	mb.mu.RUnlock()

	defer func() {
		if recover() != nil {
			logger.WarnCF("bus", "PublishOutbound on closed channel recovered", map[string]interface{}{
				logger.FieldChatID: msg.ChatID,
				"type":             msg.Type,
			})
		}
	}()

	select {
	case ch <- msg:
		return true
	case <-time.After(queueWriteTimeout):
		logger.ErrorCF("bus", "PublishOutbound timeout (queue full)", map[string]interface{}{
			logger.FieldChatID: msg.ChatID,
			"type":             msg.Type,
		})
		return false
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-mb.outbound:
		return msg, ok
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func (mb *MessageBus) RegisterHandler(chatID string, handler MessageHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.handlers[chatID] = handler
}

func (mb *MessageBus) UnregisterHandler(chatID string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.handlers, chatID)
}

func (mb *MessageBus) GetHandler(chatID string) (MessageHandler, bool) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	handler, ok := mb.handlers[chatID]
	return handler, ok
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		close(mb.inbound)
		close(mb.outbound)
		mb.mu.Unlock()
	})
}
