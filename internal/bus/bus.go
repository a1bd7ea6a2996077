// Package bus routes messages between named stages through per-recipient mailboxes.
package bus

import (
	"context"
	"sync"

	"github.com/ManishShirke/aiops-agent/internal/model"
)

// Logger is the slice of the observability engine the bus needs.
type Logger interface {
	Log(ctx context.Context, level model.Level, component, msg string, attrs ...any)
}

// Bus holds one FIFO mailbox per recipient. Publish never blocks and Consume
// drains atomically, so a message is seen by at most one Consume call.
// Create one Bus per run to keep concurrent runs' mailboxes apart.
type Bus struct {
	log Logger

	mu     sync.Mutex
	queues map[string][]model.Message
}

// New creates an empty bus.
func New(log Logger) *Bus {
	return &Bus{
		log:    log,
		queues: make(map[string][]model.Message),
	}
}

// Publish appends a message to recipient's mailbox, creating it on first use.
func (b *Bus) Publish(ctx context.Context, sender, recipient string, content any) {
	b.mu.Lock()
	b.queues[recipient] = append(b.queues[recipient], model.Message{From: sender, Content: content})
	b.mu.Unlock()
	b.log.Log(ctx, model.LevelInfo, "MSG_BUS", "Message Queued", "from", sender, "to", recipient)
}

// Consume returns recipient's queued messages in arrival order and empties the
// mailbox. It returns an empty, non-nil slice when nothing is queued.
func (b *Bus) Consume(recipient string) []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.queues[recipient]
	delete(b.queues, recipient)
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}

// Pending returns the number of messages waiting for recipient without draining.
func (b *Bus) Pending(recipient string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[recipient])
}
