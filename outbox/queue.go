// Package outbox holds messages waiting for the next broadcast flush.
package outbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one pending broadcast. SenderNick tags messages that originate
// from a member's own chat line so delivery can skip echoing it back to them;
// notices leave it empty and go to everyone.
type Message struct {
	ID         string
	Text       string
	SenderNick string
	CreatedAt  time.Time
}

// Queue is an append-only buffer drained atomically by the flush loop.
type Queue struct {
	mu      sync.Mutex
	pending []Message
	now     func() time.Time
}

func New() *Queue {
	return &Queue{now: time.Now}
}

// Append queues text for broadcast, tagged with the originating nick (may be
// empty for channel notices).
func (q *Queue) Append(text, senderNick string) Message {
	msg := Message{
		ID:         uuid.NewString(),
		Text:       text,
		SenderNick: senderNick,
		CreatedAt:  q.now().UTC(),
	}
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()
	return msg
}

// Drain swaps the pending slice for an empty one and returns the drained
// messages in arrival order. Concurrent producers never observe a partial
// drain.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	drained := q.pending
	q.pending = nil
	q.mu.Unlock()
	return drained
}

// Requeue puts undelivered messages back at the front of the queue, ahead
// of anything appended since the drain, preserving their original order.
func (q *Queue) Requeue(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(append([]Message(nil), msgs...), q.pending...)
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
