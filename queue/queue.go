// Package queue stages command envelopes between intake and execution.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"

	"kiosk-gateway/entities"
)

var ErrClosed = errors.New("command queue closed")

// Queue is an unbounded FIFO. Enqueue never blocks; Dequeue suspends until an
// item arrives, the context ends or the queue is closed and drained.
type Queue struct {
	mu     sync.Mutex
	items  *queue.Queue
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func New() *Queue {
	return &Queue{
		items: queue.New(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *Queue) Enqueue(cmd entities.CommandEnvelope) {
	q.mu.Lock()
	q.items.Add(cmd)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) Dequeue(ctx context.Context) (entities.CommandEnvelope, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			cmd := q.items.Remove().(entities.CommandEnvelope)
			more := q.items.Length() > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return cmd, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return entities.CommandEnvelope{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return entities.CommandEnvelope{}, ctx.Err()
		case <-q.done:
		case <-q.wake:
		}
	}
}

func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Clear removes every pending item and returns them in arrival order.
func (q *Queue) Clear() []entities.CommandEnvelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := make([]entities.CommandEnvelope, 0, q.items.Length())
	for q.items.Length() > 0 {
		dropped = append(dropped, q.items.Remove().(entities.CommandEnvelope))
	}
	return dropped
}

// Close releases blocked consumers once the remaining items are drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
