package channel

import "sync"

type queueState[T any] struct {
	mu             sync.Mutex
	items          []T
	senderClosed   bool
	receiverClosed bool
}

// QueueSender appends items to an unbounded FIFO queue.
type QueueSender[T any] struct {
	q *queueState[T]
}

// QueueReceiver drains items from an unbounded FIFO queue.
type QueueReceiver[T any] struct {
	q *queueState[T]
}

// NewQueue creates a connected unbounded queue.
func NewQueue[T any]() (*QueueSender[T], *QueueReceiver[T]) {
	q := &queueState[T]{}
	return &QueueSender[T]{q: q}, &QueueReceiver[T]{q: q}
}

// Send enqueues v. It never blocks.
func (s *QueueSender[T]) Send(v T) error {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.q.receiverClosed || s.q.senderClosed {
		return ErrClosed
	}
	s.q.items = append(s.q.items, v)
	return nil
}

// Close marks the sender closed. Queued items remain drainable.
func (s *QueueSender[T]) Close() {
	s.q.mu.Lock()
	s.q.senderClosed = true
	s.q.mu.Unlock()
}

// Drain removes and returns every pending item in send order. It returns
// ErrClosed only after the sender closed and nothing is left.
func (r *QueueReceiver[T]) Drain() ([]T, error) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	if len(r.q.items) == 0 {
		if r.q.senderClosed || r.q.receiverClosed {
			return nil, ErrClosed
		}
		return nil, nil
	}
	items := r.q.items
	r.q.items = nil
	return items, nil
}

// Len reports the number of pending items.
func (r *QueueReceiver[T]) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.items)
}

// Close marks the receiver closed; further sends fail.
func (r *QueueReceiver[T]) Close() {
	r.q.mu.Lock()
	r.q.receiverClosed = true
	r.q.items = nil
	r.q.mu.Unlock()
}
