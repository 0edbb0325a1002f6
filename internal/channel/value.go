package channel

import "sync"

type valueSlot[T any] struct {
	mu             sync.Mutex
	value          T
	fresh          bool
	senderClosed   bool
	receiverClosed bool
	overwritten    uint64
}

// ValueSender publishes values into a single-slot channel.
type ValueSender[T any] struct {
	slot *valueSlot[T]
}

// ValueReceiver reads the latest value published into a single-slot channel.
type ValueReceiver[T any] struct {
	slot *valueSlot[T]
	last T
}

// NewValue creates a connected single-slot value channel. The receiver sees
// the zero value of T until something is published.
func NewValue[T any]() (*ValueSender[T], *ValueReceiver[T]) {
	slot := &valueSlot[T]{}
	return &ValueSender[T]{slot: slot}, &ValueReceiver[T]{slot: slot}
}

// Publish overwrites the slot. It never blocks; an unread value is dropped.
func (s *ValueSender[T]) Publish(v T) error {
	s.slot.mu.Lock()
	defer s.slot.mu.Unlock()

	if s.slot.receiverClosed || s.slot.senderClosed {
		return ErrClosed
	}
	if s.slot.fresh {
		s.slot.overwritten++
	}
	s.slot.value = v
	s.slot.fresh = true
	return nil
}

// Overwritten reports how many published values were replaced before the
// receiver read them.
func (s *ValueSender[T]) Overwritten() uint64 {
	s.slot.mu.Lock()
	defer s.slot.mu.Unlock()
	return s.slot.overwritten
}

// Close marks the sender side closed. A value published before Close can
// still be read once.
func (s *ValueSender[T]) Close() {
	s.slot.mu.Lock()
	s.slot.senderClosed = true
	s.slot.mu.Unlock()
}

// Latest returns the most recently published value, or the value returned by
// the previous call when nothing new has arrived. Once the sender is closed and
// the last value was consumed, Latest returns ErrClosed.
func (r *ValueReceiver[T]) Latest() (T, error) {
	v, _, err := r.poll()
	return v, err
}

// Take is like Latest but reports whether the value was published since the
// previous poll. It is meant for one-shot signals.
func (r *ValueReceiver[T]) Take() (T, bool, error) {
	return r.poll()
}

func (r *ValueReceiver[T]) poll() (T, bool, error) {
	r.slot.mu.Lock()
	defer r.slot.mu.Unlock()

	if r.slot.fresh {
		r.last = r.slot.value
		r.slot.fresh = false
		var zero T
		r.slot.value = zero
		return r.last, true, nil
	}
	if r.slot.senderClosed || r.slot.receiverClosed {
		var zero T
		return zero, false, ErrClosed
	}
	return r.last, false, nil
}

// Close marks the receiver side closed; further publishes fail.
func (r *ValueReceiver[T]) Close() {
	r.slot.mu.Lock()
	r.slot.receiverClosed = true
	r.slot.mu.Unlock()
}
