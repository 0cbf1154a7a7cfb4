package reactive

import "sync"

// Store is a minimal observable state container. Updates replace the whole
// value, never mutate it in place, so subscribers and Get callers can never
// observe a half-updated structure.
//
// Each subscriber channel is buffered with capacity one and coalesces
// updates: if a subscriber is slow, intermediate values are dropped and it
// sees only the latest. That matches the display semantics, where stale
// intermediate states are worthless.
type Store[T any] struct {
	mu   sync.Mutex
	val  T
	subs map[int]chan T
	next int
}

func NewStore[T any](initial T) *Store[T] {
	return &Store[T]{val: initial, subs: map[int]chan T{}}
}

// Get returns the current value.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

// Set replaces the value and notifies all subscribers.
func (s *Store[T]) Set(v T) {
	s.mu.Lock()
	s.val = v
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Full buffer: drop the stale value, then queue the new one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
	s.mu.Unlock()
}

// Subscribe registers a listener. The returned cancel func must be called
// to release the channel.
func (s *Store[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	ch := make(chan T, 1)
	s.subs[id] = ch
	s.mu.Unlock()
	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}
