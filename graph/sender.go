package graph

import "sync"

// SenderReceiver is the thread-safe queue owned by a push-source node. The
// enqueue side is handed to external producer goroutines for the lifetime of
// the node (started to stopped); the executor drains the receive side on its
// own goroutine during the push-source phase of a tick.
//
// Enqueue is the only cross-thread entry point into a running engine. Each
// enqueue appends under the lock, marks the execution context's push-pending
// flag, and wakes the real-time clock's condition variable. User code is
// never invoked under the lock.
type SenderReceiver struct {
	mu      sync.Mutex
	queue   []any
	clock   ExecutionContext
	stopped bool
}

// NewSenderReceiver creates a receiver wired to the given clock.
func NewSenderReceiver(clock ExecutionContext) *SenderReceiver {
	return &SenderReceiver{clock: clock}
}

// Enqueue appends a value for the owning push-source node to apply on a
// subsequent tick. Within one producer goroutine, FIFO order is preserved.
// Returns ErrReceiverStopped once the owning node has stopped, and the
// clock's error if the run mode does not support push sources.
func (s *SenderReceiver) Enqueue(value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrReceiverStopped
	}
	if err := s.clock.MarkPushHasPendingValues(); err != nil {
		return err
	}
	s.queue = append(s.queue, value)
	return nil
}

// Dequeue removes and returns the oldest pending value. The second return
// is false when the queue is empty. Non-blocking.
func (s *SenderReceiver) Dequeue() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	v := s.queue[0]
	s.queue = s.queue[1:]
	return v, true
}

// Len returns the number of pending values.
func (s *SenderReceiver) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// markStopped refuses further enqueues. Called by the owning node on stop.
func (s *SenderReceiver) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}
