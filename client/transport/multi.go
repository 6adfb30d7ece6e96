package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrMultiClosed is returned by a Multi that has been closed.
var ErrMultiClosed = errors.New("multi closed")

// Multi drives many handles at once. Each added handle performs on its own
// goroutine; the caller's loop alternates Perform, which starts pending
// handles and reaps finished ones, with Wait, which blocks until at least
// one running handle finishes:
//
//	for m.Perform(ctx) > 0 {
//		m.Wait()
//	}
//
// Handles observe ctx themselves, so a cancelled batch drains as each
// transfer returns its context error.
type Multi struct {
	mu      sync.Mutex
	pending []Handle
	running map[Handle]struct{}
	done    chan Handle
	closed  bool
}

// NewMulti returns an empty Multi.
func NewMulti() *Multi {
	return &Multi{
		running: make(map[Handle]struct{}),
		done:    make(chan Handle),
	}
}

// Add registers h to be started by the next Perform.
func (m *Multi) Add(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMultiClosed
	}
	m.pending = append(m.pending, h)

	return nil
}

// Perform starts every pending handle, reaps handles that have finished
// without blocking, and reports how many are still running.
func (m *Multi) Perform(ctx context.Context) int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	for _, h := range pending {
		m.running[h] = struct{}{}
	}
	m.mu.Unlock()

	for _, h := range pending {
		go m.run(ctx, h)
	}

	for {
		select {
		case h := <-m.done:
			m.reap(h)
		default:
			m.mu.Lock()
			n := len(m.running)
			m.mu.Unlock()
			return n
		}
	}
}

// Wait blocks until one running handle finishes. It returns immediately
// when nothing is running.
func (m *Multi) Wait() {
	m.mu.Lock()
	n := len(m.running)
	m.mu.Unlock()
	if n == 0 {
		return
	}

	m.reap(<-m.done)
}

// Remove unregisters h. A running handle keeps running until it finishes.
func (m *Multi) Remove(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, p := range m.pending {
		if p == h {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
}

// Close stops accepting handles.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.pending = nil

	return nil
}

func (m *Multi) run(ctx context.Context, h Handle) {
	defer func() {
		m.done <- h
	}()

	// Transfer errors are kept on the handle.
	_ = h.Perform(ctx)
}

func (m *Multi) reap(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.running, h)
}
