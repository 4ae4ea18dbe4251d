package storage

import (
	"context"
	"sync"
)

// Memory is a process-local Store. Several page contexts sharing one Memory
// value see each other's ignore-list writes through Watch.
type Memory struct {
	mu      sync.Mutex
	closed  bool
	ignored []string
	pinned  map[string][]byte

	wmu      sync.Mutex
	watchers map[int]func()
	nextID   int
}

func NewMemory() *Memory {
	return &Memory{pinned: map[string][]byte{}, watchers: map[int]func(){}}
}

func (m *Memory) LoadIgnored(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]string(nil), m.ignored...), nil
}

func (m *Memory) SaveIgnored(ctx context.Context, signatures []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.ignored = append([]string(nil), signatures...)
	m.mu.Unlock()

	m.wmu.Lock()
	fns := make([]func(), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.wmu.Unlock()
	// Deliver asynchronously like a real change notification would.
	for _, fn := range fns {
		go fn()
	}
	return nil
}

func (m *Memory) LoadPinned(ctx context.Context, origin string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	b, ok := m.pinned[origin]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) SavePinned(ctx context.Context, origin string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(blob) == 0 {
		delete(m.pinned, origin)
		return nil
	}
	m.pinned[origin] = append([]byte(nil), blob...)
	return nil
}

func (m *Memory) Watch(ctx context.Context, onChange func()) error {
	m.wmu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = onChange
	m.wmu.Unlock()

	<-ctx.Done()

	m.wmu.Lock()
	delete(m.watchers, id)
	m.wmu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
