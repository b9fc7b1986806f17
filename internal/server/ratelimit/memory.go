package ratelimit

import (
	"context"
	"sync"
	"time"
)

// minIdleTTL is the shortest time an idle window is kept before a sweep drops it.
const minIdleTTL = time.Hour

type window struct {
	start    time.Time
	length   time.Duration
	count    int
	lastSeen time.Time
}

// MemoryCounter keeps fixed windows in a map guarded by one mutex. A ticker
// goroutine sweeps windows idle for longer than max(window, 1h).
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
	stopOnce      sync.Once
}

// NewMemoryCounter creates a counter. A positive cleanupInterval starts the sweeper.
func NewMemoryCounter(cleanupInterval time.Duration) *MemoryCounter {
	m := &MemoryCounter{
		windows: make(map[string]*window),
		now:     time.Now,
	}

	if cleanupInterval > 0 {
		m.cleanupTicker = time.NewTicker(cleanupInterval)
		m.cleanupStop = make(chan struct{})
		go m.cleanup()
	}

	return m
}

// Hit implements Counter. A window resets once more than its length has
// elapsed since it started.
func (m *MemoryCounter) Hit(_ context.Context, key string, length time.Duration) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) > length {
		w = &window{start: now, length: length}
		m.windows[key] = w
	}
	w.count++
	w.lastSeen = now

	return w.count, w.start.Add(length), nil
}

func (m *MemoryCounter) cleanup() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.Sweep()
		case <-m.cleanupStop:
			return
		}
	}
}

// Sweep drops idle windows and returns how many were removed.
func (m *MemoryCounter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, w := range m.windows {
		if now.Sub(w.lastSeen) > max(w.length, minIdleTTL) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows.
func (m *MemoryCounter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Stop stops the cleanup goroutine.
func (m *MemoryCounter) Stop() {
	m.stopOnce.Do(func() {
		if m.cleanupTicker != nil {
			m.cleanupTicker.Stop()
		}
		if m.cleanupStop != nil {
			close(m.cleanupStop)
		}
	})
}
