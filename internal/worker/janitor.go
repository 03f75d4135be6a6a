package worker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultJanitorInterval = 5 * time.Minute

// StartJanitor evicts idle sessions every interval until ctx ends.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	go m.janitorLoop(ctx, interval)
}

func (m *Manager) janitorLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.evictIdle(); n > 0 {
				log.Printf("evicted %d idle sessions", n)
			}
		}
	}
}

// evictIdle removes sessions untouched for longer than the TTL. Sessions with a
// cycle in flight are kept.
func (m *Manager) evictIdle() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*sessionState
	for id, state := range m.sessions {
		if state.idleSince(cutoff) {
			delete(m.sessions, id)
			stale = append(stale, state)
		}
	}
	m.mu.Unlock()

	for _, state := range stale {
		state.invalidate()
	}
	return len(stale)
}
