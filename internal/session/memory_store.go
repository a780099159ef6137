package session

import (
	"context"
	"log"
	"sync"
	"time"

	"sessionkeys/internal/constants"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type MemoryStore struct {
	entries sync.Map
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{now: time.Now, stop: make(chan struct{})}
	go store.cleanupLoop()
	return store
}

func (st *MemoryStore) Save(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = st.now().Add(ttl)
	}
	st.entries.Store(key, entry)
	log.Printf("💾 Saving record to memory: %s", key)
	return nil
}

func (st *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := st.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := val.(memoryEntry)
	if entry.expired(st.now()) {
		st.entries.Delete(key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (st *MemoryStore) Delete(_ context.Context, key string) error {
	st.entries.Delete(key)
	return nil
}

func (st *MemoryStore) Close() error {
	st.once.Do(func() { close(st.stop) })
	return nil
}

func (st *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(constants.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			st.cleanupExpired()
		}
	}
}

func (st *MemoryStore) cleanupExpired() {
	now := st.now()
	st.entries.Range(func(key, value any) bool {
		if value.(memoryEntry).expired(now) {
			st.entries.Delete(key)
			log.Printf("🗑 Expired record cleaned up: %s", key)
		}
		return true
	})
}
