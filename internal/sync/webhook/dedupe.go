package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	gosync "sync"
	"time"
)

// DedupeStore guards against the platform's at-least-once delivery. A key is
// marked the first time an event is applied; a second delivery with the same
// key acknowledges without reapplying.
type DedupeStore interface {
	// MarkProcessed records the key. Returns false if it was already
	// present (duplicate delivery).
	MarkProcessed(ctx context.Context, key string, seenAt time.Time) (bool, error)
}

// DedupeKey builds the deduplication key from (topic, remote entity id,
// delivery id or content hash).
func DedupeKey(topic, remoteID, deliveryID string, body []byte) string {
	discriminator := deliveryID
	if discriminator == "" {
		sum := sha256.Sum256(body)
		discriminator = hex.EncodeToString(sum[:])
	}
	return topic + "|" + remoteID + "|" + discriminator
}

// MemoryDedupeStore is the in-memory implementation used in tests.
type MemoryDedupeStore struct {
	mu   gosync.Mutex
	seen map[string]time.Time
}

// NewMemoryDedupeStore creates an empty store.
func NewMemoryDedupeStore() *MemoryDedupeStore {
	return &MemoryDedupeStore{seen: make(map[string]time.Time)}
}

// MarkProcessed implements DedupeStore.
func (s *MemoryDedupeStore) MarkProcessed(_ context.Context, key string, seenAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = seenAt
	return true, nil
}
