package kvstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// KV is the key-value capability the clients persist through: token caches,
// the reservation mirror, and the full store-list snapshot. Slots are
// single-writer-assumed, last writer wins. Implementations must be safe for
// concurrent use.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys. SessionKey derives the per-session variant for state
// that must not leak between shopper sessions.
const (
	KeyOriginalStores = "originalStores"
	KeyAuthToken      = "ts_manager_auth_token"
	KeyAuthExpiry     = "ts_manager_auth_exp"
	KeyReservation    = "ts_manager_res"
)

// SessionKey scopes a key to one shopper session.
func SessionKey(key, usid string) string {
	if usid == "" {
		return key
	}
	return key + ":" + usid
}

// Memory is an in-process KV, used in tests and single-node deployments.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
