package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerStore remembers short-lived per-session flags, such as "the mission
// link was opened", for as long as the browser session lives.
type MarkerStore interface {
	Mark(ctx context.Context, sid, name string, ttl time.Duration) error
	Marked(ctx context.Context, sid, name string) (bool, error)
	Clear(ctx context.Context, sid, name string) error
}

func markerKey(sid, name string) string {
	return "marker:" + sid + ":" + name
}

// RedisMarkers stores markers as Redis keys with a TTL.
type RedisMarkers struct {
	client *redis.Client
}

func NewRedisMarkers(client *redis.Client) *RedisMarkers {
	return &RedisMarkers{client: client}
}

func (m *RedisMarkers) Mark(ctx context.Context, sid, name string, ttl time.Duration) error {
	return m.client.Set(ctx, markerKey(sid, name), "1", ttl).Err()
}

func (m *RedisMarkers) Marked(ctx context.Context, sid, name string) (bool, error) {
	exists, err := m.client.Exists(ctx, markerKey(sid, name)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (m *RedisMarkers) Clear(ctx context.Context, sid, name string) error {
	return m.client.Del(ctx, markerKey(sid, name)).Err()
}

// MemoryMarkers is used when Redis is not configured. Markers do not survive
// a restart and are not shared between gateway instances.
type MemoryMarkers struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{expires: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryMarkers) Mark(ctx context.Context, sid, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[markerKey(sid, name)] = m.now().Add(ttl)
	return nil
}

func (m *MemoryMarkers) Marked(ctx context.Context, sid, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := markerKey(sid, name)
	exp, ok := m.expires[k]
	if !ok {
		return false, nil
	}
	if m.now().After(exp) {
		delete(m.expires, k)
		return false, nil
	}
	return true, nil
}

func (m *MemoryMarkers) Clear(ctx context.Context, sid, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, markerKey(sid, name))
	return nil
}
