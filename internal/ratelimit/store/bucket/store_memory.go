package bucket

import (
	"context"
	"sync"
	"time"

	"mtoken/internal/ratelimit/models"
)

// InMemoryBucketStore counts requests in fixed windows held in process
// memory. It backs single-instance deployments and the fallback used while
// Redis is unreachable.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// New creates an empty in-memory store.
func New() *InMemoryBucketStore {
	return &InMemoryBucketStore{
		buckets: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts one request against key and reports whether it fits in limit.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, period time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.buckets[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		s.buckets[key] = w
	}
	w.count++
	s.evictExpired(now)

	return result(w.count, limit, w.resetAt, now), nil
}

// Reset clears the counter for key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// Len returns the number of live windows.
func (s *InMemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// evictExpired drops stale windows once the map grows. Must hold s.mu.
func (s *InMemoryBucketStore) evictExpired(now time.Time) {
	if len(s.buckets) < 1024 {
		return
	}
	for k, w := range s.buckets {
		if !now.Before(w.resetAt) {
			delete(s.buckets, k)
		}
	}
}

// result converts a window count into a Result. Shared by both stores.
func result(count, limit int, resetAt, now time.Time) *models.Result {
	res := &models.Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = max(int(resetAt.Sub(now).Round(time.Second).Seconds()), 1)
	}
	return res
}
