package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/homeopathy-case-engine/internal/domain"
)

// Stats reports hit and miss counters per tier.
type Stats struct {
	MemoryHits    int64 `json:"memory_hits"`
	MemoryMisses  int64 `json:"memory_misses"`
	RedisHits     int64 `json:"redis_hits"`
	RedisMisses   int64 `json:"redis_misses"`
	RedisErrors   int64 `json:"redis_errors"`
	StoreLookups  int64 `json:"store_lookups"`
	TotalRequests int64 `json:"total_requests"`
}

// ReferenceStore decorates a domain.ReferenceStore with caching for the
// single-record lookups hit on every engine run. Remedies and symptoms go
// through memory, then Redis, then the backing store. Listings and searches
// pass straight through.
type ReferenceStore struct {
	next     domain.ReferenceStore
	remedies *MemoryCache[*domain.Remedy]
	symptoms *MemoryCache[*domain.Symptom]
	redis    *RedisCache
	breaker  *gobreaker.CircuitBreaker
	ttl      time.Duration
	logger   *logrus.Logger
	hooks    []func()

	stats   Stats
	statsMu sync.RWMutex
}

// NewReferenceStore wraps next. A nil redis disables the Redis tier.
func NewReferenceStore(next domain.ReferenceStore, cfg domain.CacheConfig, redis *RedisCache, logger *logrus.Logger) *ReferenceStore {
	return &ReferenceStore{
		next:     next,
		remedies: NewMemoryCache[*domain.Remedy](cfg.MemoryMaxItems, cfg.MemoryTTL),
		symptoms: NewMemoryCache[*domain.Symptom](cfg.MemoryMaxItems, cfg.MemoryTTL),
		redis:    redis,
		breaker:  newBreaker("reference-redis", DefaultBreakerSettings(), logger),
		ttl:      cfg.DefaultTTL,
		logger:   logger,
	}
}

// WithBreakerSettings replaces the Redis circuit breaker.
func (s *ReferenceStore) WithBreakerSettings(settings BreakerSettings) *ReferenceStore {
	s.breaker = newBreaker("reference-redis", settings, s.logger)
	return s
}

// RemedyByID implements domain.ReferenceStore.
func (s *ReferenceStore) RemedyByID(ctx context.Context, id string) (*domain.Remedy, error) {
	return lookup(ctx, s, s.remedies, "remedy:"+id, func() (*domain.Remedy, error) {
		return s.next.RemedyByID(ctx, id)
	})
}

// SymptomByCode implements domain.ReferenceStore.
func (s *ReferenceStore) SymptomByCode(ctx context.Context, code string) (*domain.Symptom, error) {
	return lookup(ctx, s, s.symptoms, "symptom:"+strings.ToUpper(code), func() (*domain.Symptom, error) {
		return s.next.SymptomByCode(ctx, code)
	})
}

// lookup resolves key through the memory tier, the Redis tier and finally
// load. Missing records are not cached.
func lookup[T any](ctx context.Context, s *ReferenceStore, mem *MemoryCache[*T], key string, load func() (*T, error)) (*T, error) {
	s.record(func(st *Stats) { st.TotalRequests++ })

	if v, ok := mem.Get(key); ok {
		s.record(func(st *Stats) { st.MemoryHits++ })
		return v, nil
	}
	s.record(func(st *Stats) { st.MemoryMisses++ })

	if s.redis != nil {
		var v T
		found, err := s.redisGet(ctx, key, &v)
		switch {
		case err != nil:
			s.record(func(st *Stats) { st.RedisErrors++ })
		case found:
			s.record(func(st *Stats) { st.RedisHits++ })
			mem.Set(key, &v)
			return &v, nil
		default:
			s.record(func(st *Stats) { st.RedisMisses++ })
		}
	}

	s.record(func(st *Stats) { st.StoreLookups++ })
	v, err := load()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	mem.Set(key, v)
	if s.redis != nil {
		s.redisSet(ctx, key, v)
	}
	return v, nil
}

func (s *ReferenceStore) redisGet(ctx context.Context, key string, dest any) (bool, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.redis.Get(ctx, key, dest)
	})
	if err != nil {
		s.logRedisError("get", key, err)
		return false, err
	}
	return res.(bool), nil
}

func (s *ReferenceStore) redisSet(ctx context.Context, key string, value any) {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.redis.Set(ctx, key, value, s.ttl)
	})
	if err != nil {
		s.logRedisError("set", key, err)
	}
}

func (s *ReferenceStore) logRedisError(op, key string, err error) {
	entry := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"cache_key": key,
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		entry.Debug("Redis tier unavailable, circuit open")
		return
	}
	entry.WithError(err).Warn("Redis cache operation failed")
}

func (s *ReferenceStore) record(fn func(*Stats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

// GetStats returns a snapshot of the cache counters.
func (s *ReferenceStore) GetStats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// BreakerState reports the Redis circuit breaker state.
func (s *ReferenceStore) BreakerState() string {
	return s.breaker.State().String()
}

// OnInvalidate registers fn to run whenever the cache is invalidated, so
// memos derived from reference data are dropped with it.
func (s *ReferenceStore) OnInvalidate(fn func()) {
	s.hooks = append(s.hooks, fn)
}

// Invalidate clears both tiers. Call it after reference data is re-imported.
func (s *ReferenceStore) Invalidate(ctx context.Context) error {
	s.remedies.Purge()
	s.symptoms.Purge()
	for _, fn := range s.hooks {
		fn()
	}
	if s.redis == nil {
		return nil
	}
	for _, pattern := range []string{"remedy:*", "symptom:*"} {
		if err := s.redis.InvalidatePattern(ctx, pattern); err != nil {
			return fmt.Errorf("failed to invalidate redis cache: %w", err)
		}
	}
	return nil
}

func (s *ReferenceStore) SymptomByName(ctx context.Context, name string, category domain.Category, modality string) (*domain.Symptom, error) {
	return s.next.SymptomByName(ctx, name, category, modality)
}

func (s *ReferenceStore) SymptomBySynonym(ctx context.Context, text string, category domain.Category, modality string) (*domain.Symptom, error) {
	return s.next.SymptomBySynonym(ctx, text, category, modality)
}

func (s *ReferenceStore) SearchSymptoms(ctx context.Context, text string, category domain.Category, modality string, limit int) ([]domain.Symptom, error) {
	return s.next.SearchSymptoms(ctx, text, category, modality, limit)
}

func (s *ReferenceStore) FindRubrics(ctx context.Context, q domain.RubricQuery) ([]domain.Rubric, error) {
	return s.next.FindRubrics(ctx, q)
}

func (s *ReferenceStore) RubricRemediesFor(ctx context.Context, rubricIDs []string) ([]domain.RubricRemedy, error) {
	return s.next.RubricRemediesFor(ctx, rubricIDs)
}

func (s *ReferenceStore) ListRemedies(ctx context.Context, f domain.RemedyFilter) ([]domain.Remedy, int, error) {
	return s.next.ListRemedies(ctx, f)
}

func (s *ReferenceStore) ListRubrics(ctx context.Context, f domain.RubricFilter) ([]domain.Rubric, int, error) {
	return s.next.ListRubrics(ctx, f)
}

var _ domain.ReferenceStore = (*ReferenceStore)(nil)
