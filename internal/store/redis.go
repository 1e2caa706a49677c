package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classstock/trading-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache for the valuation hot path: student accounts and
// class configs are read on every dashboard refresh and ranking
// request. Writes go to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateClass(ctx context.Context, c *model.ClassConfig) error {
	if err := s.primary.CreateClass(ctx, c); err != nil {
		return err
	}
	s.cacheClass(ctx, c)
	return nil
}

func (s *CachedStore) UpdateClass(ctx context.Context, c *model.ClassConfig) error {
	if err := s.primary.UpdateClass(ctx, c); err != nil {
		return err
	}
	s.rdb.Del(ctx, classKey(c.ID))
	return nil
}

func (s *CachedStore) CreateStudent(ctx context.Context, a *model.StudentAccount) error {
	return s.primary.CreateStudent(ctx, a)
}

func (s *CachedStore) UpdateStudent(ctx context.Context, a *model.StudentAccount) error {
	if err := s.primary.UpdateStudent(ctx, a); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, studentKey(a.ID))
	return nil
}

func (s *CachedStore) DeleteStudent(ctx context.Context, id string) error {
	if err := s.primary.DeleteStudent(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, studentKey(id))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetClass(ctx context.Context, id string) (*model.ClassConfig, error) {
	data, err := s.rdb.Get(ctx, classKey(id)).Bytes()
	if err == nil {
		var c model.ClassConfig
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetClass(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheClass(ctx, c)
	return c, nil
}

func (s *CachedStore) GetStudent(ctx context.Context, id string) (*model.StudentAccount, error) {
	data, err := s.rdb.Get(ctx, studentKey(id)).Bytes()
	if err == nil {
		var a model.StudentAccount
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, studentKey(id), data, s.ttl)
	}
	return a, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListStudentsByClass(ctx context.Context, classID string) ([]model.StudentAccount, error) {
	return s.primary.ListStudentsByClass(ctx, classID)
}

func (s *CachedStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	return s.primary.InsertTransaction(ctx, tx)
}

func (s *CachedStore) TransactionsByStudent(ctx context.Context, studentID string) ([]model.Transaction, error) {
	return s.primary.TransactionsByStudent(ctx, studentID)
}

func (s *CachedStore) DeleteTransactionsByStudent(ctx context.Context, studentID string) error {
	return s.primary.DeleteTransactionsByStudent(ctx, studentID)
}

func (s *CachedStore) LoadClockState(ctx context.Context) (string, error) {
	return s.primary.LoadClockState(ctx)
}

func (s *CachedStore) SaveClockState(ctx context.Context, date string) error {
	return s.primary.SaveClockState(ctx, date)
}

// --- Cache helpers ---

func (s *CachedStore) cacheClass(ctx context.Context, c *model.ClassConfig) {
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, classKey(c.ID), data, s.ttl)
	}
}

func classKey(id string) string   { return fmt.Sprintf("class:%s", id) }
func studentKey(id string) string { return fmt.Sprintf("student:%s", id) }
