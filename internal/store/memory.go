package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/classstock/trading-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and demo deployments without a database. Not suitable for production
// (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	classes    map[string]*model.ClassConfig
	students   map[string]*model.StudentAccount
	enrollment []string // student ids in enrollment order
	ledger     []model.Transaction
	clockState string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes:  make(map[string]*model.ClassConfig),
		students: make(map[string]*model.StudentAccount),
	}
}

func (s *MemoryStore) CreateClass(_ context.Context, c *model.ClassConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.classes[c.ID]; ok {
		return fmt.Errorf("class %s already exists", c.ID)
	}
	cp := copyClass(c)
	s.classes[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClass(_ context.Context, id string) (*model.ClassConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.classes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, id)
	}
	cp := copyClass(c)
	return &cp, nil
}

func (s *MemoryStore) UpdateClass(_ context.Context, c *model.ClassConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.classes[c.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrClassNotFound, c.ID)
	}
	cp := copyClass(c)
	s.classes[c.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateStudent(_ context.Context, a *model.StudentAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.students {
		if existing.ClassID == a.ClassID && existing.Nickname == a.Nickname {
			return fmt.Errorf("%w: %s", ErrNicknameTaken, a.Nickname)
		}
	}
	cp := copyAccount(a)
	s.students[a.ID] = &cp
	s.enrollment = append(s.enrollment, a.ID)
	return nil
}

func (s *MemoryStore) GetStudent(_ context.Context, id string) (*model.StudentAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.students[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	cp := copyAccount(a)
	return &cp, nil
}

func (s *MemoryStore) ListStudentsByClass(_ context.Context, classID string) ([]model.StudentAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []model.StudentAccount
	for _, id := range s.enrollment {
		a, ok := s.students[id]
		if !ok || a.ClassID != classID {
			continue
		}
		accounts = append(accounts, copyAccount(a))
	}
	return accounts, nil
}

func (s *MemoryStore) UpdateStudent(_ context.Context, a *model.StudentAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[a.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, a.ID)
	}
	cp := copyAccount(a)
	s.students[a.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteStudent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	delete(s.students, id)
	for i, sid := range s.enrollment {
		if sid == id {
			s.enrollment = append(s.enrollment[:i], s.enrollment[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) InsertTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *tx)
	return nil
}

func (s *MemoryStore) TransactionsByStudent(_ context.Context, studentID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, tx := range s.ledger {
		if tx.StudentID == studentID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *MemoryStore) DeleteTransactionsByStudent(_ context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.ledger[:0]
	for _, tx := range s.ledger {
		if tx.StudentID != studentID {
			kept = append(kept, tx)
		}
	}
	s.ledger = kept
	return nil
}

func (s *MemoryStore) LoadClockState(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clockState, nil
}

func (s *MemoryStore) SaveClockState(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clockState = date
	return nil
}

// copyClass and copyAccount deep-copy to keep callers from mutating
// stored state through shared slices/maps.

func copyClass(c *model.ClassConfig) model.ClassConfig {
	cp := *c
	cp.AllowedStocks = append([]string(nil), c.AllowedStocks...)
	return cp
}

func copyAccount(a *model.StudentAccount) model.StudentAccount {
	cp := *a
	cp.Holdings = make(map[string]model.Holding, len(a.Holdings))
	for code, h := range a.Holdings {
		cp.Holdings[code] = h
	}
	return cp
}
