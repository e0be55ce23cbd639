package risk

import (
	"context"
	"sync"
	"time"
)

// BudgetStore tracks the worst-case loss reserved against each user's daily
// loss budget. Reserve is atomic: two concurrent orders can never both fit
// into the same remaining headroom.
type BudgetStore interface {
	// Reserve atomically adds amount to the user's reservations for the
	// day if the total stays within limit. It reports whether the
	// reservation was taken.
	Reserve(ctx context.Context, userID, day string, amount, limit float64) (bool, error)

	// Release returns a previously reserved amount, for orders that fail
	// before spending their budget.
	Release(ctx context.Context, userID, day string, amount float64) error

	// Reserved returns the user's total reserved amount for the day.
	Reserved(ctx context.Context, userID, day string) (float64, error)

	Close() error
}

// BudgetDay formats the UTC calendar day used to key daily budgets.
// Budgets reset at midnight UTC.
func BudgetDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MemoryBudgetStore is a process-local budget store. Suitable for a single
// engine instance; multi-instance deployments use the Redis store.
type MemoryBudgetStore struct {
	mu       sync.Mutex
	reserved map[string]float64
}

// NewMemoryBudgetStore creates an empty in-memory budget store.
func NewMemoryBudgetStore() *MemoryBudgetStore {
	return &MemoryBudgetStore{reserved: make(map[string]float64)}
}

func budgetKey(userID, day string) string {
	return userID + "|" + day
}

// Reserve implements BudgetStore.
func (s *MemoryBudgetStore) Reserve(_ context.Context, userID, day string, amount, limit float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := budgetKey(userID, day)
	if s.reserved[key]+amount > limit {
		return false, nil
	}
	s.reserved[key] += amount
	return true, nil
}

// Release implements BudgetStore.
func (s *MemoryBudgetStore) Release(_ context.Context, userID, day string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := budgetKey(userID, day)
	s.reserved[key] -= amount
	if s.reserved[key] < 0 {
		s.reserved[key] = 0
	}
	return nil
}

// Reserved implements BudgetStore.
func (s *MemoryBudgetStore) Reserved(_ context.Context, userID, day string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved[budgetKey(userID, day)], nil
}

// Close implements BudgetStore.
func (s *MemoryBudgetStore) Close() error {
	return nil
}
