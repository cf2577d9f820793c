// Package memstore is an in-memory store.Repository for tests and for
// running the bot without a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type linkCode struct {
	userKey   string
	expiresAt time.Time
	used      bool
}

// Store holds everything in maps guarded by one RWMutex. Returned values are
// copies.
type Store struct {
	mu       sync.RWMutex
	expenses []domain.Expense
	users    map[string]domain.User
	codes    map[string]linkCode
	now      func() time.Time
	failNext error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users: make(map[string]domain.User),
		codes: make(map[string]linkCode),
		now:   time.Now,
	}
}

// WithClock replaces the clock used for CreatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// FailNext makes the next mutating call return err wrapped as a persistence
// failure.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// takeFailure must be called with the write lock held.
func (s *Store) takeFailure(op string) error {
	if s.failNext == nil {
		return nil
	}
	err := s.failNext
	s.failNext = nil
	return store.Wrap(op, err)
}

func naturalKeyEqual(e domain.Expense, userKey, merchant string, amount decimal.Decimal, date civil.Date) bool {
	return e.UserKey == userKey && e.Merchant == merchant && e.Amount.Equal(amount) && e.Date == date
}

// InsertExpense implements store.ExpenseRepository.
func (s *Store) InsertExpense(_ context.Context, e domain.Expense) (domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("InsertExpense"); err != nil {
		return domain.Expense{}, err
	}
	for _, existing := range s.expenses {
		if naturalKeyEqual(existing, e.UserKey, e.Merchant, e.Amount, e.Date) {
			return domain.Expense{}, store.Duplicate("InsertExpense")
		}
	}

	e.ID = uuid.NewString()
	e.CreatedAt = s.now().UTC()
	s.expenses = append(s.expenses, e)
	return e, nil
}

// FindDuplicate implements store.ExpenseRepository.
func (s *Store) FindDuplicate(_ context.Context, userKey, merchant string, amount decimal.Decimal, date civil.Date) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.expenses {
		if naturalKeyEqual(e, userKey, merchant, amount, date) {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

// DeleteExpense implements store.ExpenseRepository.
func (s *Store) DeleteExpense(_ context.Context, id, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("DeleteExpense"); err != nil {
		return err
	}
	for i, e := range s.expenses {
		if e.ID == id && e.UserKey == userKey {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("DeleteExpense: %w", domain.ErrNotFound)
}

// newestFirst returns the user's expenses sorted by CreatedAt descending.
// Insertion order breaks ties. Caller must hold the lock.
func (s *Store) newestFirst(userKey string) []domain.Expense {
	var out []domain.Expense
	for i := len(s.expenses) - 1; i >= 0; i-- {
		if s.expenses[i].UserKey == userKey {
			out = append(out, s.expenses[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FindLastExpense implements store.ExpenseRepository.
func (s *Store) FindLastExpense(_ context.Context, userKey string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.newestFirst(userKey)
	if len(all) == 0 {
		return nil, nil
	}
	e := all[0]
	return &e, nil
}

// FindExpensesInRange implements store.ExpenseRepository.
func (s *Store) FindExpensesInRange(_ context.Context, userKey string, start, end civil.Date) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Expense
	for _, e := range s.newestFirst(userKey) {
		if !e.Date.Before(start) && !e.Date.After(end) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// RecentCurrencies implements store.ExpenseRepository.
func (s *Store) RecentCurrencies(_ context.Context, userKey string, limit int) ([]domain.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Currency
	for _, e := range s.newestFirst(userKey) {
		if len(out) == limit {
			break
		}
		out = append(out, e.Currency)
	}
	return out, nil
}

// UpdateExpenseCurrency implements store.ExpenseRepository.
func (s *Store) UpdateExpenseCurrency(_ context.Context, id, userKey string, currency domain.Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("UpdateExpenseCurrency"); err != nil {
		return err
	}
	for i := range s.expenses {
		if s.expenses[i].ID == id && s.expenses[i].UserKey == userKey {
			s.expenses[i].Currency = currency
			return nil
		}
	}
	return fmt.Errorf("UpdateExpenseCurrency: %w", domain.ErrNotFound)
}

// GetUser implements store.UserRepository.
func (s *Store) GetUser(_ context.Context, key string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[key]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// CreateUser implements store.UserRepository.
func (s *Store) CreateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("CreateUser"); err != nil {
		return err
	}
	if _, exists := s.users[u.Key]; exists {
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	u.NotificationEmail = strings.ToLower(strings.TrimSpace(u.NotificationEmail))
	s.users[u.Key] = u
	return nil
}

// FindUserByNotificationEmail implements store.UserRepository.
func (s *Store) FindUserByNotificationEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.User
	for _, u := range s.users {
		if u.NotificationEmail != email {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) {
			u := u
			found = &u
		}
	}
	return found, nil
}

// SetNotificationEmail implements store.UserRepository.
func (s *Store) SetNotificationEmail(_ context.Context, key, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("SetNotificationEmail"); err != nil {
		return err
	}
	u, ok := s.users[key]
	if !ok {
		return fmt.Errorf("SetNotificationEmail: %w", domain.ErrNotFound)
	}
	u.NotificationEmail = strings.ToLower(strings.TrimSpace(email))
	s.users[key] = u
	return nil
}

// ReplaceLinkCode implements store.LinkCodeRepository.
func (s *Store) ReplaceLinkCode(_ context.Context, userKey, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("ReplaceLinkCode"); err != nil {
		return err
	}
	for c, lc := range s.codes {
		if lc.userKey == userKey && !lc.used {
			delete(s.codes, c)
		}
	}
	if _, taken := s.codes[code]; taken {
		return store.Wrap("ReplaceLinkCode", fmt.Errorf("code %s already issued", code))
	}
	s.codes[code] = linkCode{userKey: userKey, expiresAt: expiresAt}
	return nil
}

// RedeemLinkCode implements store.LinkCodeRepository.
func (s *Store) RedeemLinkCode(_ context.Context, code string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, ok := s.codes[code]
	if !ok || lc.used || !now.Before(lc.expiresAt) {
		return "", fmt.Errorf("RedeemLinkCode: %w", domain.ErrLinkCodeInvalid)
	}
	lc.used = true
	s.codes[code] = lc
	return lc.userKey, nil
}

// Close implements store.Repository.
func (s *Store) Close() error { return nil }

var _ store.Repository = (*Store)(nil)
