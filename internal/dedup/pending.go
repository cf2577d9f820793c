// Package dedup tracks duplicate expenses awaiting confirmation and inbound
// messages that were already handled.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/dvloznov/expense-bot/internal/ttlcache"
	"github.com/rs/zerolog"
)

// DefaultPendingTTL is how long a staged duplicate waits for "si".
const DefaultPendingTTL = 5 * time.Minute

// lockStripes is the number of mutexes shared by all users.
const lockStripes = 64

// Pending is the per-user duplicate confirmation state machine. A user is
// either clean or holds exactly one PendingDuplicate.
type Pending struct {
	cache ttlcache.Cache[string, domain.PendingDuplicate]
	repo  store.ExpenseRepository
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger

	// Users hash onto a fixed set of mutexes, so memory does not grow with
	// the number of users.
	locks [lockStripes]sync.Mutex
}

// PendingOption configures Pending.
type PendingOption func(*Pending)

// WithClock sets the clock used for ExpiresAt. It should match the cache's
// clock.
func WithClock(now func() time.Time) PendingOption {
	return func(p *Pending) { p.now = now }
}

// NewPending creates the state machine. A zero ttl uses DefaultPendingTTL.
func NewPending(cache ttlcache.Cache[string, domain.PendingDuplicate], repo store.ExpenseRepository, ttl time.Duration, log zerolog.Logger, opts ...PendingOption) *Pending {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	p := &Pending{
		cache: cache,
		repo:  repo,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stage records that c collided with existingID, replacing any earlier
// pending entry of the user.
func (p *Pending) Stage(userKey, existingID string, c domain.Candidate) domain.PendingDuplicate {
	pd := domain.PendingDuplicate{
		ExistingID: existingID,
		Candidate:  c,
		ExpiresAt:  p.now().Add(p.ttl),
	}
	p.cache.Set(userKey, pd, p.ttl)
	p.log.Debug().Str("user", userKey).Str("existing_id", existingID).Msg("Staged duplicate")
	return pd
}

// Get returns the user's live pending entry.
func (p *Pending) Get(userKey string) (domain.PendingDuplicate, bool) {
	return p.cache.Get(userKey)
}

// Has reports whether the user has a live pending entry.
func (p *Pending) Has(userKey string) bool {
	_, ok := p.cache.Get(userKey)
	return ok
}

// Cancel drops the user's pending entry. It reports whether one existed.
func (p *Pending) Cancel(userKey string) bool {
	lock := p.userLock(userKey)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := p.cache.Get(userKey); !ok {
		return false
	}
	p.cache.Delete(userKey)
	return true
}

// Confirm replaces the existing expense with the staged candidate: delete
// the old row, insert the new one, then clear the entry. It returns
// (nil, false, nil) when there is nothing pending. On a storage failure the
// entry is cleared as well, and the error matches domain.ErrPersistence.
func (p *Pending) Confirm(ctx context.Context, userKey string) (*domain.Expense, bool, error) {
	lock := p.userLock(userKey)
	lock.Lock()
	defer lock.Unlock()

	pd, ok := p.cache.Get(userKey)
	if !ok {
		return nil, false, nil
	}
	defer p.cache.Delete(userKey)

	// The old row may already be gone (e.g. /borrar in between); the
	// replacement is still inserted.
	if err := p.repo.DeleteExpense(ctx, pd.ExistingID, userKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, true, persistence("Confirm: delete existing", err)
	}

	saved, err := p.repo.InsertExpense(ctx, domain.NewExpense(userKey, pd.Candidate))
	if err != nil {
		return nil, true, persistence("Confirm: insert replacement", err)
	}

	p.log.Info().Str("user", userKey).Str("replaced_id", pd.ExistingID).Str("expense_id", saved.ID).Msg("Replaced duplicate expense")
	return &saved, true, nil
}

func (p *Pending) userLock(userKey string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userKey))
	return &p.locks[h.Sum32()%lockStripes]
}

func persistence(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
