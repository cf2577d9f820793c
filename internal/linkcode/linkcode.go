// Package linkcode issues and redeems the short codes that link a chat user
// to the web dashboard.
package linkcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
)

const (
	// Alphabet omits 0, 1, I and O, which are easy to confuse.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// Length is the number of characters in a code.
	Length = 6

	// DefaultTTL is how long a code stays redeemable.
	DefaultTTL = 10 * time.Minute

	issueAttempts = 3
)

// Service issues and redeems link codes.
type Service struct {
	repo store.LinkCodeRepository
	ttl  time.Duration
	now  func() time.Time
}

// New creates a Service. A zero ttl uses DefaultTTL.
func New(repo store.LinkCodeRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, ttl: ttl, now: time.Now}
}

// TTL returns the validity of issued codes.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue creates a new code for userKey, invalidating the user's earlier
// unused codes.
func (s *Service) Issue(ctx context.Context, userKey string) (string, error) {
	var lastErr error
	for i := 0; i < issueAttempts; i++ {
		code, err := Generate()
		if err != nil {
			return "", fmt.Errorf("Issue: %w", err)
		}
		err = s.repo.ReplaceLinkCode(ctx, userKey, code, s.now().Add(s.ttl))
		if err == nil {
			return code, nil
		}
		// A collision with a used code fails the insert; try another code.
		lastErr = err
	}
	return "", fmt.Errorf("Issue: %w", lastErr)
}

// Redeem consumes code and returns the user it belongs to.
func (s *Service) Redeem(ctx context.Context, code string) (string, error) {
	code = Normalize(code)
	if len(code) != Length {
		return "", fmt.Errorf("Redeem: %w", domain.ErrLinkCodeInvalid)
	}
	userKey, err := s.repo.RedeemLinkCode(ctx, code, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrLinkCodeInvalid) {
			return "", err
		}
		return "", fmt.Errorf("Redeem: %w", err)
	}
	return userKey, nil
}

// Generate returns a random code drawn from Alphabet.
func Generate() (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	b := make([]byte, Length)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("Generate: read random: %w", err)
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b), nil
}

// Normalize upper-cases a user-typed code and strips spaces and dashes.
func Normalize(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == ' ' || c == '-':
			continue
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
