// Package identity maps channel-specific sender ids to users.
package identity

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/rs/zerolog"
)

// DefaultAlias is the local part of the bank forwarding address.
const DefaultAlias = "gastos"

// Resolver resolves and creates users.
type Resolver struct {
	users       store.UserRepository
	alias       string
	emailDomain string
	aliasRe     *regexp.Regexp
	log         zerolog.Logger
}

// New creates a Resolver. alias and emailDomain build the per-user bank
// forwarding address alias+<id>@emailDomain.
func New(users store.UserRepository, alias, emailDomain string, log zerolog.Logger) *Resolver {
	if alias == "" {
		alias = DefaultAlias
	}
	return &Resolver{
		users:       users,
		alias:       alias,
		emailDomain: emailDomain,
		aliasRe:     regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(alias) + `\+(\d+)@`),
		log:         log,
	}
}

// Resolve returns the user for a channel sender, creating it on first
// contact. Concurrent first contacts converge on one row because CreateUser
// ignores existing keys and the user is read back afterwards.
func (r *Resolver) Resolve(ctx context.Context, ch domain.Channel, rawID, displayName, handle string) (domain.User, error) {
	if rawID == "" {
		return domain.User{}, fmt.Errorf("Resolve: empty sender id")
	}
	key := domain.UserKey(ch, rawID)

	u, err := r.users.GetUser(ctx, key)
	if err != nil {
		return domain.User{}, fmt.Errorf("Resolve: %w", err)
	}
	if u != nil {
		return *u, nil
	}

	if displayName == "" {
		displayName = "Usuario"
	}
	if err := r.users.CreateUser(ctx, domain.User{Key: key, DisplayName: displayName, Handle: handle}); err != nil {
		return domain.User{}, fmt.Errorf("Resolve: %w", err)
	}

	u, err = r.users.GetUser(ctx, key)
	if err != nil {
		return domain.User{}, fmt.Errorf("Resolve: %w", err)
	}
	if u == nil {
		return domain.User{}, fmt.Errorf("Resolve: user %s missing after create: %w", key, domain.ErrPersistence)
	}

	r.log.Info().Str("user", key).Msg("Registered new user")
	return *u, nil
}

// ResolveEmailRecipient finds the user a forwarded bank email belongs to.
// The alias+<telegram id>@ recipient wins; otherwise the sender address is
// matched against registered notification emails. Users are never created
// here.
func (r *Resolver) ResolveEmailRecipient(ctx context.Context, recipient, sender string) (domain.User, error) {
	if id, ok := r.telegramIDFromRecipient(recipient); ok {
		u, err := r.users.GetUser(ctx, domain.UserKey(domain.ChannelTelegram, id))
		if err != nil {
			return domain.User{}, fmt.Errorf("ResolveEmailRecipient: %w", err)
		}
		if u != nil {
			return *u, nil
		}
		r.log.Warn().Str("recipient", recipient).Msg("Alias recipient does not match a user")
	}

	if addr := Address(sender); addr != "" {
		u, err := r.users.FindUserByNotificationEmail(ctx, addr)
		if err != nil {
			return domain.User{}, fmt.Errorf("ResolveEmailRecipient: %w", err)
		}
		if u != nil {
			return *u, nil
		}
	}

	return domain.User{}, fmt.Errorf("ResolveEmailRecipient: %s: %w", recipient, domain.ErrNoMatchingUser)
}

func (r *Resolver) telegramIDFromRecipient(recipient string) (string, bool) {
	// Mailgun may pass several recipients separated by commas.
	for _, part := range strings.Split(recipient, ",") {
		addr := Address(part)
		if m := r.aliasRe.FindStringSubmatch(addr); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// BankAddress returns the forwarding address for a user, or "" when the user
// is not on Telegram or no email domain is configured.
func (r *Resolver) BankAddress(u domain.User) string {
	ch, id, ok := domain.SplitUserKey(u.Key)
	if !ok || ch != domain.ChannelTelegram || r.emailDomain == "" {
		return ""
	}
	return r.alias + "+" + id + "@" + r.emailDomain
}

// RegisterNotificationEmail stores the address the user's bank sends
// notifications from.
func (r *Resolver) RegisterNotificationEmail(ctx context.Context, userKey, email string) error {
	addr := Address(email)
	if addr == "" {
		return fmt.Errorf("RegisterNotificationEmail: invalid email %q", email)
	}
	if err := r.users.SetNotificationEmail(ctx, userKey, addr); err != nil {
		return fmt.Errorf("RegisterNotificationEmail: %w", err)
	}
	return nil
}

// Address extracts the lower-cased address from "Name <addr>" or a bare
// address. It returns "" when s holds no address.
func Address(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if a, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(a.Address)
	}
	if strings.Contains(s, "@") && !strings.ContainsAny(s, " <>") {
		return strings.ToLower(s)
	}
	return ""
}
