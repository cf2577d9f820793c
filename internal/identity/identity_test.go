package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store/memstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) (*Resolver, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	return New(s, "", "gastos.example.com", zerolog.Nop()), s
}

func TestResolve_CreatesOnFirstContact(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	u, err := r.Resolve(ctx, domain.ChannelTelegram, "42", "Ana", "ana")
	require.NoError(t, err)
	assert.Equal(t, "telegram:42", u.Key)
	assert.Equal(t, "Ana", u.DisplayName)

	again, err := r.Resolve(ctx, domain.ChannelTelegram, "42", "Changed", "")
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.DisplayName)

	wa, err := r.Resolve(ctx, domain.ChannelWhatsApp, "51999888777", "", "")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:51999888777", wa.Key)
	assert.Equal(t, "Usuario", wa.DisplayName)
}

func TestResolve_Concurrent(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	keys := make([]string, 8)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := r.Resolve(ctx, domain.ChannelTelegram, "7", "Ana", "")
			assert.NoError(t, err)
			keys[i] = u.Key
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, "telegram:7", k)
	}
}

func TestResolve_EmptyID(t *testing.T) {
	r, _ := newResolver(t)
	_, err := r.Resolve(context.Background(), domain.ChannelTelegram, "", "", "")
	assert.Error(t, err)
}

func TestResolveEmailRecipient(t *testing.T) {
	r, s := newResolver(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, domain.User{Key: "telegram:12345", DisplayName: "Ana"}))
	require.NoError(t, s.CreateUser(ctx, domain.User{Key: "telegram:999", DisplayName: "Luis"}))
	require.NoError(t, s.SetNotificationEmail(ctx, "telegram:999", "luis@gmail.com"))

	tests := []struct {
		name      string
		recipient string
		sender    string
		wantKey   string
		wantErr   error
	}{
		{"alias", "gastos+12345@gastos.example.com", "Interbank <servicioalcliente@netinterbank.com.pe>", "telegram:12345", nil},
		{"alias case insensitive", "GASTOS+12345@gastos.example.com", "", "telegram:12345", nil},
		{"alias with display name", "Bot <gastos+12345@gastos.example.com>", "", "telegram:12345", nil},
		{"fallback to sender", "hola@gastos.example.com", "Luis <LUIS@gmail.com>", "telegram:999", nil},
		{"alias of unknown user falls back", "gastos+1@gastos.example.com", "luis@gmail.com", "telegram:999", nil},
		{"no match", "hola@gastos.example.com", "nobody@example.com", "", domain.ErrNoMatchingUser},
		{"alias of unknown user", "gastos+1@gastos.example.com", "", "", domain.ErrNoMatchingUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := r.ResolveEmailRecipient(ctx, tt.recipient, tt.sender)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, u.Key)
		})
	}

	// Users are never auto-created from email.
	u, err := s.GetUser(ctx, "telegram:1")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestBankAddress(t *testing.T) {
	r, _ := newResolver(t)

	assert.Equal(t, "gastos+42@gastos.example.com", r.BankAddress(domain.User{Key: "telegram:42"}))
	assert.Equal(t, "", r.BankAddress(domain.User{Key: "whatsapp:51999"}))

	noDomain := New(memstore.New(), "", "", zerolog.Nop())
	assert.Equal(t, "", noDomain.BankAddress(domain.User{Key: "telegram:42"}))
}

func TestRegisterNotificationEmail(t *testing.T) {
	r, s := newResolver(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, domain.User{Key: "telegram:1"}))

	require.NoError(t, r.RegisterNotificationEmail(ctx, "telegram:1", "Ana <Ana@Mail.com>"))
	u, err := s.FindUserByNotificationEmail(ctx, "ana@mail.com")
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Error(t, r.RegisterNotificationEmail(ctx, "telegram:1", "not an email"))
	assert.True(t, errors.Is(r.RegisterNotificationEmail(ctx, "telegram:404", "x@y.com"), domain.ErrNotFound))
}

func TestAddress(t *testing.T) {
	tests := map[string]string{
		"Interbank <Alertas@Interbank.pe>": "alertas@interbank.pe",
		"ana@mail.com":                     "ana@mail.com",
		"":                                 "",
		"nope":                             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Address(in), in)
	}
}
