package dedup

import (
	"time"

	"github.com/dvloznov/expense-bot/internal/ttlcache"
)

// DefaultInboundTTL is how long a processed message id is remembered.
const DefaultInboundTTL = 5 * time.Minute

// Inbound remembers recently processed message ids so webhook redeliveries
// are handled once.
type Inbound struct {
	cache ttlcache.Cache[string, struct{}]
	ttl   time.Duration
}

// NewInbound creates an Inbound. A zero ttl uses DefaultInboundTTL.
func NewInbound(cache ttlcache.Cache[string, struct{}], ttl time.Duration) *Inbound {
	if ttl <= 0 {
		ttl = DefaultInboundTTL
	}
	return &Inbound{cache: cache, ttl: ttl}
}

// Seen marks id as processed and reports whether it already was. The empty
// id is never seen.
func (i *Inbound) Seen(id string) bool {
	if id == "" {
		return false
	}
	return !i.cache.SetIfAbsent(id, struct{}{}, i.ttl)
}

// Forget drops the mark for id so a later delivery is handled again.
func (i *Inbound) Forget(id string) {
	if id == "" {
		return
	}
	i.cache.Delete(id)
}
