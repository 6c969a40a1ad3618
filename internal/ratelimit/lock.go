package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLockKey    = errors.New("invalid_lock_key")
	ErrInvalidLockTTL    = errors.New("invalid_lock_ttl")
)

const keyPaymentConfirm = "sponsornet:payment:confirm:%s"

// Deletes the key only while it still carries the caller's token.
const compareAndDelete = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a best-effort cross-process mutex. The database CAS stays the
// source of truth; the lock only keeps concurrent confirmations from doing
// duplicate work.
type Locker struct {
	client *redis.Client
	del    *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, del: redis.NewScript(compareAndDelete)}
}

// TryLock returns the owner token when the key was free.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, ErrLockNotConfigured
	case key == "":
		return "", false, ErrInvalidLockKey
	case ttl <= 0:
		return "", false, ErrInvalidLockTTL
	}

	owner := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock %s: %w", key, err)
	}
	return owner, acquired, nil
}

func (l *Locker) Release(ctx context.Context, key, owner string) error {
	if l == nil || l.client == nil || key == "" || owner == "" {
		return nil
	}
	return l.del.Run(ctx, l.client, []string{key}, owner).Err()
}

// HoldPayment locks confirmation of one payment. held is false when another
// process owns it. unlock is always safe to call.
func (l *Locker) HoldPayment(ctx context.Context, paymentID snowflake.ID, ttl time.Duration) (unlock func(context.Context) error, held bool, err error) {
	key := fmt.Sprintf(keyPaymentConfirm, paymentID)
	owner, held, err := l.TryLock(ctx, key, ttl)
	if err != nil || !held {
		return func(context.Context) error { return nil }, held, err
	}
	return func(ctx context.Context) error {
		return l.Release(ctx, key, owner)
	}, true, nil
}
