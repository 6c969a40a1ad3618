package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/testutil/dbtest"
	"github.com/smallbiznis/sponsornet/internal/user/domain"
	"github.com/smallbiznis/sponsornet/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetVerifiedIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedUser(t, db, 11, "amara")

	fake := clock.NewFakeClock(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Clock: fake, Repo: repository.Provide()})
	ctx := context.Background()

	require.NoError(t, svc.SetVerified(ctx, db, 11))
	fake.Advance(time.Hour)
	require.NoError(t, svc.SetVerified(ctx, db, 11))

	user, err := svc.GetUser(ctx, 11)
	require.NoError(t, err)
	assert.True(t, user.Verified)
	require.NotNil(t, user.VerifiedAt)
	assert.True(t, user.VerifiedAt.Equal(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)))
}

func TestGetUserNotFound(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Clock: clock.SystemClock{}, Repo: repository.Provide()})

	_, err := svc.GetUser(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetUser(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
