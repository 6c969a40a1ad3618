package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/nodepackage/domain"
	"github.com/smallbiznis/sponsornet/internal/nodepackage/repository"
	"github.com/smallbiznis/sponsornet/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, db *gorm.DB) (*Service, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFakeClock(dbtest.Now())
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.IDGen(t),
		Clock: fake,
		Repo:  repository.Provide(),
	}).(*Service), fake
}

func starter(days int) catalogdomain.Package {
	return catalogdomain.Package{ID: 500, Name: "Starter", Price: decimal.NewFromInt(100000), DurationDays: days, Level: 1, IsActive: true}
}

func TestActivateSetsExpiryFromDuration(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 1})
	svc, _ := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, svc.UpsertPending(ctx, db, 1, 500))
	pending, err := svc.GetByNode(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, domain.StatusPending, pending.Status)
	assert.Nil(t, pending.ExpiresAt)

	active, err := svc.Activate(ctx, db, 1, starter(30))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, active.Status)
	require.NotNil(t, active.ExpiresAt)
	assert.True(t, active.ExpiresAt.Equal(dbtest.Now().Add(30*24*time.Hour)))
	assert.Equal(t, pending.ID, active.ID)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM node_packages WHERE node_id = ?`, 1))
}

func TestUpsertPendingKeepsActivePackage(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 1})
	svc, _ := newTestService(t, db)
	ctx := context.Background()

	_, err := svc.Activate(ctx, db, 1, starter(365))
	require.NoError(t, err)

	require.NoError(t, svc.UpsertPending(ctx, db, 1, 600))
	current, err := svc.GetByNode(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, current.Status)
	assert.EqualValues(t, 500, current.PackageID)

	cancelled, err := svc.CancelPending(ctx, db, 1, 600)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestCancelPending(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 1})
	svc, _ := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, svc.UpsertPending(ctx, db, 1, 500))
	cancelled, err := svc.CancelPending(ctx, db, 1, 500)
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = svc.CancelPending(ctx, db, 1, 500)
	require.NoError(t, err)
	assert.False(t, cancelled)

	// A cancelled row can be reused by the next purchase.
	require.NoError(t, svc.UpsertPending(ctx, db, 1, 500))
	current, err := svc.GetByNode(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, current.Status)
}

func TestExpireDueOnlyTouchesLapsedPackages(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 1})
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 2, ParentID: dbtest.Ref(1)})
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 3, ParentID: dbtest.Ref(1), Position: "TWO"})
	svc, fake := newTestService(t, db)
	ctx := context.Background()

	_, err := svc.Activate(ctx, db, 1, starter(10))
	require.NoError(t, err)
	_, err = svc.Activate(ctx, db, 2, starter(60))
	require.NoError(t, err)
	require.NoError(t, svc.UpsertPending(ctx, db, 3, 500))

	fake.Advance(11 * 24 * time.Hour)
	expired, err := svc.ExpireDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	first, err := svc.GetByNode(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, first.Status)

	second, err := svc.GetByNode(ctx, db, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, second.Status)

	expired, err = svc.ExpireDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestValidation(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := newTestService(t, db)

	assert.ErrorIs(t, svc.UpsertPending(context.Background(), db, 0, 1), domain.ErrInvalidNodeID)
	assert.ErrorIs(t, svc.UpsertPending(context.Background(), db, 1, 0), domain.ErrInvalidPackageID)
	_, err := svc.Activate(context.Background(), db, 1, catalogdomain.Package{})
	assert.ErrorIs(t, err, domain.ErrInvalidPackageID)
}
