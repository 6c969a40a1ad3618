package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"github.com/smallbiznis/sponsornet/internal/catalog/repository"
	"github.com/smallbiznis/sponsornet/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListPackagesOrderedByLevel(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedPackage(t, db, 3, 3, "1000000", 365)
	dbtest.SeedPackage(t, db, 1, 1, "100000", 365)
	dbtest.SeedPackage(t, db, 2, 2, "500000", 180)
	require.NoError(t, db.Exec(`UPDATE packages SET is_active = ? WHERE id = ?`, false, 2).Error)

	svc := NewService(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})
	items, err := svc.ListPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Level)
	assert.Equal(t, 3, items[1].Level)
	assert.Equal(t, "100000", items[0].Price.String())
}

func TestGetPackage(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedPackage(t, db, 5, 1, "250000.50", 30)
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	pkg, err := svc.GetPackage(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "250000.5", pkg.Price.String())
	assert.Equal(t, 30, pkg.DurationDays)

	_, err = svc.GetPackage(context.Background(), 6)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
