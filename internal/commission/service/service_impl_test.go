package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/commission/domain"
	"github.com/smallbiznis/sponsornet/internal/commission/repository"
	"github.com/smallbiznis/sponsornet/internal/config"
	ledgerrepo "github.com/smallbiznis/sponsornet/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/sponsornet/internal/ledger/service"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
	networkrepo "github.com/smallbiznis/sponsornet/internal/network/repository"
	"github.com/smallbiznis/sponsornet/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingRepo struct {
	mock.Mock
	domain.Repository
}

func (m *failingRepo) Insert(ctx context.Context, db *gorm.DB, c *domain.Commission) error {
	args := m.Called(c.Level)
	if err := args.Error(0); err != nil {
		return err
	}
	return m.Repository.Insert(ctx, db, c)
}

func newTestService(t *testing.T, db *gorm.DB, rewards config.RewardConfig, repo domain.Repository) *Service {
	t.Helper()
	fake := clock.NewFakeClock(dbtest.Now())
	genID := dbtest.IDGen(t)
	holder := config.NewStaticRewardConfig(rewards)
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   genID,
		Rewards: holder,
		Clock:   fake,
		Repo:    ledgerrepo.Provide(),
	})
	if repo == nil {
		repo = repository.Provide()
	}
	return NewService(Params{
		Log:       zap.NewNop(),
		GenID:     genID,
		Rewards:   holder,
		Clock:     fake,
		Repo:      repo,
		Nodes:     networkrepo.Provide(),
		LedgerSvc: ledger,
	}).(*Service)
}

// seedChain creates 1 <- 2 <- 3 <- 4 where each node is sponsored by the
// previous one. Node 4 is the buyer.
func seedChain(t *testing.T, db *gorm.DB, statuses map[snowflake.ID]string) {
	t.Helper()
	for id := snowflake.ID(1); id <= 4; id++ {
		fixture := dbtest.NodeFixture{ID: id, Status: statuses[id]}
		if id > 1 {
			fixture.SponsorID = dbtest.Ref(id - 1)
		}
		dbtest.SeedNode(t, db, fixture)
	}
}

func TestDistributePaysThreeLevels(t *testing.T) {
	db := dbtest.Open(t)
	seedChain(t, db, nil)
	svc := newTestService(t, db, config.DefaultRewardConfig(), nil)

	paymentID := snowflake.ID(900)
	result, err := svc.Distribute(context.Background(), db, domain.Input{
		NodeID:    4,
		Amount:    decimal.NewFromInt(100000),
		PackageID: 500,
		PaymentID: &paymentID,
	})
	require.NoError(t, err)
	require.Len(t, result.Distributions, 3)
	assert.Equal(t, "39000", result.Total.String())
	assert.True(t, result.Total.LessThanOrEqual(decimal.NewFromInt(100000)))

	assert.Equal(t, snowflake.ID(3), result.Distributions[0].RecipientNodeID)
	assert.Equal(t, "35000", result.Distributions[0].Amount.String())
	assert.Equal(t, snowflake.ID(2), result.Distributions[1].RecipientNodeID)
	assert.Equal(t, "2000", result.Distributions[1].Amount.String())
	assert.Equal(t, snowflake.ID(1), result.Distributions[2].RecipientNodeID)
	assert.Equal(t, "2000", result.Distributions[2].Amount.String())

	assert.Equal(t, "35000", dbtest.Balance(t, db, 3).String())
	assert.Equal(t, "2000", dbtest.Balance(t, db, 2).String())
	assert.Equal(t, "2000", dbtest.Balance(t, db, 1).String())
	assert.True(t, dbtest.Balance(t, db, 4).IsZero())

	assert.Equal(t, int64(3), dbtest.Count(t, db,
		`SELECT COUNT(*) FROM node_statements WHERE type = 'COMMISSION' AND status = 'COMPLETED' AND reference_type = 'PACKAGE' AND reference_id = 500`))
	assert.Len(t, result.Notifications, 6)
	assert.Equal(t, snowflake.ID(1_000_003), result.Notifications[0].UserID)
	assert.True(t, result.Notifications[1].IsAdminAlert())

	rows, err := svc.ListByPayment(context.Background(), db, paymentID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.TypeLevel, rows[0].Type)
	assert.Equal(t, domain.StatusProcessed, rows[0].Status)
	assert.Equal(t, snowflake.ID(1_000_004), rows[0].SourceUserID)
	assert.Equal(t, result.Distributions[0].StatementID, rows[0].StatementID)
}

func TestDistributeWithoutSponsorIsNoop(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 1})
	svc := newTestService(t, db, config.DefaultRewardConfig(), nil)

	result, err := svc.Distribute(context.Background(), db, domain.Input{NodeID: 1, Amount: decimal.NewFromInt(100000), PackageID: 500})
	require.NoError(t, err)
	assert.Empty(t, result.Distributions)
	assert.True(t, result.Total.IsZero())
	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(*) FROM commissions`))
}

func TestDistributeStopsAtInactiveSponsor(t *testing.T) {
	db := dbtest.Open(t)
	seedChain(t, db, map[snowflake.ID]string{2: "INACTIVE"})
	svc := newTestService(t, db, config.DefaultRewardConfig(), nil)

	result, err := svc.Distribute(context.Background(), db, domain.Input{NodeID: 4, Amount: decimal.NewFromInt(100000), PackageID: 500})
	require.NoError(t, err)
	require.Len(t, result.Distributions, 1)
	assert.Equal(t, snowflake.ID(3), result.Distributions[0].RecipientNodeID)
	assert.True(t, dbtest.Balance(t, db, 2).IsZero())
	assert.True(t, dbtest.Balance(t, db, 1).IsZero())
}

func TestDistributeRespectsRunningTotalCap(t *testing.T) {
	db := dbtest.Open(t)
	seedChain(t, db, nil)
	rewards := config.DefaultRewardConfig()
	rewards.Levels = []config.LevelRate{{Level: 1, Rate: 60}, {Level: 2, Rate: 50}, {Level: 3, Rate: 1}}
	svc := newTestService(t, db, rewards, nil)

	result, err := svc.Distribute(context.Background(), db, domain.Input{NodeID: 4, Amount: decimal.NewFromInt(1000), PackageID: 500})
	require.NoError(t, err)
	require.Len(t, result.Distributions, 1)
	assert.Equal(t, "600", result.Total.String())
	assert.True(t, dbtest.Balance(t, db, 1).IsZero())
}

func TestDistributeRoundsAndSkipsZeroAmounts(t *testing.T) {
	db := dbtest.Open(t)
	seedChain(t, db, nil)
	rewards := config.DefaultRewardConfig()
	rewards.Levels = []config.LevelRate{{Level: 1, Rate: 35}, {Level: 2, Rate: 0.1}}
	svc := newTestService(t, db, rewards, nil)

	result, err := svc.Distribute(context.Background(), db, domain.Input{NodeID: 4, Amount: decimal.RequireFromString("3.33"), PackageID: 500})
	require.NoError(t, err)
	require.Len(t, result.Distributions, 1)
	assert.Equal(t, "1.17", result.Distributions[0].Amount.StringFixed(2))
}

func TestDistributeRejectsInvalidInput(t *testing.T) {
	db := dbtest.Open(t)
	svc := newTestService(t, db, config.DefaultRewardConfig(), nil)

	_, err := svc.Distribute(context.Background(), db, domain.Input{NodeID: 404, Amount: decimal.NewFromInt(1), PackageID: 500})
	assert.ErrorIs(t, err, domain.ErrInvalidCommissionInput)
	_, err = svc.Distribute(context.Background(), db, domain.Input{NodeID: 1, Amount: decimal.Zero, PackageID: 500})
	assert.ErrorIs(t, err, domain.ErrInvalidCommissionInput)
	_, err = svc.Distribute(context.Background(), db, domain.Input{NodeID: 1, Amount: decimal.NewFromInt(-5), PackageID: 500})
	assert.ErrorIs(t, err, domain.ErrInvalidCommissionInput)
}

func TestDistributeDetectsSponsorCycle(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 1, SponsorID: dbtest.Ref(2)})
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 2, SponsorID: dbtest.Ref(1)})
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 3, SponsorID: dbtest.Ref(1)})
	svc := newTestService(t, db, config.DefaultRewardConfig(), nil)

	_, err := svc.Distribute(context.Background(), db, domain.Input{NodeID: 3, Amount: decimal.NewFromInt(100), PackageID: 500})
	assert.ErrorIs(t, err, networkdomain.ErrCorruptNetwork)
}

func TestDistributeFailureRollsBackEveryLevel(t *testing.T) {
	db := dbtest.Open(t)
	seedChain(t, db, nil)

	repo := &failingRepo{Repository: repository.Provide()}
	repo.On("Insert", 1).Return(nil)
	repo.On("Insert", 2).Return(errors.New("disk full"))
	svc := newTestService(t, db, config.DefaultRewardConfig(), repo)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Distribute(context.Background(), tx, domain.Input{NodeID: 4, Amount: decimal.NewFromInt(100000), PackageID: 500})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commission level 2")

	assert.True(t, dbtest.Balance(t, db, 3).IsZero())
	assert.True(t, dbtest.Balance(t, db, 2).IsZero())
	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(*) FROM node_statements`))
	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(*) FROM commissions`))
	repo.AssertExpectations(t)
}
