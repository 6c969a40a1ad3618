package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRewardConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateRewardConfig(DefaultRewardConfig()))
}

func TestValidateRewardConfigRejectsGaps(t *testing.T) {
	cfg := DefaultRewardConfig()
	cfg.Levels = []LevelRate{{Level: 1, Rate: 10}, {Level: 3, Rate: 2}}
	assert.Error(t, ValidateRewardConfig(cfg))

	cfg.Levels = []LevelRate{{Level: 1, Rate: 0}}
	assert.Error(t, ValidateRewardConfig(cfg))
}

func TestRatesAreOrderedByLevel(t *testing.T) {
	cfg := RewardConfig{Levels: []LevelRate{{Level: 2, Rate: 2}, {Level: 1, Rate: 35}}}
	rates := cfg.Rates()
	require.Len(t, rates, 2)
	assert.Equal(t, 1, rates[0].Level)
	assert.Equal(t, 2, rates[1].Level)
}

func TestLimitForPicksHighestTierAtOrBelowLevel(t *testing.T) {
	cfg := DefaultRewardConfig()

	limit, ok := cfg.LimitFor(2)
	require.True(t, ok)
	assert.Equal(t, 2, limit.PackageLevel)

	limit, ok = cfg.LimitFor(9)
	require.True(t, ok)
	assert.Equal(t, 3, limit.PackageLevel)

	_, ok = cfg.LimitFor(0)
	assert.False(t, ok)
}
