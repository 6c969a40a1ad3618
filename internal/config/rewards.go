package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RewardConfig is the hot-reloadable reward plan.
type RewardConfig struct {
	Levels              []LevelRate       `mapstructure:"levels" yaml:"levels"`
	ActivationBonus     float64           `mapstructure:"activationBonus" yaml:"activationBonus"`
	LegVolumeWindowDays int               `mapstructure:"legVolumeWindowDays" yaml:"legVolumeWindowDays"`
	WithdrawalLimits    []WithdrawalLimit `mapstructure:"withdrawalLimits" yaml:"withdrawalLimits"`
}

// LevelRate is the percentage of the purchase amount paid to the sponsor at Level.
type LevelRate struct {
	Level int     `mapstructure:"level" yaml:"level"`
	Rate  float64 `mapstructure:"rate" yaml:"rate"`
}

// WithdrawalLimit caps withdrawals for nodes holding a package of PackageLevel.
type WithdrawalLimit struct {
	PackageLevel int     `mapstructure:"packageLevel" yaml:"packageLevel"`
	Daily        float64 `mapstructure:"daily" yaml:"daily"`
	Weekly       float64 `mapstructure:"weekly" yaml:"weekly"`
	Monthly      float64 `mapstructure:"monthly" yaml:"monthly"`
}

func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		Levels: []LevelRate{
			{Level: 1, Rate: 35},
			{Level: 2, Rate: 2},
			{Level: 3, Rate: 2},
		},
		ActivationBonus:     0,
		LegVolumeWindowDays: 30,
		WithdrawalLimits: []WithdrawalLimit{
			{PackageLevel: 1, Daily: 50_000, Weekly: 250_000, Monthly: 1_000_000},
			{PackageLevel: 2, Daily: 100_000, Weekly: 500_000, Monthly: 2_000_000},
			{PackageLevel: 3, Daily: 250_000, Weekly: 1_250_000, Monthly: 5_000_000},
		},
	}
}

// Rates returns the level rates ordered by level.
func (c RewardConfig) Rates() []LevelRate {
	out := make([]LevelRate, len(c.Levels))
	copy(out, c.Levels)
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// LimitFor returns the withdrawal limit of the highest configured tier not above packageLevel.
func (c RewardConfig) LimitFor(packageLevel int) (WithdrawalLimit, bool) {
	var (
		best  WithdrawalLimit
		found bool
	)
	for _, limit := range c.WithdrawalLimits {
		if limit.PackageLevel > packageLevel {
			continue
		}
		if !found || limit.PackageLevel > best.PackageLevel {
			best = limit
			found = true
		}
	}
	return best, found
}

type RewardConfigHolder struct {
	current atomic.Value // holds RewardConfig
}

// NewStaticRewardConfig returns a holder that never reloads.
func NewStaticRewardConfig(cfg RewardConfig) *RewardConfigHolder {
	holder := &RewardConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRewardConfigHolder(log *zap.Logger) (*RewardConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.rewards")

	v := viper.New()

	v.SetConfigName("rewards")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/sponsornet/config")
	v.AddConfigPath("/etc/sponsornet")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPONSORNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultRewardConfig()
	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		log.Info("rewards config file not found, using defaults")
	}

	if fileFound {
		if err := v.UnmarshalKey("rewards", &cfg); err != nil {
			return nil, err
		}
	}
	if err := ValidateRewardConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticRewardConfig(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultRewardConfig()
		if err := v.UnmarshalKey("rewards", &updated); err != nil {
			log.Warn("rewards config reload failed", zap.Error(err))
			return
		}
		if err := ValidateRewardConfig(updated); err != nil {
			log.Warn("invalid rewards config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("rewards config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *RewardConfigHolder) Get() RewardConfig {
	return h.current.Load().(RewardConfig)
}

func ValidateRewardConfig(cfg RewardConfig) error {
	if len(cfg.Levels) == 0 {
		return errors.New("rewards.levels cannot be empty")
	}
	for i, level := range cfg.Rates() {
		if level.Level != i+1 {
			return fmt.Errorf("rewards.levels must be contiguous from 1, got level %d at position %d", level.Level, i+1)
		}
		if level.Rate <= 0 {
			return fmt.Errorf("rewards.levels[%d].rate must be positive", level.Level)
		}
	}
	if cfg.ActivationBonus < 0 {
		return errors.New("rewards.activationBonus cannot be negative")
	}
	if cfg.LegVolumeWindowDays <= 0 {
		return errors.New("rewards.legVolumeWindowDays must be positive")
	}
	for _, limit := range cfg.WithdrawalLimits {
		if limit.Daily < 0 || limit.Weekly < 0 || limit.Monthly < 0 {
			return fmt.Errorf("rewards.withdrawalLimits[%d] cannot be negative", limit.PackageLevel)
		}
	}
	return nil
}
