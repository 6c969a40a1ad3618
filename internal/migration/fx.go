package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/config"
	"github.com/smallbiznis/sponsornet/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node, log *zap.Logger) error {
		ctx := context.Background()
		switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		case "sqlite":
			if err := ApplySQLiteSchema(ctx, conn); err != nil {
				return err
			}
		default:
			return fmt.Errorf("migrations: unsupported database type %q", cfg.DBType)
		}

		seeded, err := seed.EnsureDefaultPackages(ctx, conn, genID)
		if err != nil {
			return err
		}
		if seeded > 0 {
			log.Info("seeded default packages", zap.Int("count", seeded))
		}
		return nil
	}),
)
