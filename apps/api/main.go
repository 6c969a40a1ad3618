package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/audit"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	"github.com/smallbiznis/sponsornet/internal/catalog"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/commission"
	"github.com/smallbiznis/sponsornet/internal/config"
	"github.com/smallbiznis/sponsornet/internal/ledger"
	"github.com/smallbiznis/sponsornet/internal/network"
	"github.com/smallbiznis/sponsornet/internal/nodepackage"
	"github.com/smallbiznis/sponsornet/internal/notification"
	"github.com/smallbiznis/sponsornet/internal/observability"
	"github.com/smallbiznis/sponsornet/internal/payment"
	"github.com/smallbiznis/sponsornet/internal/ratelimit"
	"github.com/smallbiznis/sponsornet/internal/server"
	"github.com/smallbiznis/sponsornet/internal/user"
	"github.com/smallbiznis/sponsornet/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domains
		user.Module,
		catalog.Module,
		network.Module,
		ledger.Module,
		commission.Module,
		notification.Module,
		nodepackage.Module,
		payment.Module,
		audit.Module,
		authorization.Module,
		ratelimit.Module,

		// No scheduler; run apps/scheduler alongside.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
