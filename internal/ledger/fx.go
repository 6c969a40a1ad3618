package ledger

import (
	"github.com/smallbiznis/sponsornet/internal/ledger/repository"
	"github.com/smallbiznis/sponsornet/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
