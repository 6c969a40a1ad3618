package nodepackage

import (
	"github.com/smallbiznis/sponsornet/internal/nodepackage/repository"
	"github.com/smallbiznis/sponsornet/internal/nodepackage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("nodepackage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
