package catalog

import (
	"github.com/smallbiznis/sponsornet/internal/catalog/repository"
	"github.com/smallbiznis/sponsornet/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
