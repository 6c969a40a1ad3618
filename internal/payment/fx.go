package payment

import (
	"github.com/smallbiznis/sponsornet/internal/payment/adapters"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters/flutterwave"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters/mobilemoney"
	"github.com/smallbiznis/sponsornet/internal/payment/repository"
	paymentservice "github.com/smallbiznis/sponsornet/internal/payment/service"
	"github.com/smallbiznis/sponsornet/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			mobilemoney.NewFactory(),
			flutterwave.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
