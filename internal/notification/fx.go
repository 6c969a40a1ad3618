package notification

import (
	"context"
	"time"

	"github.com/smallbiznis/sponsornet/internal/config"
	"github.com/smallbiznis/sponsornet/internal/notification/domain"
	"github.com/smallbiznis/sponsornet/internal/notification/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewNotifier),
	fx.Provide(service.NewDispatcher),
)

// NewNotifier publishes to AMQP when a broker URL is configured and logs
// otherwise.
func NewNotifier(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) domain.Notifier {
	if cfg.Notification.AMQPURL == "" {
		return service.NewLogNotifier(log)
	}
	notifier := service.NewAMQPNotifier(service.AMQPConfig{
		URL:        cfg.Notification.AMQPURL,
		Queue:      cfg.Notification.Queue,
		MaxRetries: cfg.Notification.MaxRetries,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return notifier.Close()
		},
	})
	return notifier
}
