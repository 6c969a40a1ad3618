package service

import (
	"context"

	"github.com/smallbiznis/sponsornet/internal/notification/domain"
	"github.com/smallbiznis/sponsornet/internal/observability/logger"
	"go.uber.org/zap"
)

// Dispatcher delivers collected messages after a transaction commits.
// Delivery errors are logged and dropped.
type Dispatcher struct {
	notifier domain.Notifier
	log      *zap.Logger
}

func NewDispatcher(notifier domain.Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, log: log.Named("notification.dispatcher")}
}

func (d *Dispatcher) Dispatch(ctx context.Context, messages ...domain.Message) {
	if d == nil || d.notifier == nil {
		return
	}
	for _, msg := range messages {
		var err error
		if msg.IsAdminAlert() {
			err = d.notifier.AlertAdmins(ctx, msg.Title, msg.Body)
		} else {
			err = d.notifier.Notify(ctx, msg.UserID, msg.Title, msg.Body, msg.Type)
		}
		if err != nil {
			logger.WithContext(ctx, d.log).Warn("notification dropped",
				zap.String("type", msg.Type),
				zap.String("title", msg.Title),
				zap.Error(err),
			)
		}
	}
}
