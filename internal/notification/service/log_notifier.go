package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/observability/logger"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the structured log. It is used when no
// broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notification.log")}
}

func (n *LogNotifier) Notify(ctx context.Context, userID snowflake.ID, title, message, notificationType string) error {
	logger.WithContext(ctx, n.log).Info("notification",
		zap.String("user_id", userID.String()),
		zap.String("title", title),
		zap.String("type", notificationType),
		zap.String("message", message),
	)
	return nil
}

func (n *LogNotifier) AlertAdmins(ctx context.Context, title, message string) error {
	logger.WithContext(ctx, n.log).Info("admin alert",
		zap.String("title", title),
		zap.String("message", message),
	)
	return nil
}
