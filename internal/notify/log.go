package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info("notification",
		zap.String("user_id", msg.UserID),
		zap.String("channel", string(msg.Channel)),
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("metadata", msg.Metadata),
	)
	return nil
}
