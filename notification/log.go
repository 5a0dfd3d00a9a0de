package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes reminders to the log instead of delivering them.
// Used in development, mirroring the Log transport of the login flow.
type LogSender struct {
	Logger *zap.Logger
}

var _ Sender = &LogSender{}

func (l *LogSender) Send(ctx context.Context, reminder Reminder) error {
	l.Logger.Info("Reminder delivery",
		zap.String("To", reminder.To),
		zap.String("Type", reminder.Type),
		zap.String("SubscriptionID", reminder.SubscriptionID),
		zap.String("SubscriptionName", reminder.SubscriptionName),
		zap.Time("RenewalDate", reminder.RenewalDate),
	)
	return nil
}
