package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/subtrack/notification"
	"github.com/zllovesuki/subtrack/user"
	"github.com/zllovesuki/subtrack/workflow"

	"go.uber.org/zap"
)

// ReminderOptions contains the configuration for the Reminder handler
type ReminderOptions struct {
	SubscriptionManager *Manager
	UserManager         *user.Manager
	Sender              notification.Sender
	Logger              *zap.Logger
	Clock               func() time.Time
}

// Reminder is the durable handler for one subscription's reminder sequence.
// One execution is started per subscription at creation; it walks the
// ReminderOffsets, sleeping durably between them, and stops as soon as the
// subscription is gone, no longer active, or past its renewal date.
type Reminder struct {
	ReminderOptions
}

// NewReminder returns the reminder sequence handler
func NewReminder(option ReminderOptions) (*Reminder, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.UserManager == nil {
		return nil, fmt.Errorf("nil UserManager is invalid")
	}
	if option.Sender == nil {
		return nil, fmt.Errorf("nil Sender is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Clock == nil {
		option.Clock = time.Now
	}
	return &Reminder{
		ReminderOptions: option,
	}, nil
}

// Handle runs one segment of the reminder sequence. It may be replayed from
// the top after a crash or resumed after a multi-day suspension; subscription
// reads are pure so a cancellation is observed on the next wake, and notify
// steps are journaled so they fire at most once per offset.
func (t *Reminder) Handle(c *workflow.Context, subscriptionID string) error {
	logger := t.Logger.With(zap.String("SubscriptionID", subscriptionID))

	sub, err := t.fetchActive(c.Context(), logger, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	if !sub.RenewalDate.After(t.Clock()) {
		logger.Info("Renewal date has passed, stopping reminder sequence",
			zap.Time("RenewalDate", sub.RenewalDate),
		)
		return nil
	}

	for _, daysBefore := range ReminderOffsets {
		reminderDate := sub.RenewalDate.AddDate(0, 0, -daysBefore)
		label := fmt.Sprintf("%d days before reminder", daysBefore)

		if reminderDate.After(t.Clock()) {
			if err := c.SleepUntil(fmt.Sprintf("sleep until %d days before", daysBefore), reminderDate); err != nil {
				return err
			}
			// woke up after a suspension: re-read state, a cancellation or
			// deletion in the meantime ends the sequence here
			sub, err = t.fetchActive(c.Context(), logger, subscriptionID)
			if err != nil {
				return err
			}
			if sub == nil {
				return nil
			}
		}

		if sameCalendarDay(t.Clock(), reminderDate) {
			if err := t.triggerReminder(c, logger, sub, label, daysBefore); err != nil {
				return err
			}
		} else if reminderDate.Before(t.Clock()) {
			// the reminder's calendar day has fully passed (e.g. after an
			// outage): skip it, never deliver late
			logger.Warn("Reminder day already passed, skipping offset",
				zap.Int("DaysBefore", daysBefore),
				zap.Time("ReminderDate", reminderDate),
			)
		}
	}

	// the sequence does not reschedule itself; the renewal rollover starts a
	// fresh execution for the next billing cycle
	return nil
}

// fetchActive is a pure read of the subscription; nil means the sequence
// should terminate silently (absent or no longer active, both normal)
func (t *Reminder) fetchActive(ctx context.Context, logger *zap.Logger, subscriptionID string) (*Subscription, error) {
	sub, err := t.SubscriptionManager.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		logger.Info("Subscription no longer exists, stopping reminder sequence")
		return nil, nil
	}
	if sub.Status != StatusActive {
		logger.Info("Subscription no longer active, stopping reminder sequence",
			zap.String("Status", string(sub.Status)),
		)
		return nil, nil
	}
	return sub, nil
}

func (t *Reminder) triggerReminder(c *workflow.Context, logger *zap.Logger, sub *Subscription, label string, daysBefore int) error {
	return c.Run(label, func(ctx context.Context) (interface{}, error) {
		owner, err := t.UserManager.GetByID(ctx, sub.UserID)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			logger.Warn("Subscription owner no longer exists, skipping reminder")
			return nil, nil
		}

		reminder := notification.Reminder{
			To:               owner.Email,
			UserName:         owner.Name,
			Type:             label,
			DaysBefore:       daysBefore,
			SubscriptionID:   sub.ID,
			SubscriptionName: sub.Name,
			Price:            sub.Price,
			Currency:         string(sub.Currency),
			Frequency:        string(sub.Frequency),
			PaymentMethod:    sub.PaymentMethod,
			RenewalDate:      sub.RenewalDate,
		}
		if err := t.Sender.Send(ctx, reminder); err != nil {
			// reminders are best-effort: log and advance to the next offset
			logger.Error("Unable to deliver reminder",
				zap.String("Label", label),
				zap.Error(err),
			)
		}
		return nil, nil
	}, nil)
}
