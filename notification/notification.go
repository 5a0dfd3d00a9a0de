// Package notification delivers renewal reminders. Delivery is best-effort:
// callers log failures and move on, they do not retry.
package notification

import (
	"context"
	"time"
)

// Reminder is the payload handed to a Sender. It carries a snapshot of the
// subscription at send time so the message stays consistent even if the
// record changes afterwards.
type Reminder struct {
	To         string `json:"to"`         // recipient email address
	UserName   string `json:"userName"`   // display name for the greeting
	Type       string `json:"type"`       // stable label, e.g. "7 days before reminder"
	DaysBefore int    `json:"daysBefore"` // offset this reminder corresponds to

	SubscriptionID   string    `json:"subscriptionId"`
	SubscriptionName string    `json:"subscriptionName"`
	Price            float64   `json:"price"`
	Currency         string    `json:"currency"`
	Frequency        string    `json:"frequency"`
	PaymentMethod    string    `json:"paymentMethod"`
	RenewalDate      time.Time `json:"renewalDate"`
}

// Sender delivers a single reminder. Implementations must be safe to call
// more than once with the same Reminder, as the caller may replay a
// not-yet-committed step after a crash.
type Sender interface {
	Send(ctx context.Context, reminder Reminder) error
}
