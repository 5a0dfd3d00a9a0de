// Package protocol defines the messages exchanged between the API and workers
// via the message broker. Bodies are encoded as JSON on the wire.
package protocol

// ReminderStartRequest asks a worker to begin the reminder sequence
// for a newly created (or freshly renewed) subscription.
type ReminderStartRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}
