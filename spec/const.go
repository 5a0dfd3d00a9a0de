package spec

// TaskKind identifies a durable task variant shared between the API and workers
type TaskKind string

const (
	// ReminderTask is the per-subscription renewal reminder sequence
	ReminderTask TaskKind = "subscription-reminder"
)
