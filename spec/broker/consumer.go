package broker

import (
	"context"

	"github.com/zllovesuki/subtrack/spec/protocol"
)

// Consumer defines a consumer receiving requests via message broker
type Consumer interface {
	Close()
	ReceiveReminderStartRequest(ctx context.Context) (<-chan *protocol.ReminderStartRequest, error)
}
