package broker

import (
	"github.com/zllovesuki/subtrack/spec/protocol"
)

// Producer defines a producer sending requests via message broker
type Producer interface {
	Close()
	SendReminderStartRequest(p *protocol.ReminderStartRequest) error
}
