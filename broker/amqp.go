package broker

import (
	"context"
	"encoding/json"

	"github.com/zllovesuki/subtrack/spec/broker"
	"github.com/zllovesuki/subtrack/spec/protocol"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
)

var _ broker.Producer = &AMQPBroker{}
var _ broker.Consumer = &AMQPBroker{}

const (
	reminderExchange   string = "reminder_start"
	reminderRoutingKey        = "reminder"
	reminderQueue             = "reminder_start_worker"
)

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := broker.setupReminderExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for reminder requests")
	}

	return broker, nil
}

func (a *AMQPBroker) setupReminderExchange() error {
	return a.channel.ExchangeDeclare(
		reminderExchange, // name
		"direct",         // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

func (a *AMQPBroker) publishViaRoutingKey(exchange, routingKey string, body []byte) error {
	return a.channel.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// SendReminderStartRequest will ask a worker to begin the reminder sequence for a subscription
func (a *AMQPBroker) SendReminderStartRequest(p *protocol.ReminderStartRequest) error {
	body, err := json.Marshal(p)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	if err := a.publishViaRoutingKey(reminderExchange, reminderRoutingKey, body); err != nil {
		return extErrors.Wrap(err, "Cannot publish reminder start request")
	}
	return nil
}

func (a *AMQPBroker) setupQueue(qName string) error {
	_, err := a.channel.QueueDeclare(
		qName,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

func (a *AMQPBroker) bindAndGetMsgChan(qName, exchange, routingKey string) (<-chan amqp.Delivery, error) {
	if err := a.channel.QueueBind(
		qName,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		return nil, err
	}
	msgChan, err := a.channel.Consume(
		qName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	return msgChan, err
}

// ReceiveReminderStartRequest returns a channel of start requests published by the API
func (a *AMQPBroker) ReceiveReminderStartRequest(ctx context.Context) (<-chan *protocol.ReminderStartRequest, error) {
	if err := a.setupQueue(reminderQueue); err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup queue")
	}
	msgChan, err := a.bindAndGetMsgChan(reminderQueue, reminderExchange, reminderRoutingKey)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup consumer")
	}
	rChan := make(chan *protocol.ReminderStartRequest)
	go forwardReminderStartRequests(ctx, msgChan, rChan)
	return rChan, nil
}

// forwardReminderStartRequests decodes deliveries onto rChan until ctx is
// done. A delivery that cannot be handed off before cancellation is requeued
// so another worker can pick it up.
func forwardReminderStartRequests(ctx context.Context, msgChan <-chan amqp.Delivery, rChan chan<- *protocol.ReminderStartRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-msgChan:
			var req protocol.ReminderStartRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				d.Nack(false, false)
				continue
			}
			select {
			case <-ctx.Done():
				d.Nack(false, true)
				return
			case rChan <- &req:
				d.Ack(false)
			}
		}
	}
}
