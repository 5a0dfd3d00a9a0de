package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zllovesuki/subtrack/spec/protocol"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, tag)
	f.requeue = append(f.requeue, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) ackedTags() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64{}, f.acked...)
}

func (f *fakeAcknowledger) nackedTags() ([]uint64, []bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64{}, f.nacked...), append([]bool{}, f.requeue...)
}

func TestForwardDecodesAndAcks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ack := &fakeAcknowledger{}
	msgChan := make(chan amqp.Delivery, 2)
	rChan := make(chan *protocol.ReminderStartRequest)

	go forwardReminderStartRequests(ctx, msgChan, rChan)

	msgChan <- amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         []byte(`{"subscriptionId":"sub-1"}`),
	}

	select {
	case req := <-rChan:
		require.Equal(t, "sub-1", req.SubscriptionID)
	case <-time.After(time.Second):
		t.Fatal("no request forwarded")
	}

	require.Eventually(t, func() bool {
		return len(ack.ackedTags()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []uint64{1}, ack.ackedTags())
}

func TestForwardDropsMalformedBody(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ack := &fakeAcknowledger{}
	msgChan := make(chan amqp.Delivery, 2)
	rChan := make(chan *protocol.ReminderStartRequest)

	go forwardReminderStartRequests(ctx, msgChan, rChan)

	msgChan <- amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  7,
		Body:         []byte(`not json`),
	}

	require.Eventually(t, func() bool {
		tags, _ := ack.nackedTags()
		return len(tags) == 1
	}, time.Second, 10*time.Millisecond)

	tags, requeue := ack.nackedTags()
	require.Equal(t, []uint64{7}, tags)
	require.Equal(t, []bool{false}, requeue)
	require.Empty(t, ack.ackedTags())
}

func TestForwardRequeuesOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ack := &fakeAcknowledger{}
	msgChan := make(chan amqp.Delivery, 1)
	// nobody reads rChan, so the hand-off can never complete
	rChan := make(chan *protocol.ReminderStartRequest)

	done := make(chan struct{})
	go func() {
		forwardReminderStartRequests(ctx, msgChan, rChan)
		close(done)
	}()

	msgChan <- amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  3,
		Body:         []byte(`{"subscriptionId":"sub-3"}`),
	}

	// wait until the delivery has been taken off the queue before cancelling
	require.Eventually(t, func() bool {
		return len(msgChan) == 0
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward goroutine did not exit after cancellation")
	}

	tags, requeue := ack.nackedTags()
	require.Equal(t, []uint64{3}, tags)
	require.Equal(t, []bool{true}, requeue)
	require.Empty(t, ack.ackedTags())
}
