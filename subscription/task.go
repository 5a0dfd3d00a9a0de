package subscription

import (
	"context"
	"fmt"

	"github.com/zllovesuki/subtrack/spec"
	"github.com/zllovesuki/subtrack/spec/broker"
	"github.com/zllovesuki/subtrack/workflow"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// TaskOptions contains the configuration for the worker-side Task
type TaskOptions struct {
	Engine   *workflow.Engine
	Consumer broker.Consumer
	Logger   *zap.Logger
}

// Task receives reminder start requests from the broker and turns each into
// a durable execution, running its first segment immediately
type Task struct {
	TaskOptions
}

// NewTask returns the worker-side consumer for reminder start requests
func NewTask(option TaskOptions) (*Task, error) {
	if option.Engine == nil {
		return nil, fmt.Errorf("nil Engine is invalid")
	}
	if option.Consumer == nil {
		return nil, fmt.Errorf("nil Consumer is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Task{
		TaskOptions: option,
	}, nil
}

// HandleReminderStart starts consuming start requests until ctx is done
func (t *Task) HandleReminderStart(ctx context.Context) error {
	rChan, err := t.Consumer.ReceiveReminderStartRequest(ctx)
	if err != nil {
		return extErrors.Wrap(err, "Cannot get reminder start request channel")
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-rChan:
				if req == nil || len(req.SubscriptionID) == 0 {
					t.Logger.Error("Received invalid reminder start request")
					continue
				}
				logger := t.Logger.With(zap.String("SubscriptionID", req.SubscriptionID))

				exec, err := t.Engine.Trigger(ctx, spec.ReminderTask, req.SubscriptionID)
				if err != nil {
					logger.Error("Unable to record reminder execution",
						zap.Error(err),
					)
					continue
				}
				// run the first segment now instead of waiting for the next
				// poller tick; suspension is handled inside the engine
				if err := t.Engine.Run(ctx, exec.ID); err != nil {
					logger.Error("Unable to run reminder execution",
						zap.String("ExecutionID", exec.ID),
						zap.Error(err),
					)
				}
			}
		}
	}()
	return nil
}
