package workflow

import (
	"context"
	"encoding/json"
	"time"

	extErrors "github.com/pkg/errors"
)

// Context is handed to a Handler for one run of an execution. It exposes the
// two durable primitives: journaled steps and wall-clock suspension.
type Context struct {
	ctx    context.Context
	engine *Engine
	exec   *Execution
}

// Context returns the underlying context.Context for pure reads inside the handler
func (c *Context) Context() context.Context {
	return c.ctx
}

// Now returns the engine's notion of current time
func (c *Context) Now() time.Time {
	return c.engine.Clock()
}

// Run executes a journaled step exactly once. On replay the recorded result
// is decoded into out (when non-nil) and fn is skipped. The journal entry is
// committed before Run returns, so a crash afterwards never re-executes fn.
func (c *Context) Run(name string, fn func(ctx context.Context) (interface{}, error), out interface{}) error {
	if recorded, ok := c.exec.Journal[name]; ok {
		if out == nil {
			return nil
		}
		return extErrors.Wrap(json.Unmarshal(recorded, out), "Cannot decode recorded step result")
	}

	result, err := fn(c.ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode step result")
	}
	c.exec.Journal[name] = encoded
	if err := c.persist(); err != nil {
		return err
	}

	if out != nil {
		return extErrors.Wrap(json.Unmarshal(encoded, out), "Cannot decode step result")
	}
	return nil
}

// SleepUntil durably parks the execution until t, unwinding with ErrSuspended.
// A sleep that already elapsed (or was already taken on a previous run) falls
// through immediately, so handlers replay past it deterministically.
func (c *Context) SleepUntil(name string, t time.Time) error {
	if _, ok := c.exec.Journal[name]; ok {
		return nil
	}
	c.exec.Journal[name] = json.RawMessage("true")
	if !t.After(c.engine.Clock()) {
		// already due, no need to park
		return c.persist()
	}
	wakeAt := t
	c.exec.WakeAt = &wakeAt
	if err := c.persist(); err != nil {
		return err
	}
	return ErrSuspended
}

func (c *Context) persist() error {
	return c.engine.save(c.ctx, c.exec)
}
