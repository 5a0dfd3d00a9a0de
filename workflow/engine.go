package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zllovesuki/subtrack/spec"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSuspended is the sentinel a handler unwinds with when its execution
// parked itself until a wall-clock wake-up time. It is not a failure.
var ErrSuspended = errors.New("workflow: execution suspended")

// Handler runs one segment of an execution, from the top. It must be
// deterministic outside of Context.Run steps, and must propagate ErrSuspended
// unchanged when a Context method returns it.
type Handler func(c *Context, subjectID string) error

// staleRunningAfter is how long an execution may sit in Running before it is
// presumed orphaned by a crashed worker and becomes claimable again
const staleRunningAfter = 10 * time.Minute

// EngineOptions contains the configuration for the Engine
type EngineOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Clock  func() time.Time
}

// Engine stores, claims, and resumes durable executions
type Engine struct {
	EngineOptions
	handlers map[spec.TaskKind]Handler
}

// NewEngine returns a durable execution Engine backed by the database
func NewEngine(option EngineOptions) (*Engine, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Clock == nil {
		option.Clock = time.Now
	}
	if err := option.DB.AutoMigrate(&Execution{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize workflow.Engine")
	}
	return &Engine{
		EngineOptions: option,
		handlers:      make(map[spec.TaskKind]Handler),
	}, nil
}

// Register binds a handler to a task kind. Workers must register every kind
// they are willing to run before calling Run or RunDue.
func (e *Engine) Register(kind spec.TaskKind, h Handler) {
	e.handlers[kind] = h
}

// Trigger durably records a new execution. It does not run it; the caller
// (or the next RunDue tick) does.
func (e *Engine) Trigger(ctx context.Context, kind spec.TaskKind, subjectID string) (*Execution, error) {
	if len(subjectID) == 0 {
		return nil, fmt.Errorf("empty SubjectID is invalid")
	}
	exec := &Execution{
		ID:        uuid.New().String(),
		Kind:      string(kind),
		SubjectID: subjectID,
		Status:    StatusPending,
		Journal:   Journal{},
	}
	result := e.DB.WithContext(ctx).Create(exec)
	if result.Error != nil {
		e.Logger.Error("Unable to create new execution in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create execution")
	}
	return exec, nil
}

// claim atomically flips a runnable execution to Running. Concurrent workers
// race on the row update; exactly one wins.
func (e *Engine) claim(ctx context.Context, id string) (bool, error) {
	staleBefore := e.Clock().Add(-staleRunningAfter)
	result := e.DB.WithContext(ctx).Model(&Execution{}).
		Where("id = ?", id).
		Where("(status IN ? OR (status = ? AND updated_at < ?))",
			[]string{string(StatusPending), string(StatusSleeping)},
			string(StatusRunning), staleBefore,
		).
		Update("status", StatusRunning)
	if result.Error != nil {
		return false, extErrors.Wrap(result.Error, "Cannot claim execution")
	}
	return result.RowsAffected == 1, nil
}

// Run claims the execution and runs its handler until it completes, fails,
// or suspends. Returns nil when somebody else already holds the claim.
func (e *Engine) Run(ctx context.Context, id string) error {
	claimed, err := e.claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	var exec Execution
	result := e.DB.WithContext(ctx).First(&exec, "id = ?", id)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Cannot load claimed execution")
	}

	logger := e.Logger.With(
		zap.String("ExecutionID", exec.ID),
		zap.String("Kind", exec.Kind),
		zap.String("SubjectID", exec.SubjectID),
	)

	handler, ok := e.handlers[spec.TaskKind(exec.Kind)]
	if !ok {
		logger.Error("No handler registered for execution kind")
		exec.Status = StatusFailed
		exec.WakeAt = nil
		e.save(ctx, &exec)
		return fmt.Errorf("no handler registered for kind %s", exec.Kind)
	}

	c := &Context{
		ctx:    ctx,
		engine: e,
		exec:   &exec,
	}

	runErr := handler(c, exec.SubjectID)
	switch {
	case errors.Is(runErr, ErrSuspended):
		exec.Status = StatusSleeping
		return e.save(ctx, &exec)
	case runErr != nil:
		logger.Error("Execution failed",
			zap.Error(runErr),
		)
		exec.Status = StatusFailed
		exec.WakeAt = nil
		if err := e.save(ctx, &exec); err != nil {
			return err
		}
		return runErr
	default:
		exec.Status = StatusCompleted
		exec.WakeAt = nil
		return e.save(ctx, &exec)
	}
}

// RunDue resumes every execution whose wake-up time has arrived, plus any
// left Running by a crashed worker. Individual failures do not stop the sweep.
func (e *Engine) RunDue(ctx context.Context) error {
	now := e.Clock()
	staleBefore := now.Add(-staleRunningAfter)

	ids := make([]string, 0, 16)
	result := e.DB.WithContext(ctx).Model(&Execution{}).
		Where(
			"(status = ? OR (status = ? AND wake_at <= ?) OR (status = ? AND updated_at < ?))",
			string(StatusPending),
			string(StatusSleeping), now,
			string(StatusRunning), staleBefore,
		).
		Order("wake_at").
		Pluck("id", &ids)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Cannot query due executions")
	}

	for _, id := range ids {
		if err := e.Run(ctx, id); err != nil {
			e.Logger.Error("Unable to run due execution",
				zap.String("ExecutionID", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// GetBySubject returns the executions recorded for a subject, newest first
func (e *Engine) GetBySubject(ctx context.Context, kind spec.TaskKind, subjectID string) ([]Execution, error) {
	results := make([]Execution, 0, 1)
	result := e.DB.WithContext(ctx).
		Order("created_at desc").
		Where("kind = ?", string(kind)).
		Find(&results, "subject_id = ?", subjectID)
	if result.Error != nil {
		e.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

func (e *Engine) save(ctx context.Context, exec *Execution) error {
	result := e.DB.WithContext(ctx).Save(exec)
	if result.Error != nil {
		e.Logger.Error("Unable to save execution",
			zap.String("ExecutionID", exec.ID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save execution")
	}
	return nil
}
