package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/zllovesuki/subtrack/spec"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testKind spec.TaskKind = "engine-test"

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func testEngine(t *testing.T, clock *fakeClock) *Engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	engine, err := NewEngine(EngineOptions{
		DB:     db,
		Logger: zap.NewNop(),
		Clock:  clock.Now,
	})
	require.NoError(t, err)

	return engine
}

func loadExecution(t *testing.T, engine *Engine, id string) *Execution {
	t.Helper()

	var exec Execution
	require.NoError(t, engine.DB.First(&exec, "id = ?", id).Error)
	return &exec
}

func TestTriggerRequiresSubject(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	engine := testEngine(t, clock)

	_, err := engine.Trigger(context.Background(), testKind, "")
	require.Error(t, err)
}

func TestRunExecutesStepsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	engine := testEngine(t, clock)

	calls := 0
	engine.Register(testKind, func(c *Context, subjectID string) error {
		return c.Run("step", func(ctx context.Context) (interface{}, error) {
			calls++
			return subjectID, nil
		}, nil)
	})

	exec, err := engine.Trigger(ctx, testKind, "subject-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, exec.Status)

	require.NoError(t, engine.Run(ctx, exec.ID))
	require.Equal(t, 1, calls)

	stored := loadExecution(t, engine, exec.ID)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Nil(t, stored.WakeAt)

	// a completed execution is not claimable again
	require.NoError(t, engine.Run(ctx, exec.ID))
	require.Equal(t, 1, calls)
}

func TestSleepUntilSuspendsAndResumes(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	wake := t0.Add(time.Hour)
	clock := &fakeClock{now: t0}
	engine := testEngine(t, clock)

	var before, after int
	engine.Register(testKind, func(c *Context, subjectID string) error {
		if err := c.Run("before", func(ctx context.Context) (interface{}, error) {
			before++
			return nil, nil
		}, nil); err != nil {
			return err
		}
		if err := c.SleepUntil("nap", wake); err != nil {
			return err
		}
		return c.Run("after", func(ctx context.Context) (interface{}, error) {
			after++
			return nil, nil
		}, nil)
	})

	exec, err := engine.Trigger(ctx, testKind, "subject-1")
	require.NoError(t, err)
	require.NoError(t, engine.Run(ctx, exec.ID))
	require.Equal(t, 1, before)
	require.Equal(t, 0, after)

	stored := loadExecution(t, engine, exec.ID)
	require.Equal(t, StatusSleeping, stored.Status)
	require.NotNil(t, stored.WakeAt)
	require.True(t, stored.WakeAt.Equal(wake))

	// wake-up time has not arrived, the sweep leaves it alone
	require.NoError(t, engine.RunDue(ctx))
	require.Equal(t, 0, after)
	require.Equal(t, StatusSleeping, loadExecution(t, engine, exec.ID).Status)

	clock.now = wake
	require.NoError(t, engine.RunDue(ctx))
	require.Equal(t, 1, before)
	require.Equal(t, 1, after)
	require.Equal(t, StatusCompleted, loadExecution(t, engine, exec.ID).Status)
}

func TestRunReplaysRecordedStepResult(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	wake := t0.Add(time.Hour)
	clock := &fakeClock{now: t0}
	engine := testEngine(t, clock)

	type stepResult struct {
		Value string `json:"value"`
	}

	computed := 0
	seen := make([]string, 0, 1)
	engine.Register(testKind, func(c *Context, subjectID string) error {
		var res stepResult
		if err := c.Run("compute", func(ctx context.Context) (interface{}, error) {
			computed++
			return stepResult{Value: "computed-" + subjectID}, nil
		}, &res); err != nil {
			return err
		}
		if err := c.SleepUntil("nap", wake); err != nil {
			return err
		}
		seen = append(seen, res.Value)
		return nil
	})

	exec, err := engine.Trigger(ctx, testKind, "subject-2")
	require.NoError(t, err)
	require.NoError(t, engine.Run(ctx, exec.ID))
	require.Equal(t, 1, computed)
	require.Empty(t, seen)

	clock.now = wake
	require.NoError(t, engine.RunDue(ctx))
	require.Equal(t, 1, computed)
	require.Equal(t, []string{"computed-subject-2"}, seen)
}

func TestFailedExecutionIsNotRetried(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	engine := testEngine(t, clock)

	calls := 0
	engine.Register(testKind, func(c *Context, subjectID string) error {
		calls++
		return context.DeadlineExceeded
	})

	exec, err := engine.Trigger(ctx, testKind, "subject-1")
	require.NoError(t, err)
	require.Error(t, engine.Run(ctx, exec.ID))
	require.Equal(t, 1, calls)
	require.Equal(t, StatusFailed, loadExecution(t, engine, exec.ID).Status)

	require.NoError(t, engine.RunDue(ctx))
	require.Equal(t, 1, calls)
}

func TestRunDueReclaimsStaleRunning(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	engine := testEngine(t, clock)

	calls := 0
	engine.Register(testKind, func(c *Context, subjectID string) error {
		calls++
		return nil
	})

	exec, err := engine.Trigger(ctx, testKind, "subject-1")
	require.NoError(t, err)

	// simulate a worker that claimed the execution and crashed long ago
	require.NoError(t, engine.DB.Model(&Execution{}).
		Where("id = ?", exec.ID).
		UpdateColumn("status", StatusRunning).Error)
	require.NoError(t, engine.DB.Model(&Execution{}).
		Where("id = ?", exec.ID).
		UpdateColumn("updated_at", t0.Add(-time.Hour)).Error)

	require.NoError(t, engine.RunDue(ctx))
	require.Equal(t, 1, calls)
	require.Equal(t, StatusCompleted, loadExecution(t, engine, exec.ID).Status)
}

func TestGetBySubject(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	engine := testEngine(t, clock)

	_, err := engine.Trigger(ctx, testKind, "subject-1")
	require.NoError(t, err)
	_, err = engine.Trigger(ctx, testKind, "subject-1")
	require.NoError(t, err)
	_, err = engine.Trigger(ctx, testKind, "subject-2")
	require.NoError(t, err)

	results, err := engine.GetBySubject(ctx, testKind, "subject-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, exec := range results {
		require.Equal(t, "subject-1", exec.SubjectID)
	}
}
