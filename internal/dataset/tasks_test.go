package dataset

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunnerBoundsConcurrency(t *testing.T) {
	runner := NewTaskRunner(2, nil)
	defer runner.Shutdown(context.Background())

	var current, peak atomic.Int32
	release := make(chan struct{})
	tasks := make([]*Task, 0, 6)

	for i := 0; i < 6; i++ {
		task, err := runner.Submit(fmt.Sprintf("t%d", i), func(ctx context.Context) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return nil
		})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	require.Eventually(t, func() bool { return runner.InFlight() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 6, runner.Pending())

	close(release)
	runner.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Zero(t, runner.Pending())
	for _, task := range tasks {
		<-task.Done()
		assert.NoError(t, task.Err())
	}
}

func TestTaskRunnerReportsErrorsAndPanics(t *testing.T) {
	runner := NewTaskRunner(1, nil)
	defer runner.Shutdown(context.Background())

	failing, err := runner.Submit("fail", func(ctx context.Context) error { return fmt.Errorf("nope") })
	require.NoError(t, err)
	panicking, err := runner.Submit("panic", func(ctx context.Context) error { panic("kaboom") })
	require.NoError(t, err)
	after, err := runner.Submit("after", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	runner.Wait()

	assert.EqualError(t, failing.Err(), "nope")
	require.Error(t, panicking.Err())
	assert.Contains(t, panicking.Err().Error(), "kaboom")
	assert.NoError(t, after.Err(), "a panic must not take the runner down")
	assert.Equal(t, "panic", panicking.ID())
}

func TestTaskRunnerShutdownRejectsNewWork(t *testing.T) {
	runner := NewTaskRunner(1, nil)

	var ran atomic.Bool
	_, err := runner.Submit("first", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.True(t, ran.Load(), "shutdown waits for submitted tasks")

	_, err = runner.Submit("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

func TestTaskRunnerShutdownDeadlineCancels(t *testing.T) {
	runner := NewTaskRunner(1, nil)

	blocked, err := runner.Submit("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, runner.Shutdown(ctx), context.DeadlineExceeded)

	assert.ErrorIs(t, blocked.Err(), context.Canceled)
	assert.Zero(t, runner.Pending())
}
