package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/smolentsev/shopbot/pkg/logger"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
	runner, err := New(logg, nil)
	require.NoError(t, err)
	return runner
}

func TestSubmitRunsTask(t *testing.T) {
	runner := newTestRunner(t)

	var ran atomic.Bool
	runner.Submit(context.Background(), "unit", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	require.NoError(t, runner.Wait(context.Background()))
	require.True(t, ran.Load())
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	runner := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawCancelled atomic.Bool
	runner.Submit(ctx, "detached", func(taskCtx context.Context) error {
		if taskCtx.Err() != nil {
			sawCancelled.Store(true)
		}
		return nil
	})

	require.NoError(t, runner.Wait(context.Background()))
	require.False(t, sawCancelled.Load(), "task context must not inherit caller cancellation")
}

func TestSubmitRecoversPanic(t *testing.T) {
	runner := newTestRunner(t)

	runner.Submit(context.Background(), "explode", func(ctx context.Context) error {
		panic("boom")
	})

	require.NoError(t, runner.Wait(context.Background()))
}

func TestSubmitSwallowsErrors(t *testing.T) {
	runner := newTestRunner(t)

	runner.Submit(context.Background(), "fails", func(ctx context.Context) error {
		return errors.New("nope")
	})

	require.NoError(t, runner.Wait(context.Background()))
}

func TestWaitHonorsContextDeadline(t *testing.T) {
	runner := newTestRunner(t)

	release := make(chan struct{})
	runner.Submit(context.Background(), "slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, runner.Wait(waitCtx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, runner.Wait(context.Background()))
}
