package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWorkerPool_RunsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(4, zerolog.Nop())
	pool.Start(ctx)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), func() { count.Add(1) })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), count.Load())

	cancel()
	pool.Wait()
}

func TestWorkerPool_DefaultSize(t *testing.T) {
	pool := NewWorkerPool(0, zerolog.Nop())
	assert.Positive(t, pool.Size())
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(1, zerolog.Nop())
	pool.Start(ctx)
	cancel()
	pool.Wait()

	// The buffer has room, so every call must still report the closed pool
	// instead of parking a job nobody will run.
	subCtx, subCancel := context.WithTimeout(context.Background(), time.Second)
	defer subCancel()
	for i := 0; i < 20; i++ {
		err := pool.Submit(subCtx, func() { t.Error("job ran on a stopped pool") })
		require.ErrorIs(t, err, ErrPoolClosed)
	}
}

func TestWorkerPool_QueuedJobsReleasedOnStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(1, zerolog.Nop())
	pool.Start(ctx)

	release := make(chan struct{})
	started := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- pool.Submit(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	queued := make(chan error, 1)
	go func() {
		queued <- pool.Submit(context.Background(), func() {})
	}()
	require.Eventually(t, func() bool { return len(pool.jobs) == 1 }, time.Second, time.Millisecond)

	cancel()
	close(release)

	require.NoError(t, <-first)
	select {
	case err := <-queued:
		// The worker may pick the job up before it notices the cancellation.
		if err != nil {
			require.ErrorIs(t, err, ErrPoolClosed)
		}
	case <-time.After(time.Second):
		t.Fatal("queued submit never returned after the pool stopped")
	}
	pool.Wait()
	assert.Zero(t, len(pool.jobs))
}

func TestWorkerPool_CallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	poolCtx, stop := context.WithCancel(context.Background())
	pool := NewWorkerPool(1, zerolog.Nop())
	pool.Start(poolCtx)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	stop()
	pool.Wait()
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(1, zerolog.Nop())
	pool.Start(ctx)

	require.NoError(t, pool.Submit(context.Background(), func() { panic("boom") }))

	ran := false
	require.NoError(t, pool.Submit(context.Background(), func() { ran = true }))
	assert.True(t, ran)

	cancel()
	pool.Wait()
}
