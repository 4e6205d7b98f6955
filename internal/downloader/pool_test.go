package downloader

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"xmediagrab/pkg/logger"
)

func TestWorkerPoolProcessesEveryJob(t *testing.T) {
	var processed int32
	pool := NewWorkerPool(context.Background(), 3, func(ctx context.Context, job Job) FileResult {
		atomic.AddInt32(&processed, 1)
		return FileResult{Index: job.Index, URL: job.URL, Status: StatusDownloaded}
	}, logger.NewNopLogger())
	pool.Start()

	var results []FileResult
	done := make(chan struct{})
	go func() {
		for r := range pool.Results() {
			results = append(results, r)
		}
		close(done)
	}()

	for i := 1; i <= 10; i++ {
		assert.NoError(t, pool.Submit(Job{Index: i, URL: fmt.Sprintf("https://pbs.twimg.com/media/%d.jpg", i)}))
	}
	pool.Stop()
	<-done

	assert.Len(t, results, 10)
	assert.Equal(t, int32(10), atomic.LoadInt32(&processed))
	seen := map[int]bool{}
	for _, r := range results {
		seen[r.Index] = true
	}
	assert.Len(t, seen, 10)
}

func TestWorkerPoolConcurrency(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 5, func(ctx context.Context, job Job) FileResult {
		time.Sleep(100 * time.Millisecond)
		return FileResult{Index: job.Index}
	}, logger.NewNopLogger())
	pool.Start()

	done := make(chan int)
	go func() {
		n := 0
		for range pool.Results() {
			n++
		}
		done <- n
	}()

	start := time.Now()
	for i := 1; i <= 10; i++ {
		assert.NoError(t, pool.Submit(Job{Index: i}))
	}
	pool.Stop()

	assert.Equal(t, 10, <-done)
	// five workers finish ten 100ms jobs in about two rounds
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestWorkerPoolSubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(ctx, 1, func(ctx context.Context, job Job) FileResult {
		return FileResult{Index: job.Index}
	}, logger.NewNopLogger())
	pool.Start()
	cancel()

	// fill the buffer, then the next submit must observe the cancellation
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = pool.Submit(Job{Index: i})
	}
	assert.ErrorIs(t, err, context.Canceled)

	go func() {
		for range pool.Results() {
		}
	}()
	pool.Stop()
}
