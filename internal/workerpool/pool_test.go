package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
)

func newTestMetrics() *metrics.Registry {
	return metrics.New(prometheus.NewRegistry())
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := New(4, 32, newTestMetrics())
	defer p.Shutdown()

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	wg.Add(10)

	for i := 0; i < 10; i++ {
		i := i
		err := p.Submit(func(ctx context.Context, udata any) {
			defer wg.Done()
			mu.Lock()
			seen[udata.(int)] = true
			mu.Unlock()
		}, i)
		assert.NoError(t, err)
	}

	wg.Wait()
	assert.Len(t, seen, 10)
}

func TestPoolNeverExceedsConfiguredConcurrency(t *testing.T) {
	const n = 3
	p := New(n, 32, newTestMetrics())
	defer p.Shutdown()

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	var wg sync.WaitGroup
	wg.Add(10)

	for i := 0; i < 10; i++ {
		_ = p.Submit(func(ctx context.Context, udata any) {
			defer wg.Done()
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		}, nil)
	}

	wg.Wait()
	assert.LessOrEqual(t, maxRunning, n)
}

func TestPoolSubmitAfterShutdownFails(t *testing.T) {
	p := New(2, 4, newTestMetrics())
	p.Shutdown()

	err := p.Submit(func(ctx context.Context, udata any) {}, nil)
	assert.ErrorIs(t, err, bot.ErrPoolClosed)
}

func TestPoolSubmitIncrementsMetrics(t *testing.T) {
	m := newTestMetrics()
	p := New(2, 4, m)
	defer p.Shutdown()

	require.NoError(t, p.Submit(func(ctx context.Context, udata any) {}, nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsSubmitted))

	p.Shutdown()
	assert.Error(t, p.Submit(func(ctx context.Context, udata any) {}, nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsRejected))
}

func TestPoolSubmitFailsWhenQueueFull(t *testing.T) {
	p := New(1, 1, newTestMetrics())
	defer p.Shutdown()

	block := make(chan struct{})
	_ = p.Submit(func(ctx context.Context, udata any) { <-block }, nil)

	// Give the single worker time to pick up the blocking job so the
	// queue capacity of 1 is the only remaining slack.
	time.Sleep(10 * time.Millisecond)
	_ = p.Submit(func(ctx context.Context, udata any) {}, nil) // fills queue capacity
	err := p.Submit(func(ctx context.Context, udata any) {}, nil)

	close(block)
	assert.Error(t, err)
}
