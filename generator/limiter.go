package generator

import (
	"context"
	"sync"
)

const (
	// outcomeWindow is the number of recent provider calls considered when
	// deciding whether to shrink concurrency.
	outcomeWindow = 10

	// rateLimitTrip is the number of rate-limit rejections within the window
	// that halves the effective concurrency ceiling.
	rateLimitTrip = 2
)

// adaptiveLimiter is a semaphore whose capacity only shrinks. Sustained
// rate-limit rejections within a sliding window halve the effective limit
// for the remainder of the run; the limit is never raised back. Each
// generation run builds a fresh limiter, so the next run starts at the
// configured ceiling again.
type adaptiveLimiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	inFlight int

	window []bool // true = rate-limit rejection
	filled int
	next   int

	// onReduce, if non-nil, is invoked outside the lock after each reduction.
	onReduce func(newLimit int)
}

func newAdaptiveLimiter(limit int, onReduce func(int)) *adaptiveLimiter {
	if limit < 1 {
		limit = 1
	}
	l := &adaptiveLimiter{
		limit:    limit,
		window:   make([]bool, outcomeWindow),
		onReduce: onReduce,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until a slot is available under the current effective limit
// or ctx is done.
func (l *adaptiveLimiter) Acquire(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.cond.Broadcast()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inFlight >= l.limit {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.cond.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	l.inFlight++
	return nil
}

// Release frees a slot.
func (l *adaptiveLimiter) Release() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Observe records the outcome of one provider call. When rateLimitTrip of
// the last outcomeWindow calls were rate-limit rejections, the effective
// limit is halved (floor 1) and the window is cleared so one burst of
// rejections causes one reduction.
func (l *adaptiveLimiter) Observe(rateLimited bool) {
	l.mu.Lock()

	l.window[l.next] = rateLimited
	l.next = (l.next + 1) % len(l.window)
	if l.filled < len(l.window) {
		l.filled++
	}

	hits := 0
	for i := 0; i < l.filled; i++ {
		if l.window[i] {
			hits++
		}
	}
	if hits < rateLimitTrip || l.limit <= 1 {
		l.mu.Unlock()
		return
	}

	l.limit /= 2
	if l.limit < 1 {
		l.limit = 1
	}
	newLimit := l.limit
	l.window = make([]bool, outcomeWindow)
	l.filled = 0
	l.next = 0
	l.cond.Broadcast()
	l.mu.Unlock()

	if l.onReduce != nil {
		l.onReduce(newLimit)
	}
}

// Limit returns the current effective concurrency ceiling.
func (l *adaptiveLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}
