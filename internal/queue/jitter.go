package queue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Governor spaces out network-sensitive downloads with a uniformly random
// delay in [Min, Max], both bounds inclusive.
type Governor struct {
	min time.Duration
	max time.Duration

	mu  sync.Mutex
	rng *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor creates a governor. A nil rng uses a randomly seeded source.
func NewGovernor(minDelay, maxDelay time.Duration, rng *rand.Rand) (*Governor, error) {
	if minDelay < 0 || maxDelay < 0 {
		return nil, fmt.Errorf("jitter bounds must be non-negative (min=%s, max=%s)", minDelay, maxDelay)
	}
	if minDelay > maxDelay {
		return nil, fmt.Errorf("jitter min %s exceeds max %s", minDelay, maxDelay)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Governor{min: minDelay, max: maxDelay, rng: rng, sleep: sleepContext}, nil
}

// Delay samples the next delay.
func (g *Governor) Delay() time.Duration {
	span := int64(g.max - g.min)
	if span == 0 {
		return g.min
	}
	g.mu.Lock()
	n := g.rng.Int64N(span + 1)
	g.mu.Unlock()
	return g.min + time.Duration(n)
}

// Wait blocks for a sampled delay or until ctx is done, returning the delay used.
func (g *Governor) Wait(ctx context.Context) (time.Duration, error) {
	d := g.Delay()
	jitterDelay.Observe(d.Seconds())
	return d, g.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
