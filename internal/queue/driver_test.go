package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPasser struct {
	errs   []error
	calls  int
	panics bool
}

func (p *scriptedPasser) RunPass(ctx context.Context) (PassResult, error) {
	p.calls++
	if p.panics {
		panic("boom")
	}
	if len(p.errs) == 0 {
		return PassResult{}, nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return PassResult{}, err
}

func TestDriverRunOnceRecoversPanic(t *testing.T) {
	d := NewDriver(RoleFetch, &scriptedPasser{panics: true}, FetchSchedule, zerolog.Nop())

	_, err := d.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDriverRunSchedule(t *testing.T) {
	worker := &scriptedPasser{errs: []error{nil, errors.New("sheet unavailable"), nil}}
	sched := Schedule{Cadence: 10 * time.Minute, ErrorBackoff: 5 * time.Minute}
	d := NewDriver(RoleTranscribe, worker, sched, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	d.sleep = func(ctx context.Context, wait time.Duration) error {
		waits = append(waits, wait)
		if len(waits) == 4 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 4, worker.calls)
	assert.Equal(t, []time.Duration{10 * time.Minute, 5 * time.Minute, 10 * time.Minute, 10 * time.Minute}, waits)
}

func TestDriverSurvivesPanics(t *testing.T) {
	worker := &scriptedPasser{panics: true}
	d := NewDriver(RolePipeline, worker, PipelineSchedule, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	d.sleep = func(ctx context.Context, wait time.Duration) error {
		waits = append(waits, wait)
		if len(waits) == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 2, worker.calls)
	assert.Equal(t, []time.Duration{PipelineSchedule.ErrorBackoff, PipelineSchedule.ErrorBackoff}, waits)
}

func TestDriverStopsWhenCancelledMidPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := &cancellingPasser{cancel: cancel}
	d := NewDriver(RoleFetch, worker, FetchSchedule, zerolog.Nop())
	d.sleep = func(ctx context.Context, wait time.Duration) error {
		t.Fatal("driver should not sleep after cancellation")
		return nil
	}

	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 1, worker.calls)
}

type cancellingPasser struct {
	cancel func()
	calls  int
}

func (p *cancellingPasser) RunPass(ctx context.Context) (PassResult, error) {
	p.calls++
	p.cancel()
	return PassResult{}, ctx.Err()
}
