package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Passer is anything that can run one pass over the table.
type Passer interface {
	RunPass(ctx context.Context) (PassResult, error)
}

// Schedule is the pair of waits between passes: Cadence after a normal pass,
// ErrorBackoff after a pass that failed.
type Schedule struct {
	Cadence      time.Duration
	ErrorBackoff time.Duration
}

// Default schedules per role.
var (
	FetchSchedule      = Schedule{Cadence: 600 * time.Second, ErrorBackoff: 300 * time.Second}
	TranscribeSchedule = Schedule{Cadence: 300 * time.Second, ErrorBackoff: 300 * time.Second}
	PipelineSchedule   = Schedule{Cadence: 600 * time.Second, ErrorBackoff: 300 * time.Second}
)

// Driver runs a role's passes on a schedule until its context ends.
type Driver struct {
	role     string
	worker   Passer
	schedule Schedule
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a driver for worker.
func NewDriver(role string, worker Passer, schedule Schedule, logger zerolog.Logger) *Driver {
	return &Driver{
		role:     role,
		worker:   worker,
		schedule: schedule,
		logger:   logger.With().Str("role", role).Logger(),
		sleep:    sleepContext,
	}
}

// RunOnce executes a single pass. A panic inside the pass is reported as an error.
func (d *Driver) RunOnce(ctx context.Context) (res PassResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Pass panicked")
			err = fmt.Errorf("pass panicked: %v", r)
		}
	}()
	return d.worker.RunPass(ctx)
}

// Run loops until ctx is cancelled. Pass failures never end the loop; they
// only switch the next wait to the error backoff.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info().
		Dur("cadence", d.schedule.Cadence).
		Dur("error_backoff", d.schedule.ErrorBackoff).
		Msg("Worker started")

	for {
		wait := d.schedule.Cadence
		if _, err := d.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			passErrors.WithLabelValues(d.role).Inc()
			d.logger.Error().Err(err).Dur("retry_in", d.schedule.ErrorBackoff).Msg("Pass failed")
			wait = d.schedule.ErrorBackoff
		} else {
			d.logger.Info().Dur("next_in", wait).Msg("Sleeping until next pass")
		}
		if err := d.sleep(ctx, wait); err != nil {
			break
		}
	}

	d.logger.Info().Msg("Worker stopped")
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
