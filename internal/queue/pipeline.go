package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// DefaultCaptionLanguages is the caption preference order, tried as one request.
var DefaultCaptionLanguages = []string{"zh-Hans", "zh-Hant", "en"}

// PipelineConfig controls the combined single-process role.
type PipelineConfig struct {
	Limit        int
	Languages    []string
	CaptionsOnly bool
}

// PipelineWorker tries platform captions first and falls back to local
// speech recognition for every unfinished row.
type PipelineWorker struct {
	Common
	cfg      PipelineConfig
	captions CaptionSource
	fallback *ASRFallback
	archiver Archiver
}

// NewPipelineWorker creates a combined worker. fallback may be nil only in
// captions-only mode.
func NewPipelineWorker(common Common, cfg PipelineConfig, captions CaptionSource, fallback *ASRFallback, archiver Archiver) *PipelineWorker {
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultCaptionLanguages
	}
	return &PipelineWorker{
		Common:   common,
		cfg:      cfg,
		captions: captions,
		fallback: fallback,
		archiver: archiver,
	}
}

// RunPass scans the table once and handles up to Limit rows.
func (w *PipelineWorker) RunPass(ctx context.Context) (PassResult, error) {
	started := time.Now()
	res, items, logger, err := w.beginPass(ctx, RolePipeline)
	if err != nil {
		return res, err
	}
	defer func() { w.endPass(RolePipeline, logger, res, started) }()

	for _, item := range items {
		if res.Processed >= w.cfg.Limit {
			logger.Info().Int("limit", w.cfg.Limit).Msg("Per-pass budget reached")
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !PipelineEligible(item, w.cfg.CaptionsOnly) {
			continue
		}
		res.Eligible++
		if err := w.processRow(ctx, rowLogger(logger, item), &res, item); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (w *PipelineWorker) processRow(ctx context.Context, logger zerolog.Logger, res *PassResult, item WorkItem) error {
	item, release, ok := w.claim(ctx, logger, RolePipeline, res, item, func(it WorkItem) bool {
		return PipelineEligible(it, w.cfg.CaptionsOnly)
	})
	if !ok {
		return nil
	}
	defer release()

	logger.Info().Int("progress", res.Processed+1).Int("limit", w.cfg.Limit).Msg("Processing row")
	start := time.Now()

	var (
		status Status
		rowErr error
		err    error
	)

	captions := w.captions.Fetch(ctx, item.ItemID, w.cfg.Languages)
	switch {
	case captions.Found:
		captionLookups.WithLabelValues("found").Inc()
		logger.Info().Str("language", captions.Language).Msg("Official captions found")
		status, rowErr, err = w.complete(ctx, item, captions.Text, Event{Kind: EventCaptionFound})

	case w.cfg.CaptionsOnly || w.fallback == nil:
		captionLookups.WithLabelValues("unavailable").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug().AnErr("reason", captions.Reason).Msg("Captions unavailable")
		rowErr = captions.Reason
		status, err = w.advance(ctx, item, Event{Kind: EventCaptionsMissing})

	default:
		captionLookups.WithLabelValues("unavailable").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug().AnErr("reason", captions.Reason).Msg("Captions unavailable, falling back to speech recognition")
		text, mark, result, asrErr := w.fallback.Produce(ctx, logger, item)
		if asrErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if asrErr != nil {
			rowErr = asrErr
			status, err = w.advance(ctx, item, failureEvent(asrErr))
			break
		}
		status, rowErr, err = w.complete(ctx, item, text, Event{Kind: EventTranscribed, Mark: mark})
		if err == nil && rowErr == nil && w.archiver != nil {
			if _, archErr := w.archiver.SaveTranscript(item.ItemID, mark, result); archErr != nil {
				logger.Warn().Err(archErr).Msg("Local transcript archive failed")
			}
		}
	}

	if errors.Is(err, ErrIllegalTransition) {
		w.skipStale(ctx, logger, RolePipeline, res, item, err)
		return nil
	}
	if err != nil {
		return err
	}

	res.Processed++
	outcome := types.OutcomeSucceeded
	if status.Stage == StageDone {
		res.Succeeded++
		logger.Info().Str("status", status.String()).Msg("Row complete")
	} else {
		res.Failed++
		outcome = types.OutcomeFailed
		if status.IsFailure() {
			logger.Error().Err(rowErr).Str("status", status.String()).Msg("Row failed")
		} else {
			logger.Info().Str("status", status.String()).Msg("No captions for row")
		}
	}
	w.record(ctx, logger, RolePipeline, res.PassID, item, outcome, status, rowErr, time.Since(start))
	return nil
}

func failureEvent(err error) Event {
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Step == StepDownload {
		return Event{Kind: EventDownloadFailed}
	}
	return Event{Kind: EventTranscriptionFailed}
}
