package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// TranscribeConfig controls the transcription role.
type TranscribeConfig struct {
	Limit     int
	ModelSize string
	Options   types.ASROptions
}

// TranscribeWorker turns AudioReady rows into transcripts.
type TranscribeWorker struct {
	Common
	cfg         TranscribeConfig
	locator     Locator
	transcriber Transcriber
	archiver    Archiver
}

// NewTranscribeWorker creates a transcribe worker. archiver may be nil.
func NewTranscribeWorker(common Common, cfg TranscribeConfig, locator Locator, transcriber Transcriber, archiver Archiver) *TranscribeWorker {
	return &TranscribeWorker{
		Common:      common,
		cfg:         cfg,
		locator:     locator,
		transcriber: transcriber,
		archiver:    archiver,
	}
}

// RunPass scans the table once and transcribes up to Limit rows whose audio
// is visible. Rows whose audio has not propagated yet are left untouched.
func (w *TranscribeWorker) RunPass(ctx context.Context) (PassResult, error) {
	started := time.Now()
	res, items, logger, err := w.beginPass(ctx, RoleTranscribe)
	if err != nil {
		return res, err
	}
	defer func() { w.endPass(RoleTranscribe, logger, res, started) }()

	for _, item := range items {
		if res.Processed >= w.cfg.Limit {
			logger.Info().Int("limit", w.cfg.Limit).Msg("Per-pass budget reached")
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !TranscribeEligible(item) {
			continue
		}
		res.Eligible++
		if err := w.processRow(ctx, rowLogger(logger, item), &res, item); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (w *TranscribeWorker) processRow(ctx context.Context, logger zerolog.Logger, res *PassResult, item WorkItem) error {
	item, release, ok := w.claim(ctx, logger, RoleTranscribe, res, item, TranscribeEligible)
	if !ok {
		return nil
	}
	defer release()

	artifact, found, err := w.locator.Locate(ctx, item.ItemID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("Could not look up audio, will retry next pass")
		res.Skipped++
		return nil
	}
	if !found {
		logger.Warn().Msg("Audio not visible yet, possibly sync delay; skipping")
		res.Skipped++
		return nil
	}
	if artifact.Temporary {
		defer cleanupTempFile(logger, artifact.Path)
	}

	logger.Info().Str("audio", artifact.Path).Msg("Transcribing")
	start := time.Now()

	result, asrErr := w.transcriber.Transcribe(ctx, artifact.Path, w.cfg.Options)
	if asrErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if asrErr == nil && result == nil {
		asrErr = errNoResult
	}

	var status Status
	if asrErr != nil {
		asrErr = fmt.Errorf("transcribe: %w", asrErr)
		status, err = w.advance(ctx, item, Event{Kind: EventTranscriptionFailed})
	} else {
		mark := types.ASRMark(w.cfg.ModelSize)
		var rejected error
		status, rejected, err = w.complete(ctx, item, types.JoinSegments(result.Segments), Event{Kind: EventTranscribed, Mark: mark})
		if rejected != nil {
			asrErr = fmt.Errorf("store transcript: %w", rejected)
		} else if err == nil && w.archiver != nil {
			if path, archErr := w.archiver.SaveTranscript(item.ItemID, mark, result); archErr != nil {
				logger.Warn().Err(archErr).Msg("Local transcript archive failed")
			} else {
				logger.Debug().Str("path", path).Msg("Transcript archived")
			}
		}
	}
	if errors.Is(err, ErrIllegalTransition) {
		w.skipStale(ctx, logger, RoleTranscribe, res, item, err)
		return nil
	}
	if err != nil {
		return err
	}

	res.Processed++
	outcome := types.OutcomeSucceeded
	if asrErr != nil {
		res.Failed++
		outcome = types.OutcomeFailed
		logger.Error().Err(asrErr).Str("status", status.String()).Msg("Transcription failed")
	} else {
		res.Succeeded++
		logger.Info().
			Str("status", status.String()).
			Str("language", result.Language).
			Int("segments", len(result.Segments)).
			Msg("Transcript written")
	}
	w.record(ctx, logger, RoleTranscribe, res.PassID, item, outcome, status, asrErr, time.Since(start))
	return nil
}
