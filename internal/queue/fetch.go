package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// FetchConfig controls the download role.
type FetchConfig struct {
	Limit     int
	WorkDir   string
	Bitrate   string
	RateLimit string
}

// FetchWorker downloads audio for pending rows and marks them AudioReady.
type FetchWorker struct {
	Common
	cfg        FetchConfig
	downloader Downloader
	relay      Relay
	governor   *Governor
}

// NewFetchWorker creates a fetch worker. relay may be nil, in which case
// artifacts stay in the working directory.
func NewFetchWorker(common Common, cfg FetchConfig, downloader Downloader, relay Relay, governor *Governor) *FetchWorker {
	return &FetchWorker{
		Common:     common,
		cfg:        cfg,
		downloader: downloader,
		relay:      relay,
		governor:   governor,
	}
}

// RunPass scans the table once and downloads up to Limit rows.
func (w *FetchWorker) RunPass(ctx context.Context) (PassResult, error) {
	started := time.Now()
	res, items, logger, err := w.beginPass(ctx, RoleFetch)
	if err != nil {
		return res, err
	}
	defer func() { w.endPass(RoleFetch, logger, res, started) }()

	if err := os.MkdirAll(w.cfg.WorkDir, 0755); err != nil {
		return res, fmt.Errorf("create work dir: %w", err)
	}

	for _, item := range items {
		if res.Processed >= w.cfg.Limit {
			logger.Info().Int("limit", w.cfg.Limit).Msg("Per-pass budget reached")
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !FetchEligible(item) {
			continue
		}
		res.Eligible++
		if err := w.processRow(ctx, rowLogger(logger, item), &res, item); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (w *FetchWorker) processRow(ctx context.Context, logger zerolog.Logger, res *PassResult, item WorkItem) error {
	item, release, ok := w.claim(ctx, logger, RoleFetch, res, item, FetchEligible)
	if !ok {
		return nil
	}
	defer release()

	logger.Info().Msg("Found pending row")
	start := time.Now()

	ref, fetchErr := w.fetch(ctx, logger, item)
	if fetchErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	ev := Event{Kind: EventDownloaded}
	outcome := types.OutcomeSucceeded
	if fetchErr != nil {
		ev = Event{Kind: EventDownloadFailed}
		outcome = types.OutcomeFailed
	}

	status, err := w.advance(ctx, item, ev)
	if errors.Is(err, ErrIllegalTransition) {
		w.skipStale(ctx, logger, RoleFetch, res, item, err)
		return nil
	}
	if err != nil {
		return err
	}

	res.Processed++
	if fetchErr != nil {
		res.Failed++
		logger.Error().Err(fetchErr).Str("status", status.String()).Msg("Download failed")
	} else {
		res.Succeeded++
		logger.Info().Str("artifact", ref).Msg("Audio ready")
	}
	w.record(ctx, logger, RoleFetch, res.PassID, item, outcome, status, fetchErr, time.Since(start))
	return nil
}

// fetch waits out the jitter delay, downloads the audio and hands it to the
// relay. It returns where the artifact now lives.
func (w *FetchWorker) fetch(ctx context.Context, logger zerolog.Logger, item WorkItem) (string, error) {
	if w.governor != nil {
		delay, err := w.governor.Wait(ctx)
		if err != nil {
			return "", err
		}
		logger.Debug().Dur("delay", delay).Msg("Jitter delay elapsed")
	}

	logger.Info().Str("rate_limit", w.cfg.RateLimit).Msg("Downloading audio")
	localPath, err := w.downloader.Download(ctx, types.DownloadRequest{
		URL:       item.DownloadURL(),
		ItemID:    item.ItemID,
		OutputDir: w.cfg.WorkDir,
		Bitrate:   w.cfg.Bitrate,
		RateLimit: w.cfg.RateLimit,
	})
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	if w.relay == nil {
		return localPath, nil
	}

	ref, err := w.relay.Put(ctx, localPath, ArtifactName(item.ItemID))
	if err != nil {
		cleanupTempFile(logger, localPath)
		return "", fmt.Errorf("relay: %w", err)
	}
	cleanupTempFile(logger, localPath)
	return ref, nil
}
