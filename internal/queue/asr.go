package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

var errNoResult = errors.New("recognizer returned no result")

// Fallback steps
const (
	StepDownload   = "download"
	StepRelay      = "relay"
	StepTranscribe = "transcribe"
)

// StepError reports which fallback step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ASRFallback produces a transcript locally when no captions exist:
// download, optional relay, recognition, join.
type ASRFallback struct {
	Downloader  Downloader
	Relay       Relay
	Transcriber Transcriber
	Governor    *Governor
	WorkDir     string
	Bitrate     string
	RateLimit   string
	ModelSize   string
	Options     types.ASROptions
}

// Produce runs the fallback for one item. No partial text is returned on error.
func (a *ASRFallback) Produce(ctx context.Context, logger zerolog.Logger, item WorkItem) (string, string, *types.TranscriptionResult, error) {
	localPath, err := a.audio(ctx, logger, item)
	if err != nil {
		return "", "", nil, &StepError{Step: StepDownload, Err: err}
	}

	if a.Relay != nil {
		ref, err := a.Relay.Put(ctx, localPath, ArtifactName(item.ItemID))
		if err != nil {
			return "", "", nil, &StepError{Step: StepRelay, Err: err}
		}
		logger.Info().Str("ref", ref).Msg("Audio relayed to durable storage")
		defer cleanupTempFile(logger, localPath)
	}

	logger.Info().Str("model", a.ModelSize).Msg("Running speech recognition")
	result, err := a.Transcriber.Transcribe(ctx, localPath, a.Options)
	if err == nil && result == nil {
		err = errNoResult
	}
	if err != nil {
		return "", "", nil, &StepError{Step: StepTranscribe, Err: err}
	}
	return types.JoinSegments(result.Segments), types.ASRMark(a.ModelSize), result, nil
}

// audio reuses a previously downloaded file, otherwise waits out the jitter
// delay and downloads.
func (a *ASRFallback) audio(ctx context.Context, logger zerolog.Logger, item WorkItem) (string, error) {
	existing := filepath.Join(a.WorkDir, ArtifactName(item.ItemID))
	if info, err := os.Stat(existing); err == nil && !info.IsDir() && info.Size() > 0 {
		logger.Info().Str("path", existing).Msg("Audio already present, skipping download")
		return existing, nil
	}

	if err := os.MkdirAll(a.WorkDir, 0755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	if a.Governor != nil {
		delay, err := a.Governor.Wait(ctx)
		if err != nil {
			return "", err
		}
		logger.Debug().Dur("delay", delay).Msg("Jitter delay elapsed")
	}
	return a.Downloader.Download(ctx, types.DownloadRequest{
		URL:       item.DownloadURL(),
		ItemID:    item.ItemID,
		OutputDir: a.WorkDir,
		Bitrate:   a.Bitrate,
		RateLimit: a.RateLimit,
	})
}
