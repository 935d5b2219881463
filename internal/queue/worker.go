package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// Worker role names
const (
	RoleFetch      = "fetch"
	RoleTranscribe = "transcribe"
	RolePipeline   = "pipeline"
)

// Store is the shared coordination table. Rows and columns are 1-indexed.
type Store interface {
	ReadAll(ctx context.Context) ([][]string, error)
	UpdateCell(ctx context.Context, row, col int, value string) error
}

// Downloader fetches the audio track for a video into a local file.
type Downloader interface {
	Download(ctx context.Context, req types.DownloadRequest) (string, error)
}

// Relay copies a local artifact to durable storage and returns its reference.
// It never removes the source file.
type Relay interface {
	Put(ctx context.Context, localPath, name string) (string, error)
}

// Artifact is a located audio file. Temporary artifacts were copied into the
// working directory and are removed once the row is handled.
type Artifact struct {
	Path      string
	Temporary bool
}

// Locator finds the audio artifact for an item.
type Locator interface {
	Locate(ctx context.Context, itemID string) (Artifact, bool, error)
}

// Transcriber runs speech recognition on a local audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts types.ASROptions) (*types.TranscriptionResult, error)
}

// CaptionSource looks up platform captions for a video.
type CaptionSource interface {
	Fetch(ctx context.Context, itemID string, languages []string) types.CaptionResult
}

// Leaser grants time-bounded exclusive claims on items.
type Leaser interface {
	Acquire(ctx context.Context, itemID, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, itemID, holder string) error
}

// Recorder keeps an audit trail of row attempts.
type Recorder interface {
	RecordAttempt(ctx context.Context, attempt types.Attempt) error
}

// Archiver keeps a local copy of produced transcripts.
type Archiver interface {
	SaveTranscript(itemID, mark string, result *types.TranscriptionResult) (string, error)
}

// PassResult summarizes one scan of the table.
type PassResult struct {
	PassID    string
	Scanned   int
	Eligible  int
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

// ArtifactName is the file and object name used for an item's audio.
func ArtifactName(itemID string) string {
	return itemID + ".mp3"
}

// Common carries the collaborators every role needs. Ledger and Leaser are optional.
type Common struct {
	Store    Store
	Logger   zerolog.Logger
	Ledger   Recorder
	Leaser   Leaser
	LeaseTTL time.Duration
	Holder   string
}

func (c *Common) beginPass(ctx context.Context, role string) (PassResult, []WorkItem, zerolog.Logger, error) {
	res := PassResult{PassID: uuid.New().String()}
	logger := c.Logger.With().Str("role", role).Str("pass_id", res.PassID).Logger()

	rows, err := c.Store.ReadAll(ctx)
	if err != nil {
		return res, nil, logger, fmt.Errorf("read table: %w", err)
	}
	items := ItemsFromRows(rows)
	res.Scanned = len(items)
	logger.Info().Int("rows", res.Scanned).Msg("Scanning table")
	return res, items, logger, nil
}

func (c *Common) endPass(role string, logger zerolog.Logger, res PassResult, started time.Time) {
	passDuration.WithLabelValues(role).Observe(time.Since(started).Seconds())
	if res.Processed == 0 {
		logger.Info().Int("skipped", res.Skipped).Msg("Nothing processed this pass")
		return
	}
	logger.Info().
		Int("processed", res.Processed).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("elapsed", time.Since(started)).
		Msg("Pass complete")
}

// claim takes the item's lease when leasing is enabled and returns the row
// as it stands once the lease is held. ok is false when the row should be
// skipped this pass, either because another worker holds it or because it
// is no longer eligible; the skip is already counted in res.
func (c *Common) claim(ctx context.Context, logger zerolog.Logger, role string, res *PassResult, item WorkItem, eligible func(WorkItem) bool) (current WorkItem, release func(), ok bool) {
	noop := func() {}
	if c.Leaser == nil || c.LeaseTTL <= 0 {
		return item, noop, true
	}
	got, err := c.Leaser.Acquire(ctx, item.ItemID, c.Holder, c.LeaseTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("Lease acquisition failed, skipping row")
		res.Skipped++
		return item, noop, false
	}
	if !got {
		logger.Info().Msg("Row leased by another worker, skipping")
		res.Skipped++
		return item, noop, false
	}
	release = func() {
		// The pass context may already be cancelled; releasing must still happen.
		if err := c.Leaser.Release(context.WithoutCancel(ctx), item.ItemID, c.Holder); err != nil {
			logger.Warn().Err(err).Msg("Lease release failed")
		}
	}

	// The pass snapshot may predate another worker finishing this row.
	current, err = c.reread(ctx, item)
	if err != nil {
		release()
		logger.Warn().Err(err).Msg("Could not re-check row, skipping")
		res.Skipped++
		return item, noop, false
	}
	if !eligible(current) {
		release()
		c.skipStale(ctx, logger, role, res, current, fmt.Errorf("row is now %q", current.RawStatus))
		return current, noop, false
	}
	return current, release, true
}

func (c *Common) reread(ctx context.Context, item WorkItem) (WorkItem, error) {
	rows, err := c.Store.ReadAll(ctx)
	if err != nil {
		return item, fmt.Errorf("read table: %w", err)
	}
	if item.Row-1 >= len(rows) {
		return item, fmt.Errorf("row %d no longer exists", item.Row)
	}
	current := NewWorkItem(item.Row, rows[item.Row-1])
	if current.ItemID != item.ItemID {
		return item, fmt.Errorf("row %d now holds item %q", item.Row, current.ItemID)
	}
	return current, nil
}

// advance applies ev to the item's current status and persists the result.
func (c *Common) advance(ctx context.Context, item WorkItem, ev Event) (Status, error) {
	next, err := Transition(item.Status(), ev)
	if err != nil {
		return next, err
	}
	if err := c.writeCell(ctx, item, ColStatus, next.String()); err != nil {
		return next, err
	}
	return next, nil
}

func (c *Common) writeCell(ctx context.Context, item WorkItem, col Column, value string) error {
	if err := c.Store.UpdateCell(ctx, item.Row, int(col)+1, value); err != nil {
		return fmt.Errorf("update row %d column %d: %w", item.Row, int(col)+1, err)
	}
	return nil
}

// complete writes the transcript first, so a row is terminal even if the
// status write that follows is lost. When the store rejects the transcript
// the row is marked TranscriptionFailed and the rejection is returned as
// rejected; err is reserved for failures that should end the pass.
func (c *Common) complete(ctx context.Context, item WorkItem, text string, ev Event) (status Status, rejected error, err error) {
	if _, err := Transition(item.Status(), ev); err != nil {
		return item.Status(), nil, err
	}
	if werr := c.writeCell(ctx, item, ColTranscript, text); werr != nil {
		if ctx.Err() != nil {
			return item.Status(), nil, ctx.Err()
		}
		status, err = c.advance(ctx, item, Event{Kind: EventTranscriptionFailed})
		if err != nil {
			return status, nil, errors.Join(werr, err)
		}
		return status, werr, nil
	}
	status, err = c.advance(ctx, item, ev)
	return status, nil, err
}

func (c *Common) record(ctx context.Context, logger zerolog.Logger, role, passID string, item WorkItem, outcome string, status Status, rowErr error, elapsed time.Duration) {
	rowsProcessed.WithLabelValues(role, outcome).Inc()
	if c.Ledger == nil {
		return
	}
	attempt := types.Attempt{
		PassID:    passID,
		Role:      role,
		Row:       item.Row,
		ItemID:    item.ItemID,
		Outcome:   outcome,
		Status:    status.String(),
		Duration:  elapsed,
		CreatedAt: time.Now(),
	}
	if rowErr != nil {
		attempt.Error = rowErr.Error()
	}
	if err := c.Ledger.RecordAttempt(context.WithoutCancel(ctx), attempt); err != nil {
		logger.Warn().Err(err).Msg("Failed to record attempt")
	}
}

// skipStale counts a row whose status moved on after the pass snapshot.
func (c *Common) skipStale(ctx context.Context, logger zerolog.Logger, role string, res *PassResult, item WorkItem, err error) {
	logger.Warn().Err(err).Msg("Status changed under us, leaving row alone")
	res.Skipped++
	c.record(ctx, logger, role, res.PassID, item, types.OutcomeSkipped, item.Status(), err, 0)
}

func rowLogger(logger zerolog.Logger, item WorkItem) zerolog.Logger {
	return logger.With().Int("row", item.Row).Str("item_id", item.ItemID).Logger()
}

// cleanupTempFile removes a local artifact, ignoring files that are already gone.
func cleanupTempFile(logger zerolog.Logger, filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", filePath).Msg("Failed to cleanup temp file")
	}
}
