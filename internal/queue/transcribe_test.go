package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

type stubArchiver struct {
	saved map[string]string
}

func (a *stubArchiver) SaveTranscript(itemID, mark string, result *types.TranscriptionResult) (string, error) {
	if a.saved == nil {
		a.saved = make(map[string]string)
	}
	a.saved[itemID] = mark
	return "/archive/" + itemID + ".txt", nil
}

func newTranscribe(store *memStore, loc Locator, asr Transcriber, limit int) *TranscribeWorker {
	return NewTranscribeWorker(testCommon(store), TranscribeConfig{
		Limit:     limit,
		ModelSize: "medium",
		Options:   types.ASROptions{BeamSize: 5, InitialPrompt: "prompt"},
	}, loc, asr, nil)
}

func TestTranscribePassWritesTranscriptThenStatus(t *testing.T) {
	store := newMemStore(
		row("aaa", "AudioReady", ""),
		row("bbb", "", ""),
	)
	loc := &stubLocator{found: map[string]string{"aaa": "/relay/aaa.mp3"}}
	asr := &stubTranscriber{segments: []types.Segment{{Text: "hello"}, {Text: " world"}}}
	w := newTranscribe(store, loc, asr, 10)

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, "hello  world", store.cell(2, ColTranscript))
	assert.Equal(t, "Done (ai:medium)", store.cell(2, ColStatus))
	assert.Equal(t, []cellWrite{
		{Row: 2, Col: 5, Value: "hello  world"},
		{Row: 2, Col: 3, Value: "Done (ai:medium)"},
	}, store.writes)

	require.Len(t, asr.opts, 1)
	assert.Equal(t, "prompt", asr.opts[0].InitialPrompt)
	assert.Equal(t, 5, asr.opts[0].BeamSize)
}

func TestTranscribePassToleratesMissingAudio(t *testing.T) {
	store := newMemStore(row("aaa", "AudioReady", ""), row("bbb", "AudioReady", ""))
	loc := &stubLocator{found: map[string]string{"bbb": "/relay/bbb.mp3"}}
	asr := &stubTranscriber{segments: []types.Segment{{Text: "x"}}}
	w := newTranscribe(store, loc, asr, 10)

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, "AudioReady", store.cell(2, ColStatus))
	assert.Empty(t, store.cell(2, ColTranscript))
	assert.Equal(t, []string{"/relay/bbb.mp3"}, asr.calls)
}

func TestTranscribePassLocatorErrorIsTransient(t *testing.T) {
	store := newMemStore(row("aaa", "AudioReady", ""))
	loc := &stubLocator{err: errors.New("drive 500")}
	asr := &stubTranscriber{}
	w := newTranscribe(store, loc, asr, 10)

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, store.writeCount())
	assert.Empty(t, asr.calls)
}

func TestTranscribePassRecognizerFailure(t *testing.T) {
	store := newMemStore(row("aaa", "AudioReady", ""))
	loc := &stubLocator{found: map[string]string{"aaa": "/relay/aaa.mp3"}}
	asr := &stubTranscriber{err: errors.New("out of memory")}
	w := newTranscribe(store, loc, asr, 10)

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "TranscriptionFailed", store.cell(2, ColStatus))
	assert.Empty(t, store.cell(2, ColTranscript))

	// failed rows stay put until reset
	res, err = w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Eligible)
}

func TestTranscribePassBudgetAndIdempotence(t *testing.T) {
	store := newMemStore(
		row("aaa", "AudioReady", ""),
		row("bbb", "AudioReady", ""),
		row("ccc", "AudioReady", ""),
	)
	loc := &stubLocator{found: map[string]string{"aaa": "/a.mp3", "bbb": "/b.mp3", "ccc": "/c.mp3"}}
	asr := &stubTranscriber{segments: []types.Segment{{Text: "t"}}}
	w := newTranscribe(store, loc, asr, 2)

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Len(t, asr.calls, 2)

	res, err = w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	res, err = w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Len(t, asr.calls, 3)
}

func TestTranscribePassRemovesTemporaryArtifact(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "aaa.mp3")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0644))

	store := newMemStore(row("aaa", "AudioReady", ""))
	loc := locatorFunc(func(ctx context.Context, itemID string) (Artifact, bool, error) {
		return Artifact{Path: local, Temporary: true}, true, nil
	})
	archiver := &stubArchiver{}
	w := NewTranscribeWorker(testCommon(store), TranscribeConfig{Limit: 1, ModelSize: "small"}, loc,
		&stubTranscriber{segments: []types.Segment{{Text: "t"}}}, archiver)

	_, err := w.RunPass(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, local)
	assert.Equal(t, "ai:small", archiver.saved["aaa"])
}

type locatorFunc func(ctx context.Context, itemID string) (Artifact, bool, error)

func (f locatorFunc) Locate(ctx context.Context, itemID string) (Artifact, bool, error) {
	return f(ctx, itemID)
}

func TestTranscribePassRejectedTranscriptFailsOnlyThatRow(t *testing.T) {
	store := newMemStore(row("aaa", "AudioReady", ""), row("bbb", "AudioReady", ""))
	store.failCol, store.failRow = int(ColTranscript)+1, 2
	loc := &stubLocator{found: map[string]string{"aaa": "/a.mp3", "bbb": "/b.mp3"}}
	asr := &stubTranscriber{segments: []types.Segment{{Text: "x"}}}
	rec := &stubRecorder{}
	w := newTranscribe(store, loc, asr, 10)
	w.Ledger = rec

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)

	assert.Equal(t, "TranscriptionFailed", store.cell(2, ColStatus))
	assert.Empty(t, store.cell(2, ColTranscript))
	assert.Equal(t, "Done (ai:medium)", store.cell(3, ColStatus))
	assert.Equal(t, "x", store.cell(3, ColTranscript))

	require.Len(t, rec.attempts, 2)
	assert.Equal(t, types.OutcomeFailed, rec.attempts[0].Outcome)
	assert.Contains(t, rec.attempts[0].Error, "store transcript")

	res, err = w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Eligible)
	assert.Equal(t, []string{"/a.mp3", "/b.mp3"}, asr.calls)
}

func TestTranscribePassRejectedStatusAfterTranscriptEndsPass(t *testing.T) {
	store := newMemStore(row("aaa", "AudioReady", ""))
	store.failCol = int(ColTranscript) + 1
	loc := &stubLocator{found: map[string]string{"aaa": "/a.mp3"}}
	w := newTranscribe(store, loc, &stubTranscriber{segments: []types.Segment{{Text: "x"}}}, 10)
	w.Store = &failingStatusStore{memStore: store}

	_, err := w.RunPass(context.Background())
	require.Error(t, err)
	assert.Equal(t, "AudioReady", store.cell(2, ColStatus))
}

func TestTranscribePassClaimsBeforeLocating(t *testing.T) {
	store := newMemStore(row("aaa", "AudioReady", ""), row("bbb", "AudioReady", ""))
	loc := &stubLocator{found: map[string]string{"aaa": "/a.mp3", "bbb": "/b.mp3"}}
	asr := &stubTranscriber{segments: []types.Segment{{Text: "x"}}}
	w := newTranscribe(store, loc, asr, 10)
	w.Leaser = &stubLeaser{held: map[string]bool{"aaa": true}}
	w.LeaseTTL = time.Minute

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"bbb"}, loc.calls)
	assert.Equal(t, "AudioReady", store.cell(2, ColStatus))
}

func TestTranscribePassRechecksRowAfterLease(t *testing.T) {
	store := newMemStore(row("aaa", "AudioReady", ""))
	loc := &stubLocator{found: map[string]string{"aaa": "/a.mp3"}}
	asr := &stubTranscriber{segments: []types.Segment{{Text: "x"}}}
	leaser := &stubLeaser{onAcquire: func(itemID string) {
		require.NoError(t, store.UpdateCell(context.Background(), 2, int(ColTranscript)+1, "other"))
		require.NoError(t, store.UpdateCell(context.Background(), 2, int(ColStatus)+1, "Done (ai:large)"))
	}}
	w := newTranscribe(store, loc, asr, 10)
	w.Leaser = leaser
	w.LeaseTTL = time.Minute

	res, err := w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, loc.calls)
	assert.Empty(t, asr.calls)
	assert.Equal(t, "other", store.cell(2, ColTranscript))
	assert.Equal(t, []string{"aaa"}, leaser.released)
}

// failingStatusStore rejects status writes on top of the wrapped store's rules.
type failingStatusStore struct {
	*memStore
}

func (s *failingStatusStore) UpdateCell(ctx context.Context, row, col int, value string) error {
	if col == int(ColStatus)+1 {
		return errors.New("sheet is read-only")
	}
	return s.memStore.UpdateCell(ctx, row, col, value)
}
