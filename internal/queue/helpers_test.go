package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

var header = []string{"Source URL", "Item ID", "Status", "Reserved", "Transcript"}

// memStore is an in-memory coordination table. Writes to failCol are
// rejected, limited to failRow when it is set.
type memStore struct {
	mu      sync.Mutex
	rows    [][]string
	writes  []cellWrite
	readErr error
	failCol int
	failRow int
}

type cellWrite struct {
	Row   int
	Col   int
	Value string
}

func newMemStore(rows ...[]string) *memStore {
	all := [][]string{header}
	for _, r := range rows {
		all = append(all, append([]string(nil), r...))
	}
	return &memStore{rows: all}
}

func (m *memStore) ReadAll(ctx context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (m *memStore) UpdateCell(ctx context.Context, row, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCol != 0 && m.failCol == col && (m.failRow == 0 || m.failRow == row) {
		return errors.New("quota exceeded")
	}
	for len(m.rows[row-1]) < col {
		m.rows[row-1] = append(m.rows[row-1], "")
	}
	m.rows[row-1][col-1] = value
	m.writes = append(m.writes, cellWrite{Row: row, Col: col, Value: value})
	return nil
}

func (m *memStore) cell(row int, c Column) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[row-1]
	if int(c) < len(r) {
		return r[c]
	}
	return ""
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// stubDownloader writes a small file per item unless the item is listed in fail.
type stubDownloader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (d *stubDownloader) Download(ctx context.Context, req types.DownloadRequest) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req.ItemID)
	d.mu.Unlock()
	if err := d.fail[req.ItemID]; err != nil {
		return "", err
	}
	p := filepath.Join(req.OutputDir, req.ItemID+".mp3")
	if err := os.WriteFile(p, []byte("ID3audio"), 0644); err != nil {
		return "", err
	}
	return p, nil
}

type stubRelay struct {
	calls []string
	err   error
}

func (r *stubRelay) Put(ctx context.Context, localPath, name string) (string, error) {
	r.calls = append(r.calls, name)
	if r.err != nil {
		return "", r.err
	}
	return "relay://" + name, nil
}

type stubLocator struct {
	calls []string
	found map[string]string
	err   error
}

func (l *stubLocator) Locate(ctx context.Context, itemID string) (Artifact, bool, error) {
	l.calls = append(l.calls, itemID)
	if l.err != nil {
		return Artifact{}, false, l.err
	}
	p, ok := l.found[itemID]
	if !ok {
		return Artifact{}, false, nil
	}
	return Artifact{Path: p}, true, nil
}

type stubTranscriber struct {
	mu       sync.Mutex
	calls    []string
	segments []types.Segment
	err      error
	opts     []types.ASROptions
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string, opts types.ASROptions) (*types.TranscriptionResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, audioPath)
	s.opts = append(s.opts, opts)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &types.TranscriptionResult{Language: "zh", Segments: s.segments}, nil
}

type stubCaptions struct {
	calls []string
	texts map[string]string
}

func (c *stubCaptions) Fetch(ctx context.Context, itemID string, languages []string) types.CaptionResult {
	c.calls = append(c.calls, itemID)
	if text, ok := c.texts[itemID]; ok {
		return types.CaptionFound(text, languages[0])
	}
	return types.CaptionUnavailable(errors.New("no captions"))
}

// stubLeaser grants every lease not listed in held. onAcquire runs after a
// grant, standing in for work another worker finished in the meantime.
type stubLeaser struct {
	held      map[string]bool
	released  []string
	onAcquire func(itemID string)
}

func (l *stubLeaser) Acquire(ctx context.Context, itemID, holder string, ttl time.Duration) (bool, error) {
	if l.held[itemID] {
		return false, nil
	}
	if l.onAcquire != nil {
		l.onAcquire(itemID)
	}
	return true, nil
}

func (l *stubLeaser) Release(ctx context.Context, itemID, holder string) error {
	l.released = append(l.released, itemID)
	return nil
}

type stubRecorder struct {
	attempts []types.Attempt
}

func (r *stubRecorder) RecordAttempt(ctx context.Context, a types.Attempt) error {
	r.attempts = append(r.attempts, a)
	return nil
}

func testCommon(store Store) Common {
	return Common{Store: store, Logger: zerolog.Nop(), Holder: "test"}
}

// row builds a table row: url, id, status, reserved, transcript.
func row(id, status, transcript string) []string {
	return []string{"https://www.youtube.com/watch?v=" + id, id, status, "", transcript}
}
