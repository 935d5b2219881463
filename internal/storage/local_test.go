package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

func TestSaveTranscript(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)
	ls.now = func() time.Time { return time.Date(2025, 1, 23, 14, 30, 22, 0, time.UTC) }

	result := &types.TranscriptionResult{
		Language: "zh",
		Duration: 2.5,
		Segments: []types.Segment{{Start: 0, End: 1, Text: "你好"}, {Start: 1, End: 2.5, Text: "世界"}},
	}

	path, err := ls.SaveTranscript("a/b:c", "ai:medium", result)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2025", "01", "23", "20250123_143022_a_b_c.txt"), path)

	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "你好 世界", string(text))

	raw, err := os.ReadFile(filepath.Join(dir, "2025", "01", "23", "20250123_143022_a_b_c_meta.json"))
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "ai:medium", meta["source"])
	assert.Equal(t, "zh", meta["language"])
}

func TestSaveTranscriptNilResult(t *testing.T) {
	_, err := NewLocalStorage(t.TempDir()).SaveTranscript("x", "ai:tiny", nil)
	assert.Error(t, err)
}
