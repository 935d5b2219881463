package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// LocalStorage keeps a dated on-disk copy of every machine transcript
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// SaveTranscript saves the transcript and its segments to local disk
func (ls *LocalStorage) SaveTranscript(itemID, mark string, result *types.TranscriptionResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no transcript for %s", itemID)
	}

	// outputs/2025/01/23/
	now := ls.now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	// 20250123_143022_dQw4w9WgXcQ.txt
	baseFilename := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), sanitizeFilename(itemID))
	txtPath := filepath.Join(dateDir, baseFilename+".txt")
	metaPath := filepath.Join(dateDir, baseFilename+"_meta.json")

	if err := os.WriteFile(txtPath, []byte(types.JoinSegments(result.Segments)), 0644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}

	metadata := map[string]interface{}{
		"item_id":          itemID,
		"source":           mark,
		"duration_seconds": result.Duration,
		"language":         result.Language,
		"created_at":       now.UTC().Format(time.RFC3339),
		"segments":         result.Segments,
		"local_path":       txtPath,
	}

	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	return txtPath, nil
}

// sanitizeFilename replaces characters that are not allowed in file names
func sanitizeFilename(name string) string {
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
