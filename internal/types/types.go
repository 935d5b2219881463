package types

import (
	"strings"
	"time"
)

// Source mark constants
const (
	MarkOfficialCaption = "official-caption"
	markASRPrefix       = "ai:"
)

// ASRMark returns the source mark for machine-generated text from the given model size
func ASRMark(modelSize string) string {
	return markASRPrefix + modelSize
}

// IsASRMark reports whether mark identifies machine-generated text
func IsASRMark(mark string) bool {
	return strings.HasPrefix(mark, markASRPrefix)
}

// TranscriptionResult represents the output from the speech recognizer
type TranscriptionResult struct {
	ItemID   string
	Text     string
	Language string
	Duration float64
	Segments []Segment
}

// Segment represents a timestamped segment of transcription
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ASROptions controls a single recognizer invocation
type ASROptions struct {
	BeamSize      int
	InitialPrompt string
}

// JoinSegments concatenates segment texts in emission order with single spaces.
// Text is not trimmed or deduplicated.
func JoinSegments(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Text
	}
	return strings.Join(parts, " ")
}

// CaptionResult is the outcome of a caption lookup: either Found with text or
// Unavailable with the reason.
type CaptionResult struct {
	Found    bool
	Text     string
	Language string
	Reason   error
}

// CaptionFound builds a successful caption result
func CaptionFound(text, language string) CaptionResult {
	return CaptionResult{Found: true, Text: text, Language: language}
}

// CaptionUnavailable builds a caption result that should trigger fallback
func CaptionUnavailable(reason error) CaptionResult {
	return CaptionResult{Reason: reason}
}

// DownloadRequest describes one audio download
type DownloadRequest struct {
	URL       string
	ItemID    string
	OutputDir string
	Bitrate   string
	RateLimit string
}

// Attempt outcome constants
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Attempt is one row-level processing attempt recorded in the ledger
type Attempt struct {
	PassID    string
	Role      string
	Row       int
	ItemID    string
	Outcome   string
	Status    string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}
