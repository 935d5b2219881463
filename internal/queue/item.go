package queue

import (
	"regexp"
	"strings"
)

// Column is a zero-based position in the coordination table.
type Column int

const (
	ColSourceURL Column = iota
	ColItemID
	ColStatus
	ColReserved
	ColTranscript
)

// ColumnCount is the number of columns the table carries.
const ColumnCount = 5

const watchURLPrefix = "https://www.youtube.com/watch?v="

// FirstDataRow is the 1-indexed position of the first work item; row 1 is the header.
const FirstDataRow = 2

// WorkItem is one row of the coordination table.
type WorkItem struct {
	Row        int
	SourceURL  string
	ItemID     string
	RawStatus  string
	Reserved   string
	Transcript string
}

// NewWorkItem builds a work item from a raw row. Short rows are padded.
func NewWorkItem(row int, cells []string) WorkItem {
	cell := func(c Column) string {
		if int(c) < len(cells) {
			return cells[c]
		}
		return ""
	}
	return WorkItem{
		Row:        row,
		SourceURL:  strings.TrimSpace(cell(ColSourceURL)),
		ItemID:     strings.TrimSpace(cell(ColItemID)),
		RawStatus:  cell(ColStatus),
		Reserved:   cell(ColReserved),
		Transcript: cell(ColTranscript),
	}
}

// DownloadURL is the locator handed to the downloader. Rows without a source
// URL fall back to the watch page for their id.
func (w WorkItem) DownloadURL() string {
	if w.SourceURL != "" {
		return w.SourceURL
	}
	return watchURLPrefix + w.ItemID
}

// Status returns the parsed status cell.
func (w WorkItem) Status() Status {
	return ParseStatus(w.RawStatus)
}

// HasTranscript reports terminal success regardless of the status string.
func (w WorkItem) HasTranscript() bool {
	return strings.TrimSpace(w.Transcript) != ""
}

// workable is the guard every role shares: a usable id and no transcript yet.
func (w WorkItem) workable() bool {
	return w.ItemID != "" && !w.HasTranscript()
}

// FetchEligible reports whether the fetch role should download this row.
// A status mentioning AudioReady is skipped even if it would otherwise match.
func FetchEligible(w WorkItem) bool {
	if !w.workable() || strings.Contains(w.RawStatus, TagAudioReady) {
		return false
	}
	return stageIn(w.Status().Stage, pending)
}

// TranscribeEligible reports whether the transcribe role should pick this row.
func TranscribeEligible(w WorkItem) bool {
	return w.workable() && w.Status().Stage == StageAudioReady
}

// PipelineEligible reports whether the combined pipeline should pick this row.
// In captions-only mode rows already known to lack captions are left alone.
func PipelineEligible(w WorkItem, captionsOnly bool) bool {
	if !w.workable() {
		return false
	}
	switch w.Status().Stage {
	case StageUnprocessed, StageWaitingDownload, StageAudioReady:
		return true
	case StageCaptionsUnavailable:
		return !captionsOnly
	}
	return false
}

// ItemsFromRows converts a full table snapshot (header included) into work items.
func ItemsFromRows(rows [][]string) []WorkItem {
	if len(rows) <= 1 {
		return nil
	}
	items := make([]WorkItem, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		items = append(items, NewWorkItem(i+FirstDataRow, cells))
	}
	return items
}

var videoIDPatterns = []*regexp.Regexp{
	// https://www.youtube.com/watch?v={ID}
	regexp.MustCompile(`[?&]v=([a-zA-Z0-9_-]{11})`),
	// https://youtu.be/{ID}
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	// /shorts/{ID}, /embed/{ID}, /live/{ID}
	regexp.MustCompile(`/(?:shorts|embed|live)/([a-zA-Z0-9_-]{11})`),
	// bare ID
	regexp.MustCompile(`^([a-zA-Z0-9_-]{11})$`),
}

// ParseVideoID extracts the video id from the common URL forms. It returns
// "" when none matches.
func ParseVideoID(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(raw); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// NewRow builds the cells for a freshly queued item.
func NewRow(sourceURL, itemID string) []string {
	row := make([]string, ColumnCount)
	row[ColSourceURL] = sourceURL
	row[ColItemID] = itemID
	return row
}
