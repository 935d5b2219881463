package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// Stage is the coarse position of a row in the pipeline.
type Stage int

const (
	StageUnknown Stage = iota
	StageUnprocessed
	StageWaitingDownload
	StageAudioReady
	StageDownloadFailed
	StageDone
	StageTranscriptionFailed
	StageCaptionsUnavailable
)

// Persisted status spellings. Both roles must agree on these exactly.
const (
	TagUnprocessed         = ""
	TagWaitingDownload     = "WaitingDownload"
	TagAudioReady          = "AudioReady"
	TagDownloadFailed      = "DownloadFailed"
	TagTranscriptionFailed = "TranscriptionFailed"
	TagCaptionsUnavailable = "CaptionsUnavailable"

	donePrefix = "Done ("
	doneSuffix = ")"
)

var ErrIllegalTransition = errors.New("illegal status transition")

// Status is a parsed status cell. Mark is only set for StageDone.
type Status struct {
	Stage Stage
	Mark  string
	raw   string
}

var (
	Unprocessed         = Status{Stage: StageUnprocessed}
	WaitingDownload     = Status{Stage: StageWaitingDownload}
	AudioReady          = Status{Stage: StageAudioReady}
	DownloadFailed      = Status{Stage: StageDownloadFailed}
	TranscriptionFailed = Status{Stage: StageTranscriptionFailed}
	CaptionsUnavailable = Status{Stage: StageCaptionsUnavailable}
)

// Done returns the terminal status annotated with the transcript source.
func Done(mark string) Status {
	return Status{Stage: StageDone, Mark: mark}
}

// ParseStatus maps a raw status cell onto the canonical vocabulary.
// Anything unrecognized is StageUnknown, which no role treats as eligible.
func ParseStatus(raw string) Status {
	s := strings.TrimSpace(raw)
	switch s {
	case TagUnprocessed:
		return Unprocessed
	case TagWaitingDownload:
		return WaitingDownload
	case TagAudioReady:
		return AudioReady
	case TagDownloadFailed:
		return DownloadFailed
	case TagTranscriptionFailed:
		return TranscriptionFailed
	case TagCaptionsUnavailable:
		return CaptionsUnavailable
	}
	if strings.HasPrefix(s, donePrefix) && strings.HasSuffix(s, doneSuffix) {
		mark := strings.TrimSuffix(strings.TrimPrefix(s, donePrefix), doneSuffix)
		return Done(mark)
	}
	return Status{Stage: StageUnknown, raw: raw}
}

// String returns the persisted spelling.
func (s Status) String() string {
	switch s.Stage {
	case StageUnprocessed:
		return TagUnprocessed
	case StageWaitingDownload:
		return TagWaitingDownload
	case StageAudioReady:
		return TagAudioReady
	case StageDownloadFailed:
		return TagDownloadFailed
	case StageTranscriptionFailed:
		return TagTranscriptionFailed
	case StageCaptionsUnavailable:
		return TagCaptionsUnavailable
	case StageDone:
		return donePrefix + s.Mark + doneSuffix
	}
	return s.raw
}

// Label is a human-readable name, also for the empty and unknown spellings.
func (s Status) Label() string {
	switch s.Stage {
	case StageUnprocessed:
		return "Unprocessed"
	case StageUnknown:
		return "Unknown(" + strings.TrimSpace(s.raw) + ")"
	}
	return s.String()
}

// IsFailure reports whether the status is one of the failure tags that only
// an external reset brings back into circulation.
func (s Status) IsFailure() bool {
	return s.Stage == StageDownloadFailed || s.Stage == StageTranscriptionFailed
}

// EventKind identifies what happened to a row.
type EventKind int

const (
	EventDownloaded EventKind = iota + 1
	EventDownloadFailed
	EventCaptionFound
	EventCaptionsMissing
	EventTranscribed
	EventTranscriptionFailed
)

func (k EventKind) String() string {
	switch k {
	case EventDownloaded:
		return "downloaded"
	case EventDownloadFailed:
		return "download_failed"
	case EventCaptionFound:
		return "caption_found"
	case EventCaptionsMissing:
		return "captions_missing"
	case EventTranscribed:
		return "transcribed"
	case EventTranscriptionFailed:
		return "transcription_failed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a trigger applied to a row's status. Mark carries the machine
// source mark (ai:<size>) for EventTranscribed.
type Event struct {
	Kind EventKind
	Mark string
}

var pending = []Stage{StageUnprocessed, StageWaitingDownload}

var transitions = map[EventKind][]Stage{
	EventDownloaded:          pending,
	EventDownloadFailed:      {StageUnprocessed, StageWaitingDownload, StageAudioReady, StageCaptionsUnavailable},
	EventCaptionFound:        {StageUnprocessed, StageWaitingDownload, StageAudioReady, StageCaptionsUnavailable},
	EventCaptionsMissing:     {StageUnprocessed, StageWaitingDownload, StageAudioReady},
	EventTranscribed:         {StageUnprocessed, StageWaitingDownload, StageAudioReady, StageCaptionsUnavailable},
	EventTranscriptionFailed: {StageUnprocessed, StageWaitingDownload, StageAudioReady, StageCaptionsUnavailable},
}

// Transition returns the status a row moves to when ev happens in from.
func Transition(from Status, ev Event) (Status, error) {
	allowed, ok := transitions[ev.Kind]
	if !ok || !stageIn(from.Stage, allowed) {
		return from, fmt.Errorf("%w: %s from %q", ErrIllegalTransition, ev.Kind, from.String())
	}
	switch ev.Kind {
	case EventDownloaded:
		return AudioReady, nil
	case EventDownloadFailed:
		return DownloadFailed, nil
	case EventCaptionFound:
		return Done(types.MarkOfficialCaption), nil
	case EventCaptionsMissing:
		return CaptionsUnavailable, nil
	case EventTranscribed:
		if !types.IsASRMark(ev.Mark) {
			return from, fmt.Errorf("%w: transcribed with non-machine source mark %q", ErrIllegalTransition, ev.Mark)
		}
		return Done(ev.Mark), nil
	default:
		return TranscriptionFailed, nil
	}
}

func stageIn(s Stage, set []Stage) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
