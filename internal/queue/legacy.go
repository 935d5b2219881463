package queue

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// Status strings written by earlier deployments.
const (
	legacyWaitingDownload = "等待下载"
	legacyAudioReady      = "音频已就绪"
	legacyDownloadFailed  = "下载失败"
	legacyAwaiting        = "等待处理"
	legacyNoCaptions      = "字幕不可用"
	legacyDonePrefix      = "完成"
	legacyOfficial        = "官方字幕"
	legacyErrorPrefix     = "报错"
)

var (
	legacyFailures = []string{"转录失败", "AI转录失败", "处理出错"}
	legacyModelRe  = regexp.MustCompile(`(?i)(tiny|base|small|medium|large(?:-v[0-9])?)`)
)

// MigrateLegacy maps a legacy status string onto the canonical vocabulary.
// ok is false when raw is already canonical or not recognized.
//
// The legacy "awaiting processing" tag was written both as the initial state
// and after transcription, so the transcript cell decides which one it meant.
func MigrateLegacy(raw, transcript string) (Status, bool) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return Status{}, false
	}

	switch s {
	case legacyWaitingDownload:
		return WaitingDownload, true
	case legacyAudioReady:
		return AudioReady, true
	case legacyDownloadFailed:
		return DownloadFailed, true
	case legacyNoCaptions:
		return CaptionsUnavailable, true
	case legacyAwaiting:
		if strings.TrimSpace(transcript) != "" {
			return Done(types.ASRMark("unknown")), true
		}
		return WaitingDownload, true
	}

	for _, f := range legacyFailures {
		if s == f {
			return TranscriptionFailed, true
		}
	}
	if strings.HasPrefix(s, legacyErrorPrefix) {
		return TranscriptionFailed, true
	}

	if strings.HasPrefix(s, legacyDonePrefix) {
		if strings.Contains(s, legacyOfficial) {
			return Done(types.MarkOfficialCaption), true
		}
		size := "unknown"
		if m := legacyModelRe.FindString(s); m != "" {
			size = strings.ToLower(m)
		}
		return Done(types.ASRMark(size)), true
	}

	return Status{}, false
}
