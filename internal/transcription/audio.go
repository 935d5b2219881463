package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// ErrNoOutput is returned when the downloader exits cleanly but leaves no file.
var ErrNoOutput = errors.New("downloader produced no audio file")

// YTDLP downloads audio tracks with the yt-dlp command line tool and
// converts them to mp3 through its ffmpeg post-processor.
type YTDLP struct {
	Binary string
	Logger zerolog.Logger
}

// NewYTDLP creates a downloader. An empty binary means "yt-dlp" on PATH.
func NewYTDLP(binary string, logger zerolog.Logger) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLP{Binary: binary, Logger: logger}
}

// Download fetches req.URL into <OutputDir>/<ItemID>.mp3 and returns that path.
func (y *YTDLP) Download(ctx context.Context, req types.DownloadRequest) (string, error) {
	if req.ItemID == "" {
		return "", errors.New("download: empty item id")
	}
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, y.Binary, downloadArgs(req)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w\nOutput: %s", err, tail(string(output), 2000))
	}

	outputPath := filepath.Join(req.OutputDir, req.ItemID+".mp3")
	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoOutput, outputPath)
	}
	y.Logger.Debug().Str("path", outputPath).Int64("bytes", info.Size()).Msg("Audio downloaded")
	return outputPath, nil
}

func downloadArgs(req types.DownloadRequest) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", "m4a/bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"-o", filepath.Join(req.OutputDir, req.ItemID+".%(ext)s"),
	}
	if req.Bitrate != "" {
		args = append(args, "--audio-quality", audioQuality(req.Bitrate))
	}
	if req.RateLimit != "" {
		args = append(args, "--limit-rate", req.RateLimit)
	}
	return append(args, req.URL)
}

// audioQuality turns a bare kbps figure like "128" into yt-dlp's "128K".
func audioQuality(bitrate string) string {
	b := strings.TrimSpace(bitrate)
	if strings.HasSuffix(strings.ToUpper(b), "K") {
		return b
	}
	return b + "K"
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
