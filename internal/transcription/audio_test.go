package transcription

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

func TestDownloadArgs(t *testing.T) {
	req := types.DownloadRequest{
		URL:       "https://www.youtube.com/watch?v=abc",
		ItemID:    "abc",
		OutputDir: "/work",
		Bitrate:   "128",
		RateLimit: "2M",
	}

	args := downloadArgs(req)
	assert.Equal(t, req.URL, args[len(args)-1])
	assert.Subset(t, args, []string{"--no-playlist", "-x", "--audio-format", "mp3"})
	assert.Contains(t, args, filepath.Join("/work", "abc.%(ext)s"))
	assert.Contains(t, args, "128K")
	assert.Contains(t, args, "2M")

	bare := downloadArgs(types.DownloadRequest{URL: "u", ItemID: "abc", OutputDir: "/work"})
	assert.NotContains(t, bare, "--audio-quality")
	assert.NotContains(t, bare, "--limit-rate")
}

func TestAudioQuality(t *testing.T) {
	assert.Equal(t, "128K", audioQuality("128"))
	assert.Equal(t, "192K", audioQuality(" 192K "))
	assert.Equal(t, "64k", audioQuality("64k"))
}

func TestValidateAudioFormat(t *testing.T) {
	assert.True(t, ValidateAudioFormat("a.mp3"))
	assert.True(t, ValidateAudioFormat("a.M4A"))
	assert.False(t, ValidateAudioFormat("a.txt"))
	assert.False(t, ValidateAudioFormat("noext"))
}

func TestDownloadWithoutOutput(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	y := NewYTDLP(bin, zerolog.Nop())

	_, err = y.Download(context.Background(), types.DownloadRequest{URL: "u", ItemID: "abc", OutputDir: t.TempDir()})
	require.ErrorIs(t, err, ErrNoOutput)
}

func TestDownloadFailureIncludesOutput(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}
	y := NewYTDLP(bin, zerolog.Nop())

	_, err = y.Download(context.Background(), types.DownloadRequest{URL: "u", ItemID: "abc", OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yt-dlp failed")
}

func TestDownloadRequiresItemID(t *testing.T) {
	y := NewYTDLP("", zerolog.Nop())
	assert.Equal(t, "yt-dlp", y.Binary)
	_, err := y.Download(context.Background(), types.DownloadRequest{URL: "u"})
	assert.Error(t, err)
}
