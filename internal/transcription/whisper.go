package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// WhisperConfig selects the recognizer binary and model.
type WhisperConfig struct {
	Binary      string
	ModelSize   string
	Device      string
	ComputeType string
	Language    string
	ScratchDir  string
}

// WhisperTranscriber wraps the faster-whisper command line front end
type WhisperTranscriber struct {
	cfg    WhisperConfig
	logger zerolog.Logger
	mu     sync.Mutex // one model run at a time
}

// NewWhisperTranscriber creates a new transcriber. Missing fields get the
// CPU-friendly defaults.
func NewWhisperTranscriber(cfg WhisperConfig, logger zerolog.Logger) *WhisperTranscriber {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-ctranslate2"
	}
	if cfg.ModelSize == "" {
		cfg.ModelSize = "medium"
	}
	if cfg.Device == "" {
		cfg.Device = "cpu"
	}
	if cfg.ComputeType == "" {
		cfg.ComputeType = "int8"
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	logger.Info().
		Str("model", cfg.ModelSize).
		Str("device", cfg.Device).
		Str("compute_type", cfg.ComputeType).
		Msg("Whisper configured; availability is verified on first transcription")
	return &WhisperTranscriber{cfg: cfg, logger: logger}
}

// Transcribe processes an audio file and returns the transcript
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string, opts types.ASROptions) (*types.TranscriptionResult, error) {
	if !ValidateAudioFormat(audioPath) {
		return nil, fmt.Errorf("unsupported audio format: %s", filepath.Ext(audioPath))
	}

	wt.mu.Lock()
	defer wt.mu.Unlock()

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	outDir, err := os.MkdirTemp(wt.cfg.ScratchDir, "whisper_output_")
	if err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	wt.logger.Debug().Str("audio", absAudioPath).Msg("Running whisper")
	cmd := exec.CommandContext(ctx, wt.cfg.Binary, wt.args(absAudioPath, outDir, opts)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w\nOutput: %s", err, tail(string(output), 2000))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	result, err := ParseWhisperOutput(jsonData)
	if err != nil {
		return nil, err
	}
	wt.logger.Info().
		Int("segments", len(result.Segments)).
		Float64("duration", result.Duration).
		Msg("Transcription completed")
	return result, nil
}

func (wt *WhisperTranscriber) args(audioPath, outDir string, opts types.ASROptions) []string {
	args := []string{
		audioPath,
		"--model", wt.cfg.ModelSize,
		"--device", wt.cfg.Device,
		"--compute_type", wt.cfg.ComputeType,
		"--output_dir", outDir,
		"--output_format", "json",
		"--verbose", "False",
	}
	if opts.BeamSize > 0 {
		args = append(args, "--beam_size", strconv.Itoa(opts.BeamSize))
	}
	if opts.InitialPrompt != "" {
		args = append(args, "--initial_prompt", opts.InitialPrompt)
	}
	if wt.cfg.Language != "" {
		args = append(args, "--language", wt.cfg.Language)
	}
	return args
}

// WhisperOutput matches Whisper's JSON output format
type WhisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []WhisperSegment `json:"segments"`
}

// WhisperSegment represents a timestamped segment from Whisper
type WhisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ParseWhisperOutput converts the recognizer's JSON into a result. Segment
// text is kept exactly as emitted.
func ParseWhisperOutput(data []byte) (*types.TranscriptionResult, error) {
	var out WhisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper JSON: %w", err)
	}

	segments := make([]types.Segment, len(out.Segments))
	for i, seg := range out.Segments {
		segments[i] = types.Segment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}

	var duration float64
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	return &types.TranscriptionResult{
		Text:     out.Text,
		Language: out.Language,
		Duration: duration,
		Segments: segments,
	}, nil
}
