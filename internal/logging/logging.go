package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/config"
)

// DefaultBufferLines is how many recent log lines the admin server can show.
const DefaultBufferLines = 1000

// New builds the process logger. Output goes to stderr and is also kept in
// buf when buf is non-nil.
func New(cfg config.LoggingConfig, buf *LogBuffer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stderr
	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.NoColor}
	}
	if buf != nil {
		output = zerolog.MultiLevelWriter(output, buf)
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", "transcriptq").Logger()
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	max   int
	mu    sync.Mutex
}

// NewLogBuffer keeps at most size lines.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultBufferLines
	}
	return &LogBuffer{lines: make([]string, 0, size), max: size}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, strings.TrimRight(string(p), "\n"))
	if len(lb.lines) > lb.max {
		lb.lines = lb.lines[len(lb.lines)-lb.max:]
	}
	return len(p), nil
}

// GetLogs returns a copy of the buffered lines, oldest first.
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
