package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Filter decides whether a stale file may be removed.
type Filter func(name string) bool

// PartialsOnly matches only interrupted downloads and scratch files.
func PartialsOnly(name string) bool {
	return strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".ytdl") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.Contains(name, ".temp.")
}

// AnyFile matches every file.
func AnyFile(string) bool { return true }

// Scheduler handles cleanup of stale files in the working directory
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	filter   Filter
	logger   zerolog.Logger
	now      func() time.Time
}

// Stats summarizes one sweep.
type Stats struct {
	Deleted int
	Bytes   int64
}

// NewScheduler creates a new cleanup scheduler. A nil filter removes any stale file.
func NewScheduler(tempDir string, interval, maxAge time.Duration, filter Filter, logger zerolog.Logger) *Scheduler {
	if filter == nil {
		filter = AnyFile
	}
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		filter:   filter,
		logger:   logger.With().Str("component", "cleanup").Logger(),
		now:      time.Now,
	}
}

// Run sweeps once on start and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Msg("Running initial temp file cleanup")
	s.CleanOnce()

	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Dur("max_age", s.maxAge).Msg("Cleanup scheduler started")
	for {
		select {
		case <-ticker.C:
			s.CleanOnce()
		case <-ctx.Done():
			s.logger.Info().Msg("Cleanup scheduler stopped")
			return
		}
	}
}

// CleanOnce removes files older than maxAge that pass the filter. Lock files
// are never touched.
func (s *Scheduler) CleanOnce() Stats {
	now := s.now()
	var stats Stats

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip files we can't access
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasSuffix(name, ".lock") || !s.filter(name) {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		size := info.Size()
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete old file")
			return nil
		}
		stats.Deleted++
		stats.Bytes += size
		s.logger.Debug().
			Str("file", name).
			Dur("age", age.Round(time.Minute)).
			Int64("size_kb", size/1024).
			Msg("Deleted old temp file")
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Error during cleanup")
	}

	if stats.Deleted > 0 {
		s.logger.Info().
			Int("deleted", stats.Deleted).
			Float64("freed_mb", float64(stats.Bytes)/(1024*1024)).
			Msg("Cleanup complete")
	}
	return stats
}
