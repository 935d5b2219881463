package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Row", "Status"}, [][]string{{"2", "AudioReady"}, {"3"}}, []columnAlignment{alignRight})
	assert.Contains(t, out, "Row")
	assert.Contains(t, out, "AudioReady")
	assert.Equal(t, 6, len(strings.Split(strings.TrimSpace(out), "\n")))

	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "你好世…", truncate("你好世界你好", 4))
}

func TestSchedule(t *testing.T) {
	got := schedule(0, 0, queue.TranscribeSchedule)
	assert.Equal(t, queue.TranscribeSchedule, got)

	got = schedule(60, 0, queue.FetchSchedule)
	assert.Equal(t, time.Minute, got.Cadence)
	assert.Equal(t, queue.FetchSchedule.ErrorBackoff, got.ErrorBackoff)
}

func TestRunChecksKeepsOrder(t *testing.T) {
	checks := []check{
		{name: "slow", run: func(ctx context.Context) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return "done", nil
		}},
		{name: "broken", run: func(ctx context.Context) (string, error) {
			return "", errors.New("missing")
		}},
	}

	results := runChecks(context.Background(), checks)
	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].name)
	assert.Equal(t, "done", results[0].detail)
	assert.EqualError(t, results[1].err, "missing")
}
