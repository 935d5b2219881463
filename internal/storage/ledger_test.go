package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerAttempts(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	base := time.Date(2025, 1, 23, 14, 30, 0, 0, time.UTC)

	for i, id := range []string{"aaa", "bbb", "aaa"} {
		require.NoError(t, l.RecordAttempt(ctx, types.Attempt{
			PassID:    "pass-1",
			Role:      "fetch",
			Row:       i + 2,
			ItemID:    id,
			Outcome:   types.OutcomeSucceeded,
			Status:    "AudioReady",
			Duration:  1500 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, l.RecordAttempt(ctx, types.Attempt{
		PassID: "pass-2", Role: "transcribe", Row: 2, ItemID: "aaa",
		Outcome: types.OutcomeFailed, Status: "TranscriptionFailed", Error: "oom",
		CreatedAt: base.Add(time.Hour),
	}))

	all, err := l.RecentAttempts(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "pass-2", all[0].PassID)
	assert.Equal(t, "oom", all[0].Error)

	forA, err := l.RecentAttempts(ctx, "aaa", 2)
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, "TranscriptionFailed", forA[0].Status)
	assert.Equal(t, 4, forA[1].Row)
	assert.Equal(t, 1500*time.Millisecond, forA[1].Duration)
	assert.True(t, forA[1].CreatedAt.Equal(base.Add(2*time.Minute)))
}

func TestLedgerLeases(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	now := time.Date(2025, 1, 23, 14, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, err := l.Acquire(ctx, "aaa", "host-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "aaa", "host-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be taken over")

	ok, err = l.Acquire(ctx, "aaa", "host-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder may renew")

	now = now.Add(2 * time.Minute)
	ok, err = l.Acquire(ctx, "aaa", "host-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")

	require.NoError(t, l.Release(ctx, "aaa", "host-a"))
	ok, err = l.Acquire(ctx, "aaa", "host-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release by a non-holder is a no-op")

	require.NoError(t, l.Release(ctx, "aaa", "host-b"))
	ok, err = l.Acquire(ctx, "aaa", "host-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
