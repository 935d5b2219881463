package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("0123456789"), 0644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

func TestCleanOnceAnyFile(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, "aaa.mp3", 48*time.Hour)
	fresh := touch(t, dir, "bbb.mp3", time.Minute)
	lock := touch(t, dir, ".fetch.lock", 48*time.Hour)

	s := NewScheduler(dir, time.Hour, 24*time.Hour, nil, zerolog.Nop())
	stats := s.CleanOnce()

	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, int64(10), stats.Bytes)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, lock)
}

func TestCleanOncePartialsOnly(t *testing.T) {
	dir := t.TempDir()
	audio := touch(t, dir, "aaa.mp3", 48*time.Hour)
	partial := touch(t, dir, "bbb.mp3.part", 48*time.Hour)
	relayTmp := touch(t, dir, ".ccc.mp3.123.part", 48*time.Hour)
	ytdl := touch(t, dir, "ddd.m4a.ytdl", 48*time.Hour)

	s := NewScheduler(dir, time.Hour, time.Hour, PartialsOnly, zerolog.Nop())
	stats := s.CleanOnce()

	assert.Equal(t, 3, stats.Deleted)
	assert.FileExists(t, audio)
	assert.NoFileExists(t, partial)
	assert.NoFileExists(t, relayTmp)
	assert.NoFileExists(t, ytdl)
}

func TestPartialsOnly(t *testing.T) {
	assert.True(t, PartialsOnly("x.part"))
	assert.True(t, PartialsOnly("x.temp.mp3"))
	assert.True(t, PartialsOnly("x.tmp"))
	assert.False(t, PartialsOnly("x.mp3"))
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, "aaa.mp3", 48*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s := NewScheduler(dir, time.Hour, time.Hour, AnyFile, zerolog.Nop())
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
