package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "store:\n  spreadsheet_id: abc\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendSheets, cfg.Store.Backend)
	assert.Equal(t, "abc", cfg.Store.SpreadsheetID)
	assert.Equal(t, 10, cfg.Fetch.Limit)
	assert.Equal(t, 5, cfg.Transcribe.Limit)
	assert.Equal(t, 30*time.Second, cfg.MinDelay())
	assert.Equal(t, 120*time.Second, cfg.MaxDelay())
	assert.Equal(t, "5M", cfg.Fetch.RateLimit)
	assert.Equal(t, "medium", cfg.ASR.ModelSize)
	assert.Equal(t, DefaultInitialPrompt, cfg.Transcribe.InitialPrompt)
	assert.Equal(t, []string{"zh-Hans", "zh-Hant", "en"}, cfg.Pipeline.Languages)
	assert.Equal(t, RelayNone, cfg.Relay.Kind)
	assert.Equal(t, 600, cfg.Loop.FetchCadence)
	assert.Equal(t, 300, cfg.Loop.TranscribeCadence)
	assert.Equal(t, time.Duration(0), cfg.LeaseTTL())
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.NeedsGoogle())
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("SPREADSHEET_ID", "legacy-sheet")
	t.Setenv("WHISPER_MODEL_SIZE", "small")
	t.Setenv("MIN_DELAY", "5")
	t.Setenv("MAX_DELAY", "10")
	t.Setenv("LOCAL_TEMP_DIR", "/var/tmp/audio")

	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "legacy-sheet", cfg.Store.SpreadsheetID)
	assert.Equal(t, "small", cfg.ASR.ModelSize)
	assert.Equal(t, 5*time.Second, cfg.MinDelay())
	assert.Equal(t, 10*time.Second, cfg.MaxDelay())
	assert.Equal(t, "/var/tmp/audio", cfg.Paths.WorkDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("SPREADSHEET_ID", "legacy-sheet")
	t.Setenv("TRANSCRIPTQ_STORE_SPREADSHEET_ID", "new-sheet")
	t.Setenv("TRANSCRIPTQ_RELAY_KIND", "mount")

	cfg, err := Load(writeConfig(t, "relay:\n  mount_path: /mnt/gdrive\n"))
	require.NoError(t, err)
	assert.Equal(t, "new-sheet", cfg.Store.SpreadsheetID)
	assert.Equal(t, RelayMount, cfg.Relay.Kind)
	assert.Equal(t, "/mnt/gdrive", cfg.Relay.MountPath)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	_, err := Load(writeConfig(t, "store: [unterminated\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:      StoreConfig{Backend: BackendWorkbook, WorkbookPath: "q.xlsx"},
			Fetch:      FetchConfig{Limit: 1, MinDelaySeconds: 30, MaxDelaySeconds: 120},
			Transcribe: TranscribeConfig{Limit: 1},
			Pipeline:   PipelineConfig{Limit: 1},
			Relay:      RelayConfig{Kind: RelayNone},
			Paths:      PathsConfig{WorkDir: "tmp"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero limit", func(c *Config) { c.Fetch.Limit = 0 }, "fetch.limit"},
		{"inverted jitter", func(c *Config) { c.Fetch.MinDelaySeconds = 200 }, "min_delay_seconds"},
		{"sheets without id", func(c *Config) { c.Store.Backend = BackendSheets }, "spreadsheet_id"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "csv" }, "store.backend"},
		{"mount without path", func(c *Config) { c.Relay.Kind = RelayMount }, "mount_path"},
		{"drive without folder", func(c *Config) { c.Relay.Kind = RelayDrive }, "drive_folder_id"},
		{"gcs without bucket", func(c *Config) { c.Relay.Kind = RelayGCS }, "gcs_bucket"},
		{"no work dir", func(c *Config) { c.Paths.WorkDir = "" }, "work_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNeedsGoogle(t *testing.T) {
	c := &Config{Store: StoreConfig{Backend: BackendWorkbook}, Relay: RelayConfig{Kind: RelayMount}}
	assert.False(t, c.NeedsGoogle())
	c.Relay.Kind = RelayGCS
	assert.True(t, c.NeedsGoogle())
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nexport TQ_TEST_A=\"one\"\nTQ_TEST_B='two'\nbroken line\n"), 0644))
	t.Setenv("TQ_TEST_B", "kept")
	t.Setenv("TQ_TEST_A", "")
	os.Unsetenv("TQ_TEST_A")

	require.NoError(t, loadDotEnvFile(path))
	assert.Equal(t, "one", os.Getenv("TQ_TEST_A"))
	assert.Equal(t, "kept", os.Getenv("TQ_TEST_B"))
}

func TestYAML(t *testing.T) {
	c := &Config{Store: StoreConfig{Backend: BackendWorkbook}}
	out, err := c.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "backend: workbook")
}
