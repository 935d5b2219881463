package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendSheets   = "sheets"
	BackendWorkbook = "workbook"
)

// Relay kinds
const (
	RelayNone  = "none"
	RelayMount = "mount"
	RelayDrive = "drive"
	RelayGCS   = "gcs"
)

// DefaultInitialPrompt nudges the recognizer towards simplified Chinese output.
const DefaultInitialPrompt = "以下是关于科技、生活或时政的中文对话，请使用简体中文输出。"

// Config holds the application configuration
type Config struct {
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Google     GoogleConfig     `mapstructure:"google" yaml:"google"`
	Fetch      FetchConfig      `mapstructure:"fetch" yaml:"fetch"`
	Transcribe TranscribeConfig `mapstructure:"transcribe" yaml:"transcribe"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	ASR        ASRConfig        `mapstructure:"asr" yaml:"asr"`
	Relay      RelayConfig      `mapstructure:"relay" yaml:"relay"`
	Paths      PathsConfig      `mapstructure:"paths" yaml:"paths"`
	Loop       LoopConfig       `mapstructure:"loop" yaml:"loop"`
	Ledger     LedgerConfig     `mapstructure:"ledger" yaml:"ledger"`
	Admin      AdminConfig      `mapstructure:"admin" yaml:"admin"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup" yaml:"cleanup"`
}

// StoreConfig selects the coordination table
type StoreConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name" yaml:"sheet_name"`
	WorkbookPath    string `mapstructure:"workbook_path" yaml:"workbook_path"`
	WritesPerMinute int    `mapstructure:"writes_per_minute" yaml:"writes_per_minute"`
}

// GoogleConfig points at credential files
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string `mapstructure:"token_file" yaml:"token_file"`
}

// FetchConfig holds download role settings
type FetchConfig struct {
	Limit           int    `mapstructure:"limit" yaml:"limit"`
	MinDelaySeconds int    `mapstructure:"min_delay_seconds" yaml:"min_delay_seconds"`
	MaxDelaySeconds int    `mapstructure:"max_delay_seconds" yaml:"max_delay_seconds"`
	RateLimit       string `mapstructure:"rate_limit" yaml:"rate_limit"`
	Bitrate         string `mapstructure:"bitrate" yaml:"bitrate"`
	Binary          string `mapstructure:"binary" yaml:"binary"`
}

// TranscribeConfig holds transcription role settings
type TranscribeConfig struct {
	Limit         int    `mapstructure:"limit" yaml:"limit"`
	InitialPrompt string `mapstructure:"initial_prompt" yaml:"initial_prompt"`
}

// PipelineConfig holds combined role settings
type PipelineConfig struct {
	Limit                 int      `mapstructure:"limit" yaml:"limit"`
	Languages             []string `mapstructure:"languages" yaml:"languages"`
	CaptionsOnly          bool     `mapstructure:"captions_only" yaml:"captions_only"`
	CaptionTimeoutSeconds int      `mapstructure:"caption_timeout_seconds" yaml:"caption_timeout_seconds"`
}

// ASRConfig holds speech recognizer settings
type ASRConfig struct {
	Binary      string `mapstructure:"binary" yaml:"binary"`
	ModelSize   string `mapstructure:"model_size" yaml:"model_size"`
	Device      string `mapstructure:"device" yaml:"device"`
	ComputeType string `mapstructure:"compute_type" yaml:"compute_type"`
	BeamSize    int    `mapstructure:"beam_size" yaml:"beam_size"`
	Language    string `mapstructure:"language" yaml:"language"`
}

// RelayConfig selects where downloaded audio is kept between roles
type RelayConfig struct {
	Kind          string `mapstructure:"kind" yaml:"kind"`
	MountPath     string `mapstructure:"mount_path" yaml:"mount_path"`
	DriveFolderID string `mapstructure:"drive_folder_id" yaml:"drive_folder_id"`
	GCSBucket     string `mapstructure:"gcs_bucket" yaml:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix" yaml:"gcs_prefix"`
}

// PathsConfig holds local directories
type PathsConfig struct {
	WorkDir   string `mapstructure:"work_dir" yaml:"work_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// LoopConfig holds the polling schedule per role, in seconds
type LoopConfig struct {
	FetchCadence           int `mapstructure:"fetch_cadence_seconds" yaml:"fetch_cadence_seconds"`
	FetchErrorBackoff      int `mapstructure:"fetch_error_backoff_seconds" yaml:"fetch_error_backoff_seconds"`
	TranscribeCadence      int `mapstructure:"transcribe_cadence_seconds" yaml:"transcribe_cadence_seconds"`
	TranscribeErrorBackoff int `mapstructure:"transcribe_error_backoff_seconds" yaml:"transcribe_error_backoff_seconds"`
	PipelineCadence        int `mapstructure:"pipeline_cadence_seconds" yaml:"pipeline_cadence_seconds"`
	PipelineErrorBackoff   int `mapstructure:"pipeline_error_backoff_seconds" yaml:"pipeline_error_backoff_seconds"`
}

// LedgerConfig holds the local attempt ledger settings
type LedgerConfig struct {
	Path            string `mapstructure:"path" yaml:"path"`
	LeaseTTLSeconds int    `mapstructure:"lease_ttl_seconds" yaml:"lease_ttl_seconds"`
}

// AdminConfig holds the admin HTTP server settings
type AdminConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color"`
}

// CleanupConfig holds working directory janitor settings
type CleanupConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	MaxAgeHours     int `mapstructure:"max_age_hours" yaml:"max_age_hours"`
}

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional
	_ = loadEnvFile()

	v.SetEnvPrefix("TRANSCRIPTQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env file found by parsing KEY=VALUE lines.
// Variables already present in the environment win.
func loadEnvFile() error {
	for _, path := range []string{".", "./config"} {
		envFile := path + "/.env"
		if _, err := os.Stat(envFile); err == nil {
			return loadDotEnvFile(envFile)
		}
	}
	return fmt.Errorf("no .env file found")
}

func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// legacyEnv maps config keys to the environment names earlier deployments used.
var legacyEnv = map[string]string{
	"google.credentials_file": "CREDENTIALS_FILE",
	"store.spreadsheet_id":    "SPREADSHEET_ID",
	"store.sheet_name":        "SHEET_NAME",
	"relay.drive_folder_id":   "DRIVE_FOLDER_ID",
	"relay.mount_path":        "RCLONE_MOUNT_PATH",
	"fetch.rate_limit":        "DOWNLOAD_RATE_LIMIT",
	"fetch.limit":             "FETCH_LIMIT",
	"fetch.min_delay_seconds": "MIN_DELAY",
	"fetch.max_delay_seconds": "MAX_DELAY",
	"asr.model_size":          "WHISPER_MODEL_SIZE",
	"asr.device":              "DEVICE",
	"asr.compute_type":        "COMPUTE_TYPE",
	"transcribe.limit":        "TRANSCRIPTION_LIMIT",
	"paths.work_dir":          "LOCAL_TEMP_DIR",
}

// bindEnvVars binds the prefixed name first so it wins over the legacy one.
func bindEnvVars(v *viper.Viper) {
	for key, legacy := range legacyEnv {
		prefixed := "TRANSCRIPTQ_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendSheets)
	v.SetDefault("store.spreadsheet_id", "")
	v.SetDefault("store.sheet_name", "Sheet1")
	v.SetDefault("store.workbook_path", "./data/queue.xlsx")
	v.SetDefault("store.writes_per_minute", 50)

	v.SetDefault("google.credentials_file", "credentials.json")
	v.SetDefault("google.token_file", "token.json")

	v.SetDefault("fetch.limit", 10)
	v.SetDefault("fetch.min_delay_seconds", 30)
	v.SetDefault("fetch.max_delay_seconds", 120)
	v.SetDefault("fetch.rate_limit", "5M")
	v.SetDefault("fetch.bitrate", "128")
	v.SetDefault("fetch.binary", "yt-dlp")

	v.SetDefault("transcribe.limit", 5)
	v.SetDefault("transcribe.initial_prompt", DefaultInitialPrompt)

	v.SetDefault("pipeline.limit", 10)
	v.SetDefault("pipeline.languages", []string{"zh-Hans", "zh-Hant", "en"})
	v.SetDefault("pipeline.captions_only", false)
	v.SetDefault("pipeline.caption_timeout_seconds", 30)

	v.SetDefault("asr.binary", "whisper-ctranslate2")
	v.SetDefault("asr.model_size", "medium")
	v.SetDefault("asr.device", "cpu")
	v.SetDefault("asr.compute_type", "int8")
	v.SetDefault("asr.beam_size", 5)
	v.SetDefault("asr.language", "")

	v.SetDefault("relay.kind", RelayNone)
	v.SetDefault("relay.mount_path", "")
	v.SetDefault("relay.drive_folder_id", "")
	v.SetDefault("relay.gcs_bucket", "")
	v.SetDefault("relay.gcs_prefix", "audio")

	v.SetDefault("paths.work_dir", "temp_audio")
	v.SetDefault("paths.output_dir", "")

	v.SetDefault("loop.fetch_cadence_seconds", 600)
	v.SetDefault("loop.fetch_error_backoff_seconds", 300)
	v.SetDefault("loop.transcribe_cadence_seconds", 300)
	v.SetDefault("loop.transcribe_error_backoff_seconds", 300)
	v.SetDefault("loop.pipeline_cadence_seconds", 600)
	v.SetDefault("loop.pipeline_error_backoff_seconds", 300)

	v.SetDefault("ledger.path", "./data/ledger.db")
	v.SetDefault("ledger.lease_ttl_seconds", 0)

	v.SetDefault("admin.listen", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("cleanup.interval_minutes", 60)
	v.SetDefault("cleanup.max_age_hours", 24)
}

// Validate checks the settings every role depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.Limit < 1 {
		errs = append(errs, fmt.Errorf("fetch.limit must be at least 1, got %d", c.Fetch.Limit))
	}
	if c.Transcribe.Limit < 1 {
		errs = append(errs, fmt.Errorf("transcribe.limit must be at least 1, got %d", c.Transcribe.Limit))
	}
	if c.Pipeline.Limit < 1 {
		errs = append(errs, fmt.Errorf("pipeline.limit must be at least 1, got %d", c.Pipeline.Limit))
	}
	if c.Fetch.MinDelaySeconds < 0 || c.Fetch.MinDelaySeconds > c.Fetch.MaxDelaySeconds {
		errs = append(errs, fmt.Errorf("need 0 <= fetch.min_delay_seconds (%d) <= fetch.max_delay_seconds (%d)",
			c.Fetch.MinDelaySeconds, c.Fetch.MaxDelaySeconds))
	}

	switch c.Store.Backend {
	case BackendSheets:
		if c.Store.SpreadsheetID == "" {
			errs = append(errs, errors.New("store.spreadsheet_id is required for the sheets backend"))
		}
	case BackendWorkbook:
		if c.Store.WorkbookPath == "" {
			errs = append(errs, errors.New("store.workbook_path is required for the workbook backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.Relay.Kind {
	case RelayNone:
	case RelayMount:
		if c.Relay.MountPath == "" {
			errs = append(errs, errors.New("relay.mount_path is required for the mount relay"))
		}
	case RelayDrive:
		if c.Relay.DriveFolderID == "" {
			errs = append(errs, errors.New("relay.drive_folder_id is required for the drive relay"))
		}
	case RelayGCS:
		if c.Relay.GCSBucket == "" {
			errs = append(errs, errors.New("relay.gcs_bucket is required for the gcs relay"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown relay.kind %q", c.Relay.Kind))
	}

	if c.Paths.WorkDir == "" {
		errs = append(errs, errors.New("paths.work_dir is required"))
	}
	return errors.Join(errs...)
}

// NeedsGoogle reports whether any configured component talks to Google APIs.
func (c *Config) NeedsGoogle() bool {
	return c.Store.Backend == BackendSheets || c.Relay.Kind == RelayDrive || c.Relay.Kind == RelayGCS
}

// MinDelay returns the lower jitter bound
func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.Fetch.MinDelaySeconds) * time.Second
}

// MaxDelay returns the upper jitter bound
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Fetch.MaxDelaySeconds) * time.Second
}

// LeaseTTL returns the lease duration; zero disables leasing.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Ledger.LeaseTTLSeconds) * time.Second
}

// Seconds converts a configured second count to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
