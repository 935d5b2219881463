package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/transcript-queue/internal/cleanup"
	"github.com/codebuildervaibhav/transcript-queue/internal/config"
	"github.com/codebuildervaibhav/transcript-queue/internal/handlers"
	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
	"github.com/codebuildervaibhav/transcript-queue/internal/transcription"
	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

const (
	roleFetch      = queue.RoleFetch
	roleTranscribe = queue.RoleTranscribe
	rolePipeline   = queue.RolePipeline
)

var roleShort = map[string]string{
	roleFetch:      "Download audio for pending rows and mark them AudioReady",
	roleTranscribe: "Transcribe rows whose audio is ready",
	rolePipeline:   "Fetch captions, falling back to local transcription, in one process",
}

func newRoleCmd(role string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   role,
		Short: roleShort[role],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRole(cmd.Context(), role, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	if role == rolePipeline {
		cmd.Flags().BoolVar(&cfgCaptionsOnly, "captions-only", false, "never download audio; mark rows without captions CaptionsUnavailable")
	}
	return cmd
}

var cfgCaptionsOnly bool

func runRole(parent context.Context, role string, once bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfgCaptionsOnly {
		cfg.Pipeline.CaptionsOnly = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.WorkDir, 0755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.WorkDir, "."+role+".lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another %s worker is already running (lock %s)", role, lockPath)
	}
	defer lock.Unlock()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	worker, sched, err := buildWorker(ctx, a, role)
	if err != nil {
		return err
	}
	driver := queue.NewDriver(role, worker, sched, logger)

	if once {
		res, err := driver.RunOnce(ctx)
		fmt.Printf("%s pass %s: scanned %d, eligible %d, processed %d (succeeded %d, failed %d), skipped %d\n",
			role, res.PassID, res.Scanned, res.Eligible, res.Processed, res.Succeeded, res.Failed, res.Skipped)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	filter := cleanup.AnyFile
	if cfg.Relay.Kind == config.RelayNone {
		filter = cleanup.PartialsOnly
	}
	janitor := cleanup.NewScheduler(cfg.Paths.WorkDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		filter, logger)
	g.Go(func() error {
		janitor.Run(gctx)
		return nil
	})

	if cfg.Admin.Listen != "" {
		deps := handlers.Deps{Role: role, Table: a.table, Logs: logBuffer, Logger: logger}
		if a.ledger != nil {
			deps.Ledger = a.ledger
		}
		server := handlers.NewServer(deps)
		g.Go(func() error {
			return server.Run(gctx, cfg.Admin.Listen)
		})
	}

	g.Go(func() error {
		return driver.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildWorker(ctx context.Context, a *app, role string) (queue.Passer, queue.Schedule, error) {
	host, _ := os.Hostname()
	common := a.common(fmt.Sprintf("%s/%s/%s", host, role, uuid.NewString()[:8]))

	switch role {
	case roleFetch:
		relay, _, err := a.artifacts(ctx)
		if err != nil {
			return nil, queue.Schedule{}, err
		}
		governor, err := queue.NewGovernor(cfg.MinDelay(), cfg.MaxDelay(), nil)
		if err != nil {
			return nil, queue.Schedule{}, err
		}
		w := queue.NewFetchWorker(common, queue.FetchConfig{
			Limit:     cfg.Fetch.Limit,
			WorkDir:   cfg.Paths.WorkDir,
			Bitrate:   cfg.Fetch.Bitrate,
			RateLimit: cfg.Fetch.RateLimit,
		}, transcription.NewYTDLP(cfg.Fetch.Binary, logger), relay, governor)
		return w, schedule(cfg.Loop.FetchCadence, cfg.Loop.FetchErrorBackoff, queue.FetchSchedule), nil

	case roleTranscribe:
		_, locator, err := a.artifacts(ctx)
		if err != nil {
			return nil, queue.Schedule{}, err
		}
		w := queue.NewTranscribeWorker(common, queue.TranscribeConfig{
			Limit:     cfg.Transcribe.Limit,
			ModelSize: cfg.ASR.ModelSize,
			Options: types.ASROptions{
				BeamSize:      cfg.ASR.BeamSize,
				InitialPrompt: cfg.Transcribe.InitialPrompt,
			},
		}, locator, newWhisper(), a.archiver())
		return w, schedule(cfg.Loop.TranscribeCadence, cfg.Loop.TranscribeErrorBackoff, queue.TranscribeSchedule), nil

	case rolePipeline:
		captions := transcription.NewCaptionClient(config.Seconds(cfg.Pipeline.CaptionTimeoutSeconds))
		var fallback *queue.ASRFallback
		if !cfg.Pipeline.CaptionsOnly {
			relay, _, err := a.artifacts(ctx)
			if err != nil {
				return nil, queue.Schedule{}, err
			}
			governor, err := queue.NewGovernor(cfg.MinDelay(), cfg.MaxDelay(), nil)
			if err != nil {
				return nil, queue.Schedule{}, err
			}
			fallback = &queue.ASRFallback{
				Downloader:  transcription.NewYTDLP(cfg.Fetch.Binary, logger),
				Relay:       relay,
				Transcriber: newWhisper(),
				Governor:    governor,
				WorkDir:     cfg.Paths.WorkDir,
				Bitrate:     cfg.Fetch.Bitrate,
				RateLimit:   cfg.Fetch.RateLimit,
				ModelSize:   cfg.ASR.ModelSize,
				Options:     types.ASROptions{BeamSize: cfg.ASR.BeamSize},
			}
		}
		w := queue.NewPipelineWorker(common, queue.PipelineConfig{
			Limit:        cfg.Pipeline.Limit,
			Languages:    cfg.Pipeline.Languages,
			CaptionsOnly: cfg.Pipeline.CaptionsOnly,
		}, captions, fallback, a.archiver())
		return w, schedule(cfg.Loop.PipelineCadence, cfg.Loop.PipelineErrorBackoff, queue.PipelineSchedule), nil
	}
	return nil, queue.Schedule{}, fmt.Errorf("unknown role %q", role)
}

// schedule applies configured waits, keeping the role default for unset ones.
func schedule(cadence, backoff int, def queue.Schedule) queue.Schedule {
	if cadence > 0 {
		def.Cadence = config.Seconds(cadence)
	}
	if backoff > 0 {
		def.ErrorBackoff = config.Seconds(backoff)
	}
	return def
}

func newWhisper() *transcription.WhisperTranscriber {
	return transcription.NewWhisperTranscriber(transcription.WhisperConfig{
		Binary:      cfg.ASR.Binary,
		ModelSize:   cfg.ASR.ModelSize,
		Device:      cfg.ASR.Device,
		ComputeType: cfg.ASR.ComputeType,
		Language:    cfg.ASR.Language,
		ScratchDir:  cfg.Paths.WorkDir,
	}, logger)
}
