package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/transcript-queue/internal/auth"
	"github.com/codebuildervaibhav/transcript-queue/internal/config"
	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
	"github.com/codebuildervaibhav/transcript-queue/internal/storage"
)

type checkResult struct {
	name   string
	detail string
	err    error
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials, storage and external tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			results := runChecks(ctx, doctorChecks(cfg))

			rows := make([][]string, 0, len(results))
			failed := 0
			for _, r := range results {
				state := "ok"
				detail := r.detail
				if r.err != nil {
					state = "FAIL"
					detail = r.err.Error()
					failed++
				}
				rows = append(rows, []string{r.name, state, truncate(detail, 80)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "State", "Detail"}, rows, nil))

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// runChecks runs every check concurrently and keeps their declared order.
func runChecks(ctx context.Context, checks []check) []checkResult {
	results := make([]checkResult, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			detail, err := c.run(gctx)
			results[i] = checkResult{name: c.name, detail: detail, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func doctorChecks(cfg *config.Config) []check {
	checks := []check{
		{name: "config", run: func(context.Context) (string, error) {
			if err := cfg.Validate(); err != nil {
				return "", err
			}
			return fmt.Sprintf("store=%s relay=%s", cfg.Store.Backend, cfg.Relay.Kind), nil
		}},
		{name: "table", run: func(ctx context.Context) (string, error) {
			return checkTable(ctx, cfg)
		}},
		{name: "relay", run: func(ctx context.Context) (string, error) {
			return checkRelay(ctx, cfg)
		}},
		{name: "ledger", run: func(context.Context) (string, error) {
			if cfg.Ledger.Path == "" {
				return "disabled", nil
			}
			l, err := storage.OpenLedger(cfg.Ledger.Path)
			if err != nil {
				return "", err
			}
			defer l.Close()
			return cfg.Ledger.Path, nil
		}},
		{name: "yt-dlp", run: lookPath(cfg.Fetch.Binary)},
		{name: "ffmpeg", run: lookPath("ffmpeg")},
		{name: "asr", run: lookPath(cfg.ASR.Binary)},
	}
	if cfg.NeedsGoogle() {
		checks = append(checks, check{name: "credentials", run: func(ctx context.Context) (string, error) {
			h, err := auth.Load(ctx, auth.Config{
				CredentialsFile: cfg.Google.CredentialsFile,
				TokenFile:       cfg.Google.TokenFile,
			})
			if err != nil {
				return "", err
			}
			return string(h.Kind), nil
		}})
	}
	return checks
}

func lookPath(binary string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		if binary == "" {
			return "", errors.New("not configured")
		}
		return exec.LookPath(binary)
	}
}

func checkTable(ctx context.Context, cfg *config.Config) (string, error) {
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return "", err
	}
	defer a.Close()

	rows, err := a.table.ReadAll(ctx)
	if err != nil {
		return "", err
	}
	detail := fmt.Sprintf("%d item(s)", len(queue.ItemsFromRows(rows)))
	if s, ok := a.table.(*storage.SheetsStore); ok {
		title, err := s.Title(ctx)
		if err != nil {
			return "", err
		}
		detail = fmt.Sprintf("%q, %s", title, detail)
	}
	return detail, nil
}

func checkRelay(ctx context.Context, cfg *config.Config) (string, error) {
	switch cfg.Relay.Kind {
	case config.RelayNone:
		if err := os.MkdirAll(cfg.Paths.WorkDir, 0755); err != nil {
			return "", err
		}
		if err := storage.NewMountRelay(cfg.Paths.WorkDir).Writable(); err != nil {
			return "", err
		}
		return "work dir " + cfg.Paths.WorkDir, nil
	case config.RelayMount:
		if err := storage.NewMountRelay(cfg.Relay.MountPath).Writable(); err != nil {
			return "", err
		}
		return cfg.Relay.MountPath, nil
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return "", err
	}
	defer a.Close()
	relay, _, err := a.artifacts(ctx)
	if err != nil {
		return "", err
	}

	switch r := relay.(type) {
	case *storage.DriveClient:
		info, err := r.Folder(ctx)
		if err != nil {
			return "", err
		}
		if !info.IsFolder {
			return "", fmt.Errorf("%s is not a folder", info.ID)
		}
		if !info.Writable {
			return "", fmt.Errorf("folder %q is not writable", info.Name)
		}
		return fmt.Sprintf("drive folder %q", info.Name), nil
	case *storage.BucketClient:
		if err := r.Writable(ctx); err != nil {
			return "", err
		}
		return "gs://" + cfg.Relay.GCSBucket, nil
	}
	return "", fmt.Errorf("unknown relay kind %q", cfg.Relay.Kind)
}
