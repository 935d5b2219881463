package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/transcript-queue/internal/auth"
	"github.com/codebuildervaibhav/transcript-queue/internal/config"
	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
	"github.com/codebuildervaibhav/transcript-queue/internal/storage"
)

// table is the coordination table as the CLI uses it.
type table interface {
	queue.Store
	Append(ctx context.Context, rows [][]string) error
}

// app holds the collaborators shared by every command.
type app struct {
	cfg     *config.Config
	creds   *auth.Handle
	table   table
	ledger  *storage.Ledger
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("Close failed")
		}
	}
}

func (a *app) googleOptions() []option.ClientOption {
	if a.creds == nil {
		return nil
	}
	return a.creds.ClientOptions()
}

// newApp loads credentials when any Google component is configured and
// opens the table. The ledger is opened only when withLedger is set.
func newApp(ctx context.Context, cfg *config.Config, withLedger bool) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.NeedsGoogle() {
		creds, err := auth.Load(ctx, auth.Config{
			CredentialsFile: cfg.Google.CredentialsFile,
			TokenFile:       cfg.Google.TokenFile,
		})
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		a.creds = creds
	}

	t, err := openTable(ctx, cfg, a.googleOptions())
	if err != nil {
		return nil, err
	}
	a.table = t

	if withLedger && cfg.Ledger.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger.Path), 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		ledger, err := storage.OpenLedger(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.ledger = ledger
		a.closers = append(a.closers, ledger.Close)
	}
	return a, nil
}

func openTable(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (table, error) {
	switch cfg.Store.Backend {
	case config.BackendWorkbook:
		return storage.NewWorkbookStore(cfg.Store.WorkbookPath, cfg.Store.SheetName)
	case config.BackendSheets:
		return storage.NewSheetsStore(ctx, storage.SheetsConfig{
			SpreadsheetID:   cfg.Store.SpreadsheetID,
			SheetName:       cfg.Store.SheetName,
			WritesPerMinute: cfg.Store.WritesPerMinute,
		}, opts...)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// artifacts returns the relay and locator for the configured relay kind.
// The relay is nil when artifacts stay in the working directory.
func (a *app) artifacts(ctx context.Context) (queue.Relay, queue.Locator, error) {
	workDir := a.cfg.Paths.WorkDir
	switch a.cfg.Relay.Kind {
	case config.RelayNone:
		return nil, storage.NewDirLocator(workDir), nil
	case config.RelayMount:
		return storage.NewMountRelay(a.cfg.Relay.MountPath), storage.NewDirLocator(a.cfg.Relay.MountPath), nil
	case config.RelayDrive:
		dc, err := storage.NewDriveClient(ctx, a.cfg.Relay.DriveFolderID, workDir, a.googleOptions()...)
		if err != nil {
			return nil, nil, err
		}
		return dc, dc, nil
	case config.RelayGCS:
		bc, err := storage.NewBucketClient(ctx, a.cfg.Relay.GCSBucket, a.cfg.Relay.GCSPrefix, workDir, a.googleOptions()...)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, bc.Close)
		return bc, bc, nil
	}
	return nil, nil, fmt.Errorf("unknown relay kind %q", a.cfg.Relay.Kind)
}

// common builds the per-role collaborators. Leasing is on only when a
// ledger is open and a TTL is configured.
func (a *app) common(holder string) queue.Common {
	c := queue.Common{
		Store:  a.table,
		Logger: logger,
		Holder: holder,
	}
	if a.ledger != nil {
		c.Ledger = a.ledger
		if ttl := a.cfg.LeaseTTL(); ttl > 0 {
			c.Leaser = a.ledger
			c.LeaseTTL = ttl
		}
	}
	return c
}

func (a *app) archiver() queue.Archiver {
	if a.cfg.Paths.OutputDir == "" {
		return nil
	}
	return storage.NewLocalStorage(a.cfg.Paths.OutputDir)
}
