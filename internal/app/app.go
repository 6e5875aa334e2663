// Package app wires the PiggyFlow components together for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/piggyflow/internal/archive"
	"github.com/dvloznov/piggyflow/internal/archive/drive"
	"github.com/dvloznov/piggyflow/internal/archive/gcs"
	"github.com/dvloznov/piggyflow/internal/archive/localdir"
	"github.com/dvloznov/piggyflow/internal/auth"
	"github.com/dvloznov/piggyflow/internal/config"
	"github.com/dvloznov/piggyflow/internal/events"
	"github.com/dvloznov/piggyflow/internal/infra/bigquery"
	"github.com/dvloznov/piggyflow/internal/infra/sqlite"
	"github.com/dvloznov/piggyflow/internal/jobs"
	"github.com/dvloznov/piggyflow/internal/jobs/inmemory"
	"github.com/dvloznov/piggyflow/internal/ledger"
	"github.com/dvloznov/piggyflow/internal/store"
)

// App holds every long-lived component of one process.
type App struct {
	Config      *config.Config
	Log         zerolog.Logger
	Handle      *store.Handle
	Bus         *events.Bus
	Archive     *archive.Client
	Coordinator *store.Coordinator
	Ledger      *ledger.Service
	Watcher     *ledger.Watcher
	JobStore    *inmemory.Store
	Queue       *inmemory.Queue

	closers []func() error
}

// New builds the component graph. Nothing touches the database or the
// network until first use.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	backend, session, err := a.remote(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.Handle = store.NewHandle(cfg.Store.Path, log)
	a.Bus = events.NewBus()
	a.Archive = archive.NewClient(backend, cfg.Backup.FileName, log)
	a.Coordinator = store.NewCoordinator(a.Handle, a.Archive, session, a.Bus, log, store.Options{
		StatusTTL: cfg.Backup.StatusTTL,
	})

	a.Ledger = ledger.NewService(sqlite.NewTransactionRepository(a.Handle), sqlite.NewCategoryRepository(a.Handle), log)
	a.Watcher = ledger.NewWatcher(a.Ledger, a.Bus, log, ledger.WatcherOptions{})

	a.JobStore = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(inmemory.Config{
		BufferSize: cfg.Jobs.BufferSize,
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
	}, a.JobStore, log)

	return a, nil
}

// remote picks the archive backend and the matching session.
func (a *App) remote(ctx context.Context) (archive.Backend, auth.Session, error) {
	bc := a.Config.Backup
	switch bc.Backend {
	case config.BackendDrive:
		tf, err := auth.NewTokenFile(bc.CredentialsFile, bc.TokenFile)
		if err != nil {
			return nil, nil, err
		}
		opts := []option.ClientOption{option.WithTokenSource(tf.LazyTokenSource(ctx))}
		if bc.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(bc.Endpoint))
		}
		b, err := drive.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		return b, tf, nil

	case config.BackendGCS:
		var opts []option.ClientOption
		if bc.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(bc.Endpoint))
		}
		b, err := gcs.New(ctx, bc.Bucket, bc.Prefix, opts...)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, auth.NewDefaultCredentials(storage.ScopeReadWrite), nil

	case config.BackendDir:
		b, err := localdir.New(bc.Dir)
		if err != nil {
			return nil, nil, err
		}
		return b, auth.Local{}, nil
	}
	return nil, nil, fmt.Errorf("unknown backup backend %q", bc.Backend)
}

// StartJobs starts the queue workers that run backup operations.
func (a *App) StartJobs(ctx context.Context) error {
	return a.Queue.Start(ctx, jobs.NewBackupHandler(a.Coordinator))
}

// NewExporter builds the BigQuery exporter from the export section.
func (a *App) NewExporter(ctx context.Context) (*bigquery.Exporter, error) {
	ec := a.Config.Export
	if ec.ProjectID == "" {
		return nil, errors.New("export.project_id is not configured")
	}
	return bigquery.NewExporter(ctx, ec.ProjectID, ec.Dataset, ec.Table, a.Log)
}

// Close stops the workers and closes the store. It is safe to call once.
func (a *App) Close() error {
	var errs []error
	if err := a.Queue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Coordinator.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
