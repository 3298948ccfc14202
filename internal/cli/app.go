package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/archive"
	"github.com/watzon/gensched/internal/config"
	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/job"
	"github.com/watzon/gensched/internal/scheduler"
	"github.com/watzon/gensched/internal/store"
)

// app bundles what every database-backed command needs.
type app struct {
	cfg      *config.Config
	db       *database.DB
	store    *store.Store
	bus      *events.EventBus
	launcher *scheduler.Launcher
}

type appOptions struct {
	archive bool
}

// openApp opens the database and builds a launcher over it. The launcher
// is not started.
func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{
		cfg:   cfg,
		db:    db,
		store: store.New(db, nil),
		bus:   events.NewEventBus(),
	}

	launcherOpts := []scheduler.Option{scheduler.WithEventBus(a.bus)}
	if opts.archive && cfg.Archive.Enabled {
		archiver, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring archive: %w", err)
		}
		launcherOpts = append(launcherOpts, scheduler.WithArchiver(archiver))
		log.Debug().Str("bucket", cfg.Archive.Bucket).Msg("History archiving enabled")
	}

	a.launcher = scheduler.NewLauncher(scheduler.ConfigFrom(cfg.Scheduler), a.store, job.Default(), launcherOpts...)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts appOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, appConfig, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
