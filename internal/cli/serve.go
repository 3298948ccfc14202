package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/watzon/gensched/internal/server"
	"github.com/watzon/gensched/internal/taskfile"
)

const shutdownTimeout = 10 * time.Second

var (
	serveTasksFile string
	serveNoServer  bool
	serveNoWatch   bool
	servePort      int
	serveHost      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler",
	Long: `Run the scheduler until interrupted.

serve will:
  - Open (and migrate) the database
  - Apply the task file, if one is configured
  - Reload the task file when it changes (tasks.watch)
  - Poll for due tasks and execute them
  - Serve the HTTP API (server.enabled)

On SIGINT or SIGTERM it stops polling, waits for running jobs and shuts
the API down.

Examples:
  gensched serve
  gensched serve --tasks tasks.yaml --port 8090
  gensched serve --no-server`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveTasksFile, "tasks", "t", "", "Task file to apply (overrides tasks.file)")
	serveCmd.Flags().BoolVar(&serveNoServer, "no-server", false, "Do not serve the HTTP API")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the task file on change")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8090, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if cmd.Flags().Changed("tasks") {
		cfg.Tasks.File = serveTasksFile
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if serveNoServer {
		cfg.Server.Enabled = false
	}
	if serveNoWatch {
		cfg.Tasks.Watch = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, appOptions{archive: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Tasks.File != "" {
		if err := taskfile.ApplyFile(ctx, a.launcher, cfg.Tasks.File); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.launcher.Run(gctx)
	})

	if cfg.Tasks.File != "" && cfg.Tasks.Watch {
		reload := func(ctx context.Context, path string) error {
			return taskfile.ApplyFile(ctx, a.launcher, path)
		}
		w, err := taskfile.NewWatcher(cfg.Tasks.File, reload)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to watch task file, continuing without reload")
		} else {
			g.Go(func() error {
				return w.Run(gctx)
			})
		}
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg, a.db, a.store, a.launcher,
			server.WithEventBus(a.bus),
			server.WithVersion(version),
		)
		g.Go(func() error {
			return srv.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info().Msg("Shutdown complete")
	return err
}
