package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/huntbot/internal/bot/coordinator"
	"github.com/cory-johannsen/huntbot/internal/bot/escape"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/input"
	"github.com/cory-johannsen/huntbot/internal/journal"
	"github.com/cory-johannsen/huntbot/internal/observability"
	"github.com/cory-johannsen/huntbot/internal/scripting"
	"github.com/cory-johannsen/huntbot/internal/server"
	"github.com/cory-johannsen/huntbot/internal/status"
	"github.com/cory-johannsen/huntbot/internal/storage/postgres"
	"github.com/cory-johannsen/huntbot/internal/vision"
)

const (
	journalBuffer   = 256
	shutdownTimeout = 3 * time.Second
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Long: `Run loads the configuration, starts every worker and the status surface,
and keeps running until SIGINT or SIGTERM. The configuration file is watched
and valid edits take effect on the next tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts.configPath)
		},
	}
}

func runBot(ctx context.Context, configPath string) error {
	start := time.Now()

	initial, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, level, err := observability.NewLeveledLogger(initial.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	watcher, err := config.NewWatcher(configPath, logger.Named("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	watcher.OnChange(func(c *config.Config) {
		if err := observability.ApplyLevel(level, c.Logging.Level); err != nil {
			logger.Warn("applying log level", zap.Error(err))
		}
	})
	watcher.Watch()
	cfg := watcher.Current()

	text, err := textSource(cfg.Detection, logger)
	if err != nil {
		return err
	}

	var hook escape.Scripter
	if cfg.Scripting.EscapeScript != "" {
		eng, err := scripting.Load(cfg.Scripting.EscapeScript, cfg.Scripting.InstructionLimit, logger.Named("scripting"))
		if err != nil {
			return err
		}
		defer eng.Close()
		hook = eng
		logger.Info("escape script loaded",
			zap.String("path", cfg.Scripting.EscapeScript),
			zap.Bool("timeout_hook", eng.Has(escape.TimeoutHook)),
		)
	}

	runID := uuid.New()
	sink, finish, err := journalSink(ctx, cfg.Database, runID, logger)
	if err != nil {
		return err
	}
	defer finish()
	rec := journal.NewRecorder(sink, runID, journalBuffer, logger.Named("journal"))
	defer rec.Close()

	coord := coordinator.New(coordinator.Deps{
		Text:    text,
		Pixels:  dryRunPixels(cfg.Heal),
		Input:   input.NewLogInjector(logger.Named("input")),
		Hook:    hook,
		Journal: rec,
	}, watcher, logger.Named("coordinator"))

	health := status.NewHealth()
	lc := server.NewLifecycle(logger.Named("lifecycle"), server.WithStopTimeout(cfg.Workers.StopTimeout+shutdownTimeout))
	lc.Add("coordinator", server.NewBackground(
		func() error {
			if err := coord.Start(ctx); err != nil {
				return err
			}
			health.SetServing(true)
			return nil
		},
		func() {
			health.SetServing(false)
			coord.Stop()
		},
	))
	if cfg.Status.Enabled {
		lc.Add("status-http", httpService(cfg.Status, status.NewHandler(coord, cfg.Status, logger.Named("status")), logger))
		lc.Add("status-grpc", grpcService(cfg.Status.GRPCAddr, health, logger))
	}

	logger.Info("huntbot starting",
		zap.String("run_id", runID.String()),
		zap.String("config", configPath),
		zap.Bool("status", cfg.Status.Enabled),
		zap.Bool("database", cfg.Database.Enabled),
		zap.Duration("startup", time.Since(start)),
	)
	return lc.Run(ctx)
}

func textSource(dc config.DetectionConfig, logger *zap.Logger) (vision.TextSource, error) {
	if dc.ReplayFile == "" {
		logger.Warn("no replay file configured, the detector will see no targets")
		return vision.TextFunc(func(context.Context) (string, error) { return "", nil }), nil
	}
	src, err := vision.LoadReplay(dc.ReplayFile, dc.ReplayHold)
	if err != nil {
		return nil, err
	}
	logger.Info("replaying target text", zap.String("path", dc.ReplayFile), zap.Duration("hold", dc.ReplayHold))
	return src, nil
}

func dryRunPixels(hc config.HealConfig) *vision.SolidPixels {
	px := vision.NewSolidPixels(color.RGBA{A: 255})
	for _, bar := range []config.BarConfig{hc.Health, hc.Mana} {
		c := bar.DryRunColor
		px.Set(bar.X, bar.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
	}
	return px
}

// journalSink returns the Postgres journal when the database is enabled and
// the log sink otherwise. finish closes the run and the pool.
func journalSink(ctx context.Context, dc config.DatabaseConfig, runID uuid.UUID, logger *zap.Logger) (journal.Sink, func(), error) {
	if !dc.Enabled {
		return journal.NewLogSink(logger.Named("journal")), func() {}, nil
	}

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, dc)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	repo := postgres.NewJournalRepository(pool.DB())
	host, _ := os.Hostname()
	if _, err := repo.CreateRun(ctx, runID, host); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("recording run: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", dc.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	finish := func() {
		fctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := repo.FinishRun(fctx, runID); err != nil {
			logger.Warn("closing run", zap.String("run_id", runID.String()), zap.Error(err))
		}
		pool.Close()
	}
	return repo, finish, nil
}

func httpService(sc config.StatusConfig, handler http.Handler, logger *zap.Logger) server.Service {
	srv := &http.Server{Addr: sc.HTTPAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	return &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", sc.HTTPAddr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", sc.HTTPAddr, err)
			}
			logger.Info("status http listening", zap.String("addr", lis.Addr().String()))
			if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("status http shutdown", zap.Error(err))
			}
		},
	}
}

func grpcService(addr string, health *status.Health, logger *zap.Logger) server.Service {
	srv := grpc.NewServer()
	health.Register(srv)
	return &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", addr, err)
			}
			logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
			return srv.Serve(lis)
		},
		StopFn: func() {
			health.Shutdown()
			// Health watch streams keep GracefulStop waiting.
			stopped := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(shutdownTimeout):
				srv.Stop()
			}
		},
	}
}
