/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seckatie/pocketsync/internal/config"
	"github.com/seckatie/pocketsync/internal/core"
	"github.com/seckatie/pocketsync/internal/core/db"
	pocketsync "github.com/seckatie/pocketsync/internal/core/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync on an interval and retry when the API comes back",
	Long: `Run until interrupted. Pending local changes are sent at start-up, then
all collections are synced every --interval. Operations that fail on a
transient error wait for the connectivity probe to see the API again.

With --offline, newly saved items and items never captured are rendered in
headless Chrome and stored for offline reading.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	logger := app.logger.Logger

	database, err := initDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	signal := pocketsync.NewSignal()
	syncer, client, err := initSyncer(database, signal)
	if err != nil {
		return err
	}

	events, unsubscribe := syncer.Events().Subscribe(64)
	defer unsubscribe()
	go logSyncEvents(events)

	if app.loader.Watch(func(updated *config.Config, err error) {
		if err != nil {
			logger.Warn("ignoring invalid config change", "error", err)
			return
		}
		if err := app.logger.SetLevel(updated.Log.Level); err != nil {
			logger.Warn("ignoring invalid log level", "error", err)
		}
	}) {
		logger.Info("watching config file", "path", app.loader.ConfigFileUsed())
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	if cfg.Offline.Enabled {
		if err := startCapturePool(ctx, g, database, cfg.Offline); err != nil {
			return err
		}
	}

	monitor := pocketsync.NewConnectivityMonitor(client, signal, cfg.Sync.ProbeInterval, logger)
	g.Go(func() error {
		monitor.Run(ctx)
		return nil
	})

	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, g, cfg.Metrics.Addr)
	}

	g.Go(func() error {
		runSyncLoop(ctx, syncer, cfg.Sync.Interval)
		return nil
	})

	logger.Info("daemon started", "interval", cfg.Sync.Interval, "offline", cfg.Offline.Enabled)
	err = g.Wait()
	logger.Info("daemon stopped")
	return err
}

func runSyncLoop(ctx context.Context, syncer *pocketsync.Syncer, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	run := func() {
		if n, err := syncer.ReplayPendingTasks(ctx); err != nil {
			app.logger.Warn("some pending changes were not sent", "error", err)
		} else if n > 0 {
			app.logger.Info("sent pending changes", "count", n)
		}
		if err := syncer.Sync(ctx); err != nil && ctx.Err() == nil {
			app.logger.Warn("sync finished with errors", "error", err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		app.logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func startCapturePool(ctx context.Context, g *errgroup.Group, database *db.DB, cfg config.OfflineConfig) error {
	logger := app.logger.With("component", "offline")
	inline := core.DefaultInlineOptions("")
	capturer := &core.Capturer{
		DB: database,
		Browser: core.ChromeBrowser{
			Options: core.CaptureOptions{
				ChromePath: chromePathOrDefault(cfg.ChromePath),
				Headless:   true,
				Timeout:    cfg.Timeout,
			},
			Logger: logger,
		},
		Inline: &inline,
		Logger: logger,
	}

	pool := core.NewCapturePool(capturer, cfg.Workers)
	queued, err := pool.QueueMissing(ctx, database)
	if err != nil {
		return err
	}
	pool.Listen(ctx, database)
	pool.Start(ctx)
	g.Go(func() error {
		pool.Wait()
		return nil
	})
	logger.Info("capture workers started", "workers", cfg.Workers, "queued", queued)
	return nil
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().Duration("interval", 15*time.Minute, "Time between syncs")
	daemonCmd.Flags().Bool("offline", false, "Capture saved pages for offline reading")
	daemonCmd.Flags().IntP("workers", "w", 2, "Number of offline capture workers")
	daemonCmd.Flags().String("chrome-path", "", "Path to Chrome/Chromium executable")
	daemonCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9090")
}
