/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seckatie/pocketsync/internal/config"
	"github.com/seckatie/pocketsync/internal/core/db"
	"github.com/seckatie/pocketsync/internal/core/graph"
	pocketsync "github.com/seckatie/pocketsync/internal/core/sync"
	"github.com/seckatie/pocketsync/internal/logging"
)

// app holds what PersistentPreRunE prepared for the running command.
var app struct {
	loader *config.Loader
	cfg    *config.Config
	logger *logging.Logger
}

// flagBindings maps command-line flags to config keys. Flags are bound only
// when the running command defines them.
var flagBindings = map[string]string{
	"db":           "db.path",
	"log-level":    "log.level",
	"interval":     "sync.interval",
	"max-items":    "sync.max_items",
	"offline":      "offline.enabled",
	"workers":      "offline.workers",
	"chrome-path":  "offline.chrome_path",
	"timeout":      "offline.timeout",
	"metrics-addr": "metrics.addr",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pocketsync",
	Short: "Keep a local SQLite copy of a Pocket account in sync",
	Long: `pocketsync downloads a Pocket account's saves, archive and tags into a
local SQLite database and keeps it current with incremental syncs.

Local changes (archive, favorite, delete, tags) are applied to the database
first and then sent to Pocket, retrying when the API is unreachable. The
daemon command runs syncs on an interval and can capture saved pages for
offline reading.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		envFile, err := cmd.Flags().GetString("env-file")
		if err != nil {
			return err
		}

		var dotenv []string
		if envFile != "" {
			dotenv = []string{envFile}
		}
		loader := config.NewLoader(cfgFile, dotenv...)
		v := loader.Viper()
		for flag, key := range flagBindings {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind --%s: %w", flag, err)
				}
			}
		}

		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		if used := loader.ConfigFileUsed(); used != "" {
			logger.Debug("loaded config file", "path", used)
		}

		app.loader, app.cfg, app.logger = loader, cfg, logger
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app.logger == nil {
			return nil
		}
		return app.logger.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default .pocketsync.yaml in . or $HOME/.config/pocketsync)")
	rootCmd.PersistentFlags().String("env-file", "", "Dotenv file to load (default .env)")
	rootCmd.PersistentFlags().StringP("db", "d", "pocketsync.db", "Path to the SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
}

func initDB() (*db.DB, error) {
	database, err := db.NewSQLiteDB(app.cfg.DB.Path, db.WithLogger(app.logger.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	app.logger.Debug("database ready", "path", app.cfg.DB.Path)
	return database, nil
}

func closeDB(database *db.DB) {
	if err := database.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}

func initGraphClient() (*graph.Client, error) {
	api := app.cfg.API
	if api.AccessToken == "" || api.ConsumerKey == "" {
		return nil, errors.New("api.consumer_key and api.access_token are required (POCKETSYNC_API_CONSUMER_KEY, POCKETSYNC_API_ACCESS_TOKEN)")
	}
	return graph.NewClient(graph.Config{
		Endpoint:          api.URL,
		ConsumerKey:       api.ConsumerKey,
		AccessToken:       api.AccessToken,
		Timeout:           api.Timeout,
		RequestsPerSecond: api.RequestsPerSecond,
	}, graph.WithLogger(app.logger.Logger))
}

// initSyncer wires a syncer to the database and API. A nil signal makes
// transient failures final, which suits one-shot commands.
func initSyncer(database *db.DB, signal pocketsync.RetrySignal) (*pocketsync.Syncer, *graph.Client, error) {
	client, err := initGraphClient()
	if err != nil {
		return nil, nil, err
	}
	s := app.cfg.Sync
	syncer := pocketsync.New(client, database, signal, pocketsync.Config{
		PageSize:   s.PageSize,
		MaxItems:   s.MaxItems,
		MaxRetries: maxRetries(s.MaxRetries),
	}, pocketsync.WithLogger(app.logger.Logger))
	return syncer, client, nil
}

// maxRetries maps sync.max_retries onto the syncer config, where zero
// means the default. A configured 0 disables retries.
func maxRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
