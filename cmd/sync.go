/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seckatie/pocketsync/internal/core/db"
	pocketsync "github.com/seckatie/pocketsync/internal/core/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync [saves|archive|tags]...",
	Short: "Run one sync of the given collections (default: all)",
	Long: `Send any pending local changes, then fetch saves, archive and tags from
Pocket. Collections that were synced before are fetched incrementally;
--full forgets the last-refresh timestamps first.`,
	ValidArgs: []string{
		string(pocketsync.CollectionSaves),
		string(pocketsync.CollectionArchive),
		string(pocketsync.CollectionTags),
	},
	Args: cobra.OnlyValidArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	database, err := initDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	syncer, _, err := initSyncer(database, nil)
	if err != nil {
		return err
	}

	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return fmt.Errorf("failed to read --full: %w", err)
	}
	if full {
		if err := (pocketsync.StoreLastRefresh{DB: database}).Reset(ctx); err != nil {
			return err
		}
	}

	events, unsubscribe := syncer.Events().Subscribe(16)
	defer unsubscribe()
	go logSyncEvents(events)

	sent, err := syncer.ReplayPendingTasks(ctx)
	if err != nil {
		app.logger.Warn("some pending changes were not sent", "error", err)
	} else if sent > 0 {
		app.logger.Info("sent pending changes", "count", sent)
	}

	collections := make([]pocketsync.Collection, 0, len(args))
	for _, a := range args {
		collections = append(collections, pocketsync.Collection(a))
	}
	syncErr := syncer.Sync(ctx, collections...)

	saves, err := database.CountSavedItems(ctx, db.SavedItemQuery{Filter: db.FilterSaves})
	if err != nil {
		return err
	}
	archived, err := database.CountSavedItems(ctx, db.SavedItemQuery{Filter: db.FilterArchive})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saves: %d, archive: %d\n", saves, archived)
	return syncErr
}

// logSyncEvents logs the sync event stream until it is closed.
func logSyncEvents(events <-chan pocketsync.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case pocketsync.ErrorEvent:
			app.logger.Error("sync failed", "operation", e.Operation, "error", e.Err)
		case pocketsync.InitialDownloadStarted:
			app.logger.Info("initial download started")
		case pocketsync.InitialDownloadPaginating:
			app.logger.Info("initial download in progress", "total", e.TotalCount)
		case pocketsync.InitialDownloadCompleted:
			app.logger.Info("initial download completed")
		}
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("full", false, "Forget last-refresh timestamps and fetch everything")
}
