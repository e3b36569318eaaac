/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	pocketsync "github.com/seckatie/pocketsync/internal/core/sync"
)

var mutateCmd = &cobra.Command{
	Use:   "mutate",
	Short: "Change a saved item locally and on Pocket",
	Long: `Apply a change to the local database and send it to Pocket. If Pocket
cannot be reached the change is kept and sent by the next sync or daemon
run.`,
}

// mutationCommand builds a subcommand that applies one change to a saved item.
func mutationCommand(use, short string, apply func(ctx context.Context, s *pocketsync.Syncer, remoteID string, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := initDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			syncer, _, err := initSyncer(database, nil)
			if err != nil {
				return err
			}
			if err := apply(cmd.Context(), syncer, args[0], args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cmd.Name(), args[0])
			return nil
		},
	}
}

func exactlyOne(fn func(*pocketsync.Syncer, context.Context, string) error) func(context.Context, *pocketsync.Syncer, string, []string) error {
	return func(ctx context.Context, s *pocketsync.Syncer, remoteID string, rest []string) error {
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments: %v", rest)
		}
		return fn(s, ctx, remoteID)
	}
}

func init() {
	rootCmd.AddCommand(mutateCmd)

	mutateCmd.AddCommand(
		mutationCommand("archive <id>", "Archive a saved item", exactlyOne((*pocketsync.Syncer).Archive)),
		mutationCommand("unarchive <id>", "Move a saved item back to saves", exactlyOne((*pocketsync.Syncer).Unarchive)),
		mutationCommand("favorite <id>", "Mark a saved item as favorite", exactlyOne((*pocketsync.Syncer).Favorite)),
		mutationCommand("unfavorite <id>", "Remove the favorite mark", exactlyOne((*pocketsync.Syncer).Unfavorite)),
		mutationCommand("delete <id>", "Delete a saved item", exactlyOne((*pocketsync.Syncer).Delete)),
		mutationCommand("tag <id> [tag]...", "Replace a saved item's tags (no tags clears them)",
			func(ctx context.Context, s *pocketsync.Syncer, remoteID string, tags []string) error {
				return s.ReplaceTags(ctx, remoteID, tags)
			}),
	)
}
