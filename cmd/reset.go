/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	pocketsync "github.com/seckatie/pocketsync/internal/core/sync"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all local data, as on sign-out",
	Long: `Delete every saved item, item, tag, pending change and offline capture
from the local database and forget the last-refresh timestamps. The next
sync downloads the account again from scratch.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, err := cmd.Flags().GetBool("yes")
		if err != nil {
			return fmt.Errorf("failed to read --yes: %w", err)
		}
		if !yes {
			return errors.New("refusing to delete local data without --yes")
		}

		database, err := initDB()
		if err != nil {
			return err
		}
		defer closeDB(database)

		// Reset needs no API access, so no client is built.
		syncer := pocketsync.New(nil, database, nil, pocketsync.Config{}, pocketsync.WithLogger(app.logger.Logger))
		if err := syncer.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "local data cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolP("yes", "y", false, "Confirm deleting all local data")
}
