/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seckatie/pocketsync/internal/core/db"
)

var tagScopes = map[string]db.TagScope{
	"all":     db.TagScopeAll,
	"saves":   db.TagScopeSaves,
	"archive": db.TagScopeArchive,
	"unused":  db.TagScopeUnused,
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List locally stored tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeName, err := cmd.Flags().GetString("scope")
		if err != nil {
			return fmt.Errorf("failed to read --scope: %w", err)
		}
		scope, ok := tagScopes[scopeName]
		if !ok {
			return fmt.Errorf("unknown scope %q (want all, saves, archive or unused)", scopeName)
		}

		database, err := initDB()
		if err != nil {
			return err
		}
		defer closeDB(database)

		tags, err := database.ListTags(cmd.Context(), db.TagQuery{Scope: scope})
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Fprintln(cmd.OutOrStdout(), t.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagsCmd)

	tagsCmd.Flags().String("scope", "all", "Which tags to list: all, saves, archive or unused")
}
