/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seckatie/pocketsync/internal/core/db"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally stored saved items",
	Long: `List saved items from the local database without contacting Pocket.
Saves are shown newest first; --archive shows archived items by archive time.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	q, err := savedItemQueryFromFlags(cmd)
	if err != nil {
		return err
	}

	database, err := initDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	items, err := database.ListSavedItems(cmd.Context(), q)
	if err != nil {
		return err
	}
	return printSavedItems(cmd.OutOrStdout(), items)
}

func savedItemQueryFromFlags(cmd *cobra.Command) (db.SavedItemQuery, error) {
	flags := cmd.Flags()
	archive, err := flags.GetBool("archive")
	if err != nil {
		return db.SavedItemQuery{}, fmt.Errorf("failed to read --archive: %w", err)
	}
	all, err := flags.GetBool("all")
	if err != nil {
		return db.SavedItemQuery{}, fmt.Errorf("failed to read --all: %w", err)
	}
	if archive && all {
		return db.SavedItemQuery{}, fmt.Errorf("--archive and --all are mutually exclusive")
	}
	favorites, err := flags.GetBool("favorites")
	if err != nil {
		return db.SavedItemQuery{}, fmt.Errorf("failed to read --favorites: %w", err)
	}
	tag, err := flags.GetString("tag")
	if err != nil {
		return db.SavedItemQuery{}, fmt.Errorf("failed to read --tag: %w", err)
	}
	search, err := flags.GetString("search")
	if err != nil {
		return db.SavedItemQuery{}, fmt.Errorf("failed to read --search: %w", err)
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return db.SavedItemQuery{}, fmt.Errorf("failed to read --limit: %w", err)
	}

	q := db.SavedItemQuery{
		Filter:    db.FilterSaves,
		Favorites: favorites,
		Tag:       tag,
		Search:    search,
		Limit:     limit,
	}
	switch {
	case archive:
		q.Filter = db.FilterArchive
	case all:
		q.Filter = db.FilterAll
	}
	return q, nil
}

func printSavedItems(out io.Writer, items []db.SavedItem) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSAVED\tFLAGS\tTITLE\tURL\tTAGS")
	for _, s := range items {
		title := ""
		if s.Item != nil {
			title = s.Item.Title
		}
		var flags string
		if s.IsFavorite {
			flags += "*"
		}
		if s.IsArchived {
			flags += "A"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.RemoteID,
			time.Unix(s.CreatedAt, 0).UTC().Format("2006-01-02"),
			flags,
			truncate(title, 60),
			s.URL,
			strings.Join(s.Tags, ","),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().Bool("archive", false, "List archived items")
	listCmd.Flags().Bool("all", false, "List saves and archive together")
	listCmd.Flags().Bool("favorites", false, "Only favorites")
	listCmd.Flags().String("tag", "", "Only items with this tag")
	listCmd.Flags().StringP("search", "s", "", "Match URL or title (and tag name for premium accounts)")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of items (0 = all)")
}
