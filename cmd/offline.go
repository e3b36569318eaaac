/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The offline command captures saved items' pages for offline reading.
//
// Features:
//   - Capture a single saved item by its remote ID.
//   - Capture a batch of items never captured, or retry failed captures.
//   - Customize the Chrome/Chromium executable used for rendering.
//   - Run Chrome headless or with a visible window.
//   - Wait for a CSS selector before capturing JS-rendered pages.
//
// Example usage:
//
//	pocketsync offline --id=123456 --timeout=30s --wait-selector=".article"
//	pocketsync offline --limit=10 --retry-failed --headful
package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/seckatie/pocketsync/internal/core"
)

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Capture saved items for offline reading",
	Long: `Render saved items in Chrome, inline their stylesheets, scripts and
images, and store the result in the local database. Without --id, every
saved item that has never been captured is processed.`,
	Args: cobra.NoArgs,
	RunE: runOffline,
}

func runOffline(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	id, err := flags.GetString("id")
	if err != nil {
		return fmt.Errorf("failed to read --id: %w", err)
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to read --limit: %w", err)
	}
	retryFailed, err := flags.GetBool("retry-failed")
	if err != nil {
		return fmt.Errorf("failed to read --retry-failed: %w", err)
	}
	waitSelector, err := flags.GetString("wait-selector")
	if err != nil {
		return fmt.Errorf("failed to read --wait-selector: %w", err)
	}
	headful, err := flags.GetBool("headful")
	if err != nil {
		return fmt.Errorf("failed to read --headful: %w", err)
	}
	noInline, err := flags.GetBool("no-inline")
	if err != nil {
		return fmt.Errorf("failed to read --no-inline: %w", err)
	}

	database, err := initDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	logger := app.logger.With("component", "offline")
	capturer := &core.Capturer{
		DB: database,
		Browser: core.ChromeBrowser{
			Options: core.CaptureOptions{
				ChromePath:   chromePathOrDefault(app.cfg.Offline.ChromePath),
				Headless:     !headful,
				Timeout:      app.cfg.Offline.Timeout,
				WaitSelector: waitSelector,
			},
			Logger: logger,
		},
		Logger: logger,
	}
	if !noInline {
		inline := core.DefaultInlineOptions("")
		capturer.Inline = &inline
	}

	res, err := capturer.Run(cmd.Context(), core.CaptureRunOptions{
		RemoteID:    id,
		Limit:       limit,
		RetryFailed: retryFailed,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "attempted: %d, succeeded: %d, failed: %d\n", res.Attempted, res.Succeeded, res.Failed)
	return err
}

// chromePathOrDefault falls back to the standard Chrome install on macOS.
func chromePathOrDefault(path string) string {
	if path == "" && runtime.GOOS == "darwin" {
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	}
	return path
}

func init() {
	rootCmd.AddCommand(offlineCmd)

	offlineCmd.Flags().String("id", "", "Capture a specific saved item by remote ID")
	offlineCmd.Flags().Int("limit", 0, "Limit the number of items to capture (0 = all)")
	offlineCmd.Flags().Bool("retry-failed", false, "Capture items whose last attempt failed")
	offlineCmd.Flags().Duration("timeout", core.DefaultCaptureTimeout, "Per-item capture timeout")
	offlineCmd.Flags().String("wait-selector", "", "Optional CSS selector to wait for (useful for JS-heavy pages)")
	offlineCmd.Flags().String("chrome-path", "", "Path to Chrome/Chromium executable")
	offlineCmd.Flags().Bool("headful", false, "Run Chrome with a visible window (not headless)")
	offlineCmd.Flags().Bool("no-inline", false, "Store the rendered HTML without inlining resources")
}
