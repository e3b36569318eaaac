/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/seckatie/pocketsync/internal/core/db"
)

// resetFlags restores every flag of c and its children to its default so
// tests do not see values left by earlier executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetFlags(child)
	}
}

// execute runs the CLI with args against an isolated working directory and
// returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	resetFlags(rootCmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// seedDB creates a migrated database at path holding the given saved items.
func seedDB(t *testing.T, path string, items ...db.SavedItemInput) {
	t.Helper()
	database, err := db.NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	err = database.WithTx(context.Background(), func(tx *db.Tx) error {
		for _, in := range items {
			if _, err := tx.ApplySavedItem(in); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed database: %v", err)
	}
}

func TestRootCmd_Flags(t *testing.T) {
	tests := []struct {
		name         string
		flagName     string
		defaultValue string
	}{
		{"db flag has correct default", "db", "pocketsync.db"},
		{"log-level flag has correct default", "log-level", "info"},
		{"config flag is empty by default", "config", ""},
		{"env-file flag is empty by default", "env-file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := rootCmd.PersistentFlags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("flag %s not defined", tt.flagName)
			}
			if flag.DefValue != tt.defaultValue {
				t.Errorf("Flag %s: got %v, want %v", tt.flagName, flag.DefValue, tt.defaultValue)
			}
		})
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	want := []string{"sync", "daemon", "list", "tags", "reset", "offline", "mutate"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected %s subcommand to be registered", name)
		}
	}
}

func TestRootCmd_UsageOutput(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	defer rootCmd.SetOut(nil)
	defer rootCmd.SetErr(nil)

	if err := rootCmd.Usage(); err != nil {
		t.Errorf("Usage() returned error: %v", err)
	}
	if buf.String() == "" {
		t.Error("Expected usage output, got empty string")
	}
}

func TestRootCmd_CommandMetadata(t *testing.T) {
	if rootCmd.Use != "pocketsync" {
		t.Errorf("Expected Use to be 'pocketsync', got %s", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}
	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "tags")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRootCmd_EnvOverridesDBPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.db")
	seedDB(t, path, db.SavedItemInput{
		RemoteID: "1", URL: "https://example.com/env", CreatedAt: 1700000000, Tags: []string{"fromenv"},
	})
	t.Setenv("POCKETSYNC_DB_PATH", path)

	out, err := execute(t, "tags")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "fromenv") {
		t.Errorf("expected tags from env database, got %q", out)
	}
}

func TestMaxRetries(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, -1},
		{2, 2},
		{5, 5},
	}
	for _, tt := range tests {
		if got := maxRetries(tt.in); got != tt.want {
			t.Errorf("maxRetries(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
