package db

import (
	"context"
	"testing"
)

func TestLastRefresh(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	t.Run("absent is distinct from zero", func(t *testing.T) {
		_, ok, err := db.LastRefresh(ctx, "saves")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ok {
			t.Error("expected no timestamp before the first set")
		}

		if err := db.SetLastRefresh(ctx, "saves", 0); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		ts, ok, err := db.LastRefresh(ctx, "saves")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !ok || ts != 0 {
			t.Errorf("expected stored 0, got %d (ok=%v)", ts, ok)
		}
	})

	t.Run("set overwrites per collection", func(t *testing.T) {
		if err := db.SetLastRefresh(ctx, "archive", 10); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := db.SetLastRefresh(ctx, "archive", 20); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		ts, _, _ := db.LastRefresh(ctx, "archive")
		if ts != 20 {
			t.Errorf("expected 20, got %d", ts)
		}
		saves, _, _ := db.LastRefresh(ctx, "saves")
		if saves != 0 {
			t.Errorf("expected saves untouched, got %d", saves)
		}
	})

	t.Run("reset clears every collection", func(t *testing.T) {
		if err := db.ResetLastRefresh(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, c := range []string{"saves", "archive"} {
			if _, ok, _ := db.LastRefresh(ctx, c); ok {
				t.Errorf("expected %s to be absent after reset", c)
			}
		}
	})
}

func TestPremiumStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	premium, err := db.PremiumStatus(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if premium {
		t.Error("expected non-premium by default")
	}

	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.SetPremiumStatus(true) }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if premium, _ = db.PremiumStatus(ctx); !premium {
		t.Error("expected premium after set")
	}
}
