package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSyncTasks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	base := time.Unix(1000, 0)
	for i, id := range []string{"b", "a", "c"} {
		err := db.SaveSyncTask(ctx, SyncTask{
			ID:        id,
			Kind:      "archive",
			Payload:   []byte(`{"remote_id":"` + id + `"}`),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	t.Run("lists oldest first", func(t *testing.T) {
		tasks, err := db.ListSyncTasks(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tasks) != 3 || tasks[0].ID != "b" || tasks[1].ID != "a" || tasks[2].ID != "c" {
			t.Fatalf("unexpected order %+v", tasks)
		}
		if string(tasks[0].Payload) != `{"remote_id":"b"}` {
			t.Errorf("unexpected payload %q", tasks[0].Payload)
		}
		if !tasks[0].CreatedAt.Equal(base) {
			t.Errorf("expected created at %v, got %v", base, tasks[0].CreatedAt)
		}
	})

	t.Run("increments attempts", func(t *testing.T) {
		if err := db.IncrementSyncTaskAttempts(ctx, "a"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tasks, _ := db.ListSyncTasks(ctx)
		if tasks[1].Attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", tasks[1].Attempts)
		}
		if err := db.IncrementSyncTaskAttempts(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("deletes", func(t *testing.T) {
		if err := db.DeleteSyncTask(ctx, "a"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := db.DeleteSyncTask(ctx, "a"); err != nil {
			t.Fatalf("expected deleting twice to succeed, got %v", err)
		}
		tasks, _ := db.ListSyncTasks(ctx)
		if len(tasks) != 2 {
			t.Errorf("expected 2 tasks, got %d", len(tasks))
		}
	})

	t.Run("rejects missing ID", func(t *testing.T) {
		if err := db.SaveSyncTask(ctx, SyncTask{Kind: "archive"}); err == nil {
			t.Error("expected error for missing ID")
		}
	})
}
