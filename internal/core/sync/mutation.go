package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/seckatie/pocketsync/internal/core/db"
	"github.com/seckatie/pocketsync/internal/core/graph"
)

func (s *Syncer) Archive(ctx context.Context, remoteID string) error {
	return s.mutate(ctx, graph.Mutation{Kind: graph.MutationArchive, RemoteID: remoteID})
}

func (s *Syncer) Unarchive(ctx context.Context, remoteID string) error {
	return s.mutate(ctx, graph.Mutation{Kind: graph.MutationUnarchive, RemoteID: remoteID})
}

func (s *Syncer) Favorite(ctx context.Context, remoteID string) error {
	return s.mutate(ctx, graph.Mutation{Kind: graph.MutationFavorite, RemoteID: remoteID})
}

func (s *Syncer) Unfavorite(ctx context.Context, remoteID string) error {
	return s.mutate(ctx, graph.Mutation{Kind: graph.MutationUnfavorite, RemoteID: remoteID})
}

func (s *Syncer) Delete(ctx context.Context, remoteID string) error {
	return s.mutate(ctx, graph.Mutation{Kind: graph.MutationDelete, RemoteID: remoteID})
}

// ReplaceTags sets the saved item's tags to exactly tags.
func (s *Syncer) ReplaceTags(ctx context.Context, remoteID string, tags []string) error {
	return s.mutate(ctx, graph.Mutation{Kind: graph.MutationReplaceTags, RemoteID: remoteID, Tags: tags})
}

// mutate applies m to the store, persists it as a sync task and sends it.
func (s *Syncer) mutate(ctx context.Context, m graph.Mutation) error {
	m.At = s.now()
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.applyLocal(ctx, m); err != nil {
		return err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mutation: %w", err)
	}
	task := db.SyncTask{
		ID:        uuid.NewString(),
		Kind:      string(m.Kind),
		Payload:   payload,
		CreatedAt: m.At,
	}
	if err := s.db.SaveSyncTask(ctx, task); err != nil {
		return err
	}
	PendingTasks.Inc()
	return s.send(ctx, task, m)
}

func (s *Syncer) applyLocal(ctx context.Context, m graph.Mutation) error {
	return s.db.WithTx(ctx, func(tx *db.Tx) error {
		switch m.Kind {
		case graph.MutationArchive:
			return tx.SetArchived(m.RemoteID, true, m.At)
		case graph.MutationUnarchive:
			return tx.SetArchived(m.RemoteID, false, m.At)
		case graph.MutationFavorite:
			return tx.SetFavorite(m.RemoteID, true)
		case graph.MutationUnfavorite:
			return tx.SetFavorite(m.RemoteID, false)
		case graph.MutationDelete:
			existed, err := tx.DeleteSavedItem(m.RemoteID)
			if err != nil {
				return err
			}
			if !existed {
				return fmt.Errorf("saved item %s: %w", m.RemoteID, db.ErrNotFound)
			}
			return nil
		case graph.MutationReplaceTags:
			return tx.ReplaceTags(m.RemoteID, m.Tags)
		default:
			return fmt.Errorf("unknown mutation kind %q", m.Kind)
		}
	})
}

// send runs the task through the queue. The task is kept for a later
// replay when the last failure was transient or the context ended, and
// dropped otherwise.
func (s *Syncer) send(ctx context.Context, task db.SyncTask, m graph.Mutation) error {
	logger := s.logger.With("category", "sync", "task_id", task.ID, "kind", task.Kind, "remote_id", m.RemoteID)
	name := "mutation:" + task.Kind

	var lastErr error
	res := s.queue.RunNamed(ctx, "mutation:"+task.ID, name, OperationFunc(func(ctx context.Context) Result {
		err := s.client.Mutate(ctx, m)
		lastErr = err
		if err == nil {
			return Success()
		}
		if incErr := s.db.IncrementSyncTaskAttempts(ctx, task.ID); incErr != nil {
			logger.Warn("failed to record attempt", "error", incErr)
		}
		return classified(logger, s.events, name, err)
	}))

	if !res.Succeeded() && (Classify(lastErr) == StatusRetry || ctx.Err() != nil) {
		logger.Info("mutation kept for replay", "error", res.Err)
		return res.Err
	}

	// The task outcome is final; use a fresh context so cleanup survives
	// cancellation of the caller.
	if err := s.db.DeleteSyncTask(context.WithoutCancel(ctx), task.ID); err != nil {
		logger.Error("failed to delete sync task", "error", err)
	} else {
		PendingTasks.Dec()
	}
	if !res.Succeeded() {
		return res.Err
	}
	logger.Info("mutation sent")
	return nil
}

// ReplayPendingTasks resends every persisted task, oldest first, and
// returns how many were sent successfully.
func (s *Syncer) ReplayPendingTasks(ctx context.Context) (int, error) {
	tasks, err := s.db.ListSyncTasks(ctx)
	if err != nil {
		return 0, err
	}
	PendingTasks.Set(float64(len(tasks)))

	sent := 0
	var errs []error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		var m graph.Mutation
		if err := json.Unmarshal(task.Payload, &m); err != nil {
			s.logger.Error("dropping unreadable sync task", "task_id", task.ID, "error", err)
			if delErr := s.db.DeleteSyncTask(ctx, task.ID); delErr == nil {
				PendingTasks.Dec()
			}
			continue
		}
		if err := s.send(ctx, task, m); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
