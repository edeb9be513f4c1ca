package services

import (
	"context"
	"fmt"
	"time"

	"flowboard/model"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

func (b *FirestoreBackend) openEntries(userID string) firestore.Query {
	return b.client.Collection(colTimeEntries).Where("userid", "==", userID).Where("stop", "==", nil)
}

// StartTimer opens a time entry for the user. It is a no-op when the same
// task already has an open entry and fails when another task has one.
func (b *FirestoreBackend) StartTimer(ctx context.Context, taskID string) error {
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(b.client.Collection(colTasks).Doc(taskID)); err != nil {
			return err
		}
		open, err := tx.Documents(b.openEntries(b.userID)).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range open {
			var e model.TimeEntry
			if err := doc.DataTo(&e); err != nil {
				return err
			}
			if e.TaskID == taskID {
				return nil
			}
			return fmt.Errorf("timer already running on task %s", e.TaskID)
		}
		entryID := uuid.New().String()
		return tx.Create(b.client.Collection(colTimeEntries).Doc(entryID), model.TimeEntry{
			EntryID: entryID,
			TaskID:  taskID,
			UserID:  b.userID,
			Start:   b.now(),
		})
	})
	return notFound(err, "task "+taskID)
}

// StopTimer closes the user's open entries on taskID and adds their whole
// seconds to the task's tracked total.
func (b *FirestoreBackend) StopTimer(ctx context.Context, taskID string) error {
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		open, err := tx.Documents(b.openEntries(b.userID).Where("taskid", "==", taskID)).GetAll()
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return fmt.Errorf("no running timer on task %s", taskID)
		}
		now := b.now()
		var total int64
		for _, doc := range open {
			var e model.TimeEntry
			if err := doc.DataTo(&e); err != nil {
				return err
			}
			secs := int64(now.Sub(e.Start) / time.Second)
			if secs < 0 {
				secs = 0
			}
			total += secs
			err := tx.Update(doc.Ref, []firestore.Update{
				{Path: "stop", Value: now},
				{Path: "duration", Value: secs},
			})
			if err != nil {
				return err
			}
		}
		return tx.Update(b.client.Collection(colTasks).Doc(taskID), []firestore.Update{
			{Path: "trackedseconds", Value: firestore.Increment(total)},
		})
	})
	return notFound(err, "task "+taskID)
}

func (b *FirestoreBackend) FetchTimeEntries(ctx context.Context, taskIDs []string, start, end time.Time) ([]model.TimeEntry, error) {
	var out []model.TimeEntry
	err := queryIn(ctx, b.client.Collection(colTimeEntries).Query, "taskid", taskIDs, func(doc *firestore.DocumentSnapshot) error {
		var e model.TimeEntry
		if err := doc.DataTo(&e); err != nil {
			return err
		}
		if overlaps(e, start, end) {
			e.EntryID = doc.Ref.ID
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load time entries: %w", err)
	}
	return out, nil
}

// overlaps reports whether a closed entry intersects [start, end). Zero bounds
// are unbounded.
func overlaps(e model.TimeEntry, start, end time.Time) bool {
	if e.Stop == nil {
		return false
	}
	if !end.IsZero() && !e.Start.Before(end) {
		return false
	}
	if !start.IsZero() && !e.Stop.After(start) {
		return false
	}
	return true
}

func (b *FirestoreBackend) LogActivity(ctx context.Context, taskID string, kind model.ActivityKind, details map[string]any) error {
	id := uuid.New().String()
	_, err := b.client.Collection(colActivity).Doc(id).Set(ctx, model.Activity{
		ActivityID: id,
		TaskID:     taskID,
		Kind:       kind,
		Details:    details,
		Actor:      b.userID,
		CreatedAt:  b.now(),
	})
	return err
}
