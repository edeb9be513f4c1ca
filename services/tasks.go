package services

import (
	"context"
	"time"

	"flowboard/board"
	"flowboard/model"

	"cloud.google.com/go/firestore"
)

func (b *FirestoreBackend) FetchAssignees(ctx context.Context, taskIDs []string) ([]model.Assignment, error) {
	var out []model.Assignment
	err := queryIn(ctx, b.client.Collection(colAssignees).Query, "taskid", taskIDs, func(doc *firestore.DocumentSnapshot) error {
		var a model.Assignment
		if err := doc.DataTo(&a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// ReorderTasks writes position = index for every task of the flow in one
// transaction.
func (b *FirestoreBackend) ReorderTasks(ctx context.Context, flowID string, orderedTaskIDs []string) error {
	return b.writeOrder(ctx, flowID, orderedTaskIDs)
}

func (b *FirestoreBackend) MoveTask(ctx context.Context, taskID, flowID string, orderedTaskIDs []string) error {
	return b.writeOrder(ctx, flowID, orderedTaskIDs)
}

func (b *FirestoreBackend) writeOrder(ctx context.Context, flowID string, orderedTaskIDs []string) error {
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, id := range orderedTaskIDs {
			err := tx.Update(b.client.Collection(colTasks).Doc(id), []firestore.Update{
				{Path: "flowid", Value: flowID},
				{Path: "position", Value: i},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return notFound(err, "task in flow "+flowID)
}

func (b *FirestoreBackend) UpdateTask(ctx context.Context, taskID string, patch board.TaskPatch) error {
	var updates []firestore.Update
	if patch.Title != nil {
		updates = append(updates, firestore.Update{Path: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		updates = append(updates, firestore.Update{Path: "description", Value: *patch.Description})
	}
	if patch.Priority != nil {
		updates = append(updates, firestore.Update{Path: "priority", Value: string(*patch.Priority)})
	}
	if patch.DueDate != nil {
		updates = append(updates, firestore.Update{Path: "duedate", Value: *patch.DueDate})
	} else if patch.ClearDue {
		updates = append(updates, firestore.Update{Path: "duedate", Value: nil})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := b.client.Collection(colTasks).Doc(taskID).Update(ctx, updates)
	return notFound(err, "task "+taskID)
}

// DeleteTask removes the task and its assignee rows. Time entries stay for
// reporting.
func (b *FirestoreBackend) DeleteTask(ctx context.Context, taskID string) error {
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		assignees, err := tx.Documents(b.client.Collection(colAssignees).Where("taskid", "==", taskID)).GetAll()
		if err != nil {
			return err
		}
		if err := tx.Delete(b.client.Collection(colTasks).Doc(taskID), firestore.Exists); err != nil {
			return err
		}
		for _, doc := range assignees {
			if err := tx.Delete(doc.Ref); err != nil {
				return err
			}
		}
		return nil
	})
	return notFound(err, "task "+taskID)
}

type assigneeDoc struct {
	TaskID     string    `firestore:"taskid"`
	UserID     string    `firestore:"userid"`
	AssignedAt time.Time `firestore:"assignedat"`
}

func (b *FirestoreBackend) AddAssignee(ctx context.Context, taskID, userID string) error {
	doc := assigneeDoc{TaskID: taskID, UserID: userID, AssignedAt: b.now()}
	_, err := b.client.Collection(colAssignees).Doc(assigneeDocID(taskID, userID)).Set(ctx, doc)
	return err
}

func (b *FirestoreBackend) RemoveAssignee(ctx context.Context, taskID, userID string) error {
	_, err := b.client.Collection(colAssignees).Doc(assigneeDocID(taskID, userID)).Delete(ctx)
	return err
}
