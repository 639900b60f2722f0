package tasks

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
)

const (
	taskCollection      = "tasks"
	householdCollection = "households"
)

// Store is the planner's view of task and household documents.
type Store interface {
	ListActive(ctx context.Context, limit int) ([]Task, error)
	UpdateSchedule(ctx context.Context, id string, occurrenceAt, notifyAt *time.Time) error
	MarkNotified(ctx context.Context, id string, occurrenceAt time.Time) error
	HouseholdTimezone(ctx context.Context, householdID string) (string, error)
}

// FirestoreStore implements Store on Firestore documents.
type FirestoreStore struct {
	client *firestore.Client
	logger *logger.Logger
}

// NewFirestoreStore creates a Firestore-backed task store.
func NewFirestoreStore(client *firestore.Client, logger *logger.Logger) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		logger: logger.WithComponent("task-store"),
	}
}

// ListActive returns up to limit active tasks.
func (s *FirestoreStore) ListActive(ctx context.Context, limit int) ([]Task, error) {
	docs, err := s.client.Collection(taskCollection).
		Where("active", "==", true).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}

	out := make([]Task, 0, len(docs))
	for _, doc := range docs {
		var t Task
		if err := doc.DataTo(&t); err != nil {
			s.logger.Warn("skipping malformed task document", "id", doc.Ref.ID, "error", err)
			continue
		}
		t.ID = doc.Ref.ID
		out = append(out, t)
	}
	return out, nil
}

// UpdateSchedule writes back the resolved occurrence bookkeeping.
func (s *FirestoreStore) UpdateSchedule(ctx context.Context, id string, occurrenceAt, notifyAt *time.Time) error {
	_, err := s.client.Collection(taskCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "nextOccurrenceAt", Value: timeOrNil(occurrenceAt)},
		{Path: "nextNotifyAt", Value: timeOrNil(notifyAt)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule for task %s: %w", id, err)
	}
	return nil
}

// MarkNotified records the occurrence a reminder was composed for, so the
// same occurrence is never reminded about twice.
func (s *FirestoreStore) MarkNotified(ctx context.Context, id string, occurrenceAt time.Time) error {
	_, err := s.client.Collection(taskCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastNotifiedFor", Value: occurrenceAt},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to mark task %s notified: %w", id, err)
	}
	return nil
}

// HouseholdTimezone returns the household's IANA timezone name, or empty
// when the household or the field is missing.
func (s *FirestoreStore) HouseholdTimezone(ctx context.Context, householdID string) (string, error) {
	doc, err := s.client.Collection(householdCollection).Doc(householdID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch household %s: %w", householdID, err)
	}

	var h Household
	if err := doc.DataTo(&h); err != nil {
		return "", fmt.Errorf("failed to parse household %s: %w", householdID, err)
	}
	return h.Timezone, nil
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
