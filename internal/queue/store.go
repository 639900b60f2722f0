package queue

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
)

const (
	queueCollection      = "notification_queue"
	deadLetterCollection = "dead_letters"
	householdCollection  = "households"
	runMetricsCollection = "delivery_runs"
)

// Store is the queue worker's view of the persistent queue. The store is
// the only durable representation of delivery state; there is no in-memory
// queue beyond the current batch.
type Store interface {
	Enqueue(ctx context.Context, n *QueuedNotification) error
	Due(ctx context.Context, now time.Time, limit int) ([]QueuedNotification, error)
	Reschedule(ctx context.Context, id string, attempts int, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeadLetter(ctx context.Context, n QueuedNotification, reason string) error
	RecordRun(ctx context.Context, m RunMetrics) error
}

// FirestoreStore implements Store on Firestore documents.
type FirestoreStore struct {
	client *firestore.Client
	logger *logger.Logger
}

// NewFirestoreStore creates a Firestore-backed queue store.
func NewFirestoreStore(client *firestore.Client, logger *logger.Logger) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		logger: logger.WithComponent("queue-store"),
	}
}

// Enqueue persists a new queue record under a fresh id. The id doubles as
// the idempotency key for at-least-once processing.
func (s *FirestoreStore) Enqueue(ctx context.Context, n *QueuedNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if _, err := s.client.Collection(queueCollection).Doc(n.ID).Create(ctx, n); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// Due claims up to limit records whose scheduledAt has passed. No ordering
// is required across recipients.
func (s *FirestoreStore) Due(ctx context.Context, now time.Time, limit int) ([]QueuedNotification, error) {
	docs, err := s.client.Collection(queueCollection).
		Where("scheduledAt", "<=", now).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query due notifications: %w", err)
	}

	records := make([]QueuedNotification, 0, len(docs))
	for _, doc := range docs {
		var n QueuedNotification
		if err := doc.DataTo(&n); err != nil {
			s.logger.Warn("skipping malformed queue record", "id", doc.Ref.ID, "error", err)
			continue
		}
		n.ID = doc.Ref.ID
		records = append(records, n)
	}
	return records, nil
}

// Reschedule pushes a record forward after a transient failure.
func (s *FirestoreStore) Reschedule(ctx context.Context, id string, attempts int, at time.Time) error {
	_, err := s.client.Collection(queueCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "attempts", Value: attempts},
		{Path: "scheduledAt", Value: at},
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule notification %s: %w", id, err)
	}
	return nil
}

// Delete removes a record. Deleting an already-absent record is not an
// error, which keeps overlapping sweeps idempotent by record id.
func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Collection(queueCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete notification %s: %w", id, err)
	}
	return nil
}

// DeadLetter writes the terminal record, scoped to the owning household
// when known, otherwise to the global fallback collection.
func (s *FirestoreStore) DeadLetter(ctx context.Context, n QueuedNotification, reason string) error {
	record := DeadLetterRecord{
		Notification: n,
		Reason:       reason,
		FailedAt:     time.Now().UTC(),
	}

	col := s.client.Collection(deadLetterCollection)
	if n.HouseholdID != "" {
		col = s.client.Collection(householdCollection).Doc(n.HouseholdID).Collection(deadLetterCollection)
	}

	// Create keyed by the record id so a sweep repeated after a crash
	// cannot dead-letter the same notification twice.
	if _, err := col.Doc(n.ID).Create(ctx, record); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to write dead letter for %s: %w", n.ID, err)
	}
	return nil
}

// RecordRun persists the per-sweep metrics document.
func (s *FirestoreStore) RecordRun(ctx context.Context, m RunMetrics) error {
	if _, err := s.client.Collection(runMetricsCollection).Doc(uuid.New().String()).Create(ctx, m); err != nil {
		return fmt.Errorf("failed to record delivery run: %w", err)
	}
	return nil
}
