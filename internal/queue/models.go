package queue

import "time"

// QueuedNotification is a deferred notification waiting in the queue store.
// scheduledAt is both the readiness gate and the re-scheduling point: a
// record is claimable once scheduledAt <= now, and a transient failure
// pushes scheduledAt forward in place.
type QueuedNotification struct {
	ID string `firestore:"-"`

	// RecipientTokens are device tokens; RecipientIDs are positionally
	// aligned user ids kept for token invalidation.
	RecipientTokens []string `firestore:"recipientTokens"`
	RecipientIDs    []string `firestore:"recipientIds"`

	// HouseholdID scopes the dead-letter record when known.
	HouseholdID string `firestore:"householdId,omitempty"`

	Title   string            `firestore:"title"`
	Body    string            `firestore:"body"`
	Payload map[string]string `firestore:"payload"`
	Silent  bool              `firestore:"silent"`

	ScheduledAt time.Time `firestore:"scheduledAt"`
	Attempts    int       `firestore:"attempts"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// DeadLetterRecord is the terminal copy of a notification that exhausted
// its delivery attempts, kept for operator inspection.
type DeadLetterRecord struct {
	Notification QueuedNotification `firestore:"notification"`
	Reason       string             `firestore:"reason"`
	FailedAt     time.Time          `firestore:"failedAt"`
}

// RunMetrics is the per-sweep observability record.
type RunMetrics struct {
	Checked int       `firestore:"checked"`
	Sent    int       `firestore:"sent"`
	Dropped int       `firestore:"dropped"`
	Retried int       `firestore:"retried"`
	RanAt   time.Time `firestore:"ranAt"`
}
