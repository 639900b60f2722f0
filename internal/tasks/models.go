package tasks

import (
	"time"

	"github.com/hjemmeapp/hjemme-engine/internal/recurrence"
)

// Task is the planner's view of a stored household task. Upstream handlers
// own creation and editing; the planner only reads recurrence fields and
// writes back scheduling bookkeeping.
type Task struct {
	ID          string   `firestore:"-"`
	HouseholdID string   `firestore:"householdId"`
	AssigneeIDs []string `firestore:"assigneeIds"`
	Title       string   `firestore:"title"`

	// Recurrence input.
	RecurrenceRule  string         `firestore:"recurrenceRule,omitempty"`
	StartAt         *time.Time     `firestore:"startAt,omitempty"`
	DueAt           *time.Time     `firestore:"dueAt,omitempty"`
	PrepWindowHours int            `firestore:"prepWindowHours"`
	PausedUntil     *time.Time     `firestore:"pausedUntil,omitempty"`
	SkipDates       []string       `firestore:"skipDates,omitempty"`
	ExceptionShifts map[string]int `firestore:"exceptionShifts,omitempty"`

	Active bool `firestore:"active"`

	// Scheduling bookkeeping written by the planner.
	NextOccurrenceAt *time.Time `firestore:"nextOccurrenceAt,omitempty"`
	NextNotifyAt     *time.Time `firestore:"nextNotifyAt,omitempty"`
	LastNotifiedFor  *time.Time `firestore:"lastNotifiedFor,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// RecurrenceSpec converts the stored task fields into resolver input.
func (t *Task) RecurrenceSpec() recurrence.Spec {
	skip := make(map[string]struct{}, len(t.SkipDates))
	for _, d := range t.SkipDates {
		skip[d] = struct{}{}
	}

	return recurrence.Spec{
		Rule:            t.RecurrenceRule,
		AnchorStart:     t.StartAt,
		AnchorDue:       t.DueAt,
		PrepWindowHours: t.PrepWindowHours,
		PausedUntil:     t.PausedUntil,
		SkipDates:       skip,
		ExceptionShifts: t.ExceptionShifts,
	}
}

// Household carries the fields the planner needs from a household document.
type Household struct {
	ID       string `firestore:"-"`
	Timezone string `firestore:"timezone"`
}
