package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithSweepID adds a sweep ID to the context.
func WithSweepID(ctx context.Context, sweepID string) context.Context {
	return context.WithValue(ctx, ContextKeySweepID, sweepID)
}

// WithUserID adds a user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// WithHouseholdID adds a household ID to the context.
func WithHouseholdID(ctx context.Context, householdID string) context.Context {
	return context.WithValue(ctx, ContextKeyHouseholdID, householdID)
}

// WithTaskID adds a task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, ContextKeyTaskID, taskID)
}

// GenerateSweepID generates a new sweep ID.
func GenerateSweepID() string {
	sweepID := uuid.New()
	return sweepID.String()
}
