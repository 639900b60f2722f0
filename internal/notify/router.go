// Package notify composes and routes reminder notifications: straight to
// the push transport when allowed, into the delivery queue when the notify
// time is in the future or the recipient's quiet hours defer it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
	"github.com/hjemmeapp/hjemme-engine/internal/push"
	"github.com/hjemmeapp/hjemme-engine/internal/queue"
	"github.com/hjemmeapp/hjemme-engine/internal/quiethours"
)

// Notification is a composed, recipient-addressed notification before
// routing.
type Notification struct {
	RecipientID string
	Tokens      []string
	HouseholdID string
	Title       string
	Body        string
	Payload     map[string]string
	// NotifyAt schedules delivery; the zero value means "now".
	NotifyAt time.Time
}

// TokenCleaner invalidates dead device tokens, best-effort.
type TokenCleaner interface {
	ClearToken(ctx context.Context, userID, token string) error
}

// Router applies quiet hours and scheduling to composed notifications.
type Router struct {
	transport    push.Transport
	store        queue.Store
	cleaner      TokenCleaner
	fallbackZone *time.Location
	logger       *logger.Logger

	nowFn func() time.Time
}

// NewRouter creates a notification router.
func NewRouter(transport push.Transport, store queue.Store, cleaner TokenCleaner, fallbackZone *time.Location, logger *logger.Logger) *Router {
	if fallbackZone == nil {
		fallbackZone = time.UTC
	}
	return &Router{
		transport:    transport,
		store:        store,
		cleaner:      cleaner,
		fallbackZone: fallbackZone,
		logger:       logger.WithComponent("notify-router"),
		nowFn:        time.Now,
	}
}

// Deliver routes one notification. Hard quiet hours defer into the queue at
// the next allowed instant; soft quiet hours deliver immediately but
// silent. A future NotifyAt always goes through the queue. Immediate sends
// that fail transiently are enqueued for the worker instead of retried
// inline.
func (r *Router) Deliver(ctx context.Context, n Notification, w *quiethours.Window) error {
	log := &logger.Logger{Logger: r.logger.WithContext(ctx).With(slog.String("recipient_id", n.RecipientID))}
	now := r.nowFn()

	if len(n.Tokens) == 0 {
		log.Debug("recipient has no device tokens, skipping")
		return nil
	}

	deliverAt := now
	if n.NotifyAt.After(now) {
		deliverAt = n.NotifyAt
	}

	silent := false
	if quiethours.IsQuiet(deliverAt, w, r.fallbackZone) {
		if w.Mode == quiethours.ModeSoft {
			silent = true
		} else {
			deliverAt = quiethours.NextAllowed(deliverAt, w, r.fallbackZone)
		}
	}

	if deliverAt.After(now) {
		return r.enqueue(ctx, n, deliverAt, silent, log)
	}

	return r.sendNow(ctx, n, silent, now, log)
}

func (r *Router) enqueue(ctx context.Context, n Notification, at time.Time, silent bool, log *logger.Logger) error {
	record := r.toRecord(n, at, silent)
	if err := r.store.Enqueue(ctx, record); err != nil {
		return fmt.Errorf("failed to defer notification: %w", err)
	}
	log.Info("deferred notification",
		slog.Time("scheduled_at", at),
		slog.Bool("silent", silent))
	return nil
}

func (r *Router) sendNow(ctx context.Context, n Notification, silent bool, now time.Time, log *logger.Logger) error {
	msgs := make([]push.Message, len(n.Tokens))
	for i, token := range n.Tokens {
		msgs[i] = push.Message{
			Token:  token,
			Title:  n.Title,
			Body:   n.Body,
			Data:   n.Payload,
			Silent: silent,
		}
	}

	outcomes, err := r.transport.Send(ctx, msgs)
	if err != nil {
		log.Warn("immediate send failed, deferring to queue", slog.String("error", err.Error()))
		return r.enqueue(ctx, n, now, silent, log)
	}

	transient := false
	for i, out := range outcomes {
		switch out.Status {
		case push.StatusUnregistered:
			r.clearToken(n.RecipientID, n.Tokens[i])
		case push.StatusTransient:
			transient = true
		}
	}

	if transient {
		log.Warn("transient send failure, deferring to queue")
		return r.enqueue(ctx, n, now, silent, log)
	}

	log.Info("sent notification", slog.Int("devices", len(msgs)), slog.Bool("silent", silent))
	return nil
}

func (r *Router) toRecord(n Notification, at time.Time, silent bool) *queue.QueuedNotification {
	ids := make([]string, len(n.Tokens))
	for i := range ids {
		ids[i] = n.RecipientID
	}
	return &queue.QueuedNotification{
		RecipientTokens: n.Tokens,
		RecipientIDs:    ids,
		HouseholdID:     n.HouseholdID,
		Title:           n.Title,
		Body:            n.Body,
		Payload:         n.Payload,
		Silent:          silent,
		ScheduledAt:     at,
	}
}

// clearToken is fire-and-forget; cleanup failure never affects routing.
func (r *Router) clearToken(userID, token string) {
	if r.cleaner == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.cleaner.ClearToken(ctx, userID, token); err != nil {
			r.logger.Warn("token cleanup failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
	}()
}
