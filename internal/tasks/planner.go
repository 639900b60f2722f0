// Package tasks plans reminders for stored household tasks: each sweep
// resolves every active task's next occurrence, writes the bookkeeping
// back, and hands due reminders to the notification router.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
	"github.com/hjemmeapp/hjemme-engine/internal/notify"
	"github.com/hjemmeapp/hjemme-engine/internal/push"
	"github.com/hjemmeapp/hjemme-engine/internal/quiethours"
	"github.com/hjemmeapp/hjemme-engine/internal/recurrence"
)

// Deliverer routes a composed notification (implemented by notify.Router).
type Deliverer interface {
	Deliver(ctx context.Context, n notify.Notification, w *quiethours.Window) error
}

// PrefsReader returns a recipient's quiet-hours window.
type PrefsReader interface {
	QuietHours(ctx context.Context, userID string) (*quiethours.Window, error)
}

// TokenReader returns a recipient's registered device tokens.
type TokenReader interface {
	GetUserTokens(ctx context.Context, userID string) ([]push.TokenInfo, error)
}

// Planner is the periodic reminder-planning sweep.
type Planner struct {
	store       Store
	prefs       PrefsReader
	tokens      TokenReader
	router      Deliverer
	logger      *logger.Logger
	defaultZone *time.Location
	batchSize   int

	// lookahead pre-schedules reminders whose notify time falls before the
	// next sweep, so they fire at the exact instant via the queue instead
	// of one cadence late.
	lookahead time.Duration

	nowFn func() time.Time
}

// NewPlanner creates a reminder planner. lookahead should match the sweep
// cadence.
func NewPlanner(store Store, prefs PrefsReader, tokens TokenReader, router Deliverer, defaultZone *time.Location, batchSize int, lookahead time.Duration, logger *logger.Logger) *Planner {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if lookahead <= 0 {
		lookahead = 5 * time.Minute
	}
	return &Planner{
		store:       store,
		prefs:       prefs,
		tokens:      tokens,
		router:      router,
		logger:      logger.WithComponent("reminder-planner"),
		defaultZone: defaultZone,
		batchSize:   batchSize,
		lookahead:   lookahead,
		nowFn:       time.Now,
	}
}

// Sweep resolves every active task once. Failures on individual tasks are
// logged and skipped; the sweep itself only fails when the listing does.
func (p *Planner) Sweep(ctx context.Context) error {
	ctx = logger.WithSweepID(ctx, logger.GenerateSweepID())
	log := p.logger.WithContext(ctx)
	now := p.nowFn()

	taskList, err := p.store.ListActive(ctx, p.batchSize)
	if err != nil {
		log.Error("failed to list active tasks", slog.String("error", err.Error()))
		return err
	}

	zones := make(map[string]*time.Location)
	planned, reminded := 0, 0

	for i := range taskList {
		task := &taskList[i]
		tctx := logger.WithTaskID(logger.WithHouseholdID(ctx, task.HouseholdID), task.ID)

		zone := p.zoneFor(tctx, task.HouseholdID, zones)
		res := recurrence.Resolve(task.RecurrenceSpec(), zone, now)

		if scheduleChanged(task, res) {
			if err := p.store.UpdateSchedule(tctx, task.ID, res.OccurrenceAt, res.NotifyAt); err != nil {
				p.logger.WithContext(tctx).Warn("failed to write schedule", slog.String("error", err.Error()))
			} else {
				planned++
			}
		}

		if dueForReminder(task, res, now.Add(p.lookahead)) {
			if err := p.remind(tctx, task, res, zone); err != nil {
				p.logger.WithContext(tctx).Warn("failed to send reminder", slog.String("error", err.Error()))
				continue
			}
			reminded++
		}
	}

	if len(taskList) > 0 {
		log.Info("planner sweep finished",
			slog.Int("tasks", len(taskList)),
			slog.Int("planned", planned),
			slog.Int("reminded", reminded))
	}
	return nil
}

// remind composes a reminder for every assignee and routes it, then records
// which occurrence it covered.
func (p *Planner) remind(ctx context.Context, task *Task, res recurrence.Result, zone *time.Location) error {
	dueLocal := res.OccurrenceAt.In(zone)

	payload := map[string]string{
		"type":         "task_reminder",
		"task_id":      task.ID,
		"household_id": task.HouseholdID,
		"due_at":       res.OccurrenceAt.UTC().Format(time.RFC3339),
	}
	body := fmt.Sprintf("%s is due at %s", task.Title, dueLocal.Format("15:04"))

	for _, userID := range task.AssigneeIDs {
		tokens, err := p.tokens.GetUserTokens(ctx, userID)
		if err != nil {
			p.logger.WithContext(ctx).Warn("failed to load tokens",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			continue
		}
		if len(tokens) == 0 {
			continue
		}

		window, err := p.prefs.QuietHours(ctx, userID)
		if err != nil {
			p.logger.WithContext(ctx).Warn("failed to load quiet hours, delivering without",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			window = nil
		}

		tokenValues := make([]string, len(tokens))
		for i, t := range tokens {
			tokenValues[i] = t.Token
		}

		n := notify.Notification{
			RecipientID: userID,
			Tokens:      tokenValues,
			HouseholdID: task.HouseholdID,
			Title:       "Task reminder",
			Body:        body,
			Payload:     payload,
			NotifyAt:    *res.NotifyAt,
		}
		if err := p.router.Deliver(ctx, n, window); err != nil {
			p.logger.WithContext(ctx).Warn("failed to route reminder",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
	}

	return p.store.MarkNotified(ctx, task.ID, *res.OccurrenceAt)
}

// zoneFor resolves the household timezone, cached per sweep, falling back
// to the configured default for missing or invalid zones.
func (p *Planner) zoneFor(ctx context.Context, householdID string, cache map[string]*time.Location) *time.Location {
	if zone, ok := cache[householdID]; ok {
		return zone
	}

	zone := p.defaultZone
	name, err := p.store.HouseholdTimezone(ctx, householdID)
	if err != nil {
		p.logger.WithContext(ctx).Warn("failed to load household timezone", slog.String("error", err.Error()))
	} else if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			zone = loc
		} else {
			p.logger.WithContext(ctx).Warn("invalid household timezone", slog.String("timezone", name))
		}
	}

	cache[householdID] = zone
	return zone
}

func scheduleChanged(task *Task, res recurrence.Result) bool {
	return !timesEqual(task.NextOccurrenceAt, res.OccurrenceAt) ||
		!timesEqual(task.NextNotifyAt, res.NotifyAt)
}

// dueForReminder reports whether the notify time falls before the horizon
// and this occurrence has not been reminded about yet.
func dueForReminder(task *Task, res recurrence.Result, horizon time.Time) bool {
	if res.NotifyAt == nil || res.OccurrenceAt == nil {
		return false
	}
	if res.NotifyAt.After(horizon) {
		return false
	}
	return task.LastNotifiedFor == nil || !task.LastNotifiedFor.Equal(*res.OccurrenceAt)
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
