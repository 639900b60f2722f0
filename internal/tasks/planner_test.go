package tasks

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
	"github.com/hjemmeapp/hjemme-engine/internal/notify"
	"github.com/hjemmeapp/hjemme-engine/internal/push"
	"github.com/hjemmeapp/hjemme-engine/internal/quiethours"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "json"})
}

func ptr(t time.Time) *time.Time { return &t }

type fakeTaskStore struct {
	mu        sync.Mutex
	tasks     []Task
	timezones map[string]string

	schedules map[string][2]*time.Time
	notified  map[string]time.Time
}

func newFakeTaskStore(tasks ...Task) *fakeTaskStore {
	return &fakeTaskStore{
		tasks:     tasks,
		timezones: map[string]string{},
		schedules: map[string][2]*time.Time{},
		notified:  map[string]time.Time{},
	}
}

func (s *fakeTaskStore) ListActive(ctx context.Context, limit int) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks...), nil
}

func (s *fakeTaskStore) UpdateSchedule(ctx context.Context, id string, occurrenceAt, notifyAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[id] = [2]*time.Time{occurrenceAt, notifyAt}
	return nil
}

func (s *fakeTaskStore) MarkNotified(ctx context.Context, id string, occurrenceAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified[id] = occurrenceAt
	return nil
}

func (s *fakeTaskStore) HouseholdTimezone(ctx context.Context, householdID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timezones[householdID], nil
}

type fakePrefs struct {
	windows map[string]*quiethours.Window
}

func (p *fakePrefs) QuietHours(ctx context.Context, userID string) (*quiethours.Window, error) {
	if p.windows == nil {
		return nil, nil
	}
	return p.windows[userID], nil
}

type fakeTokens struct {
	tokens map[string][]push.TokenInfo
}

func (t *fakeTokens) GetUserTokens(ctx context.Context, userID string) ([]push.TokenInfo, error) {
	return t.tokens[userID], nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []notify.Notification
	windows   []*quiethours.Window
}

func (d *fakeDeliverer) Deliver(ctx context.Context, n notify.Notification, w *quiethours.Window) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, n)
	d.windows = append(d.windows, w)
	return nil
}

// 2026-02-02 is a Monday.
var plannerNow = time.Date(2026, 2, 2, 7, 50, 0, 0, time.UTC)

func newTestPlanner(store *fakeTaskStore, prefs *fakePrefs, tokens *fakeTokens, deliverer *fakeDeliverer) *Planner {
	p := NewPlanner(store, prefs, tokens, deliverer, time.UTC, 500, 5*time.Minute, testLogger())
	p.nowFn = func() time.Time { return plannerNow }
	return p
}

func dailyTask() Task {
	return Task{
		ID:             "task-1",
		HouseholdID:    "hh-1",
		AssigneeIDs:    []string{"user-1"},
		Title:          "Take out the bins",
		RecurrenceRule: "FREQ=DAILY",
		StartAt:        ptr(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)),
		Active:         true,
	}
}

func TestSweepDeliversDueReminderAndMarksNotified(t *testing.T) {
	task := dailyTask()
	task.PrepWindowHours = 1
	store := newFakeTaskStore(task)
	tokens := &fakeTokens{tokens: map[string][]push.TokenInfo{
		"user-1": {{Token: "tok-1"}},
	}}
	deliverer := &fakeDeliverer{}
	p := newTestPlanner(store, &fakePrefs{}, tokens, deliverer)

	require.NoError(t, p.Sweep(context.Background()))

	require.Len(t, deliverer.delivered, 1)
	n := deliverer.delivered[0]
	assert.Equal(t, "user-1", n.RecipientID)
	assert.Equal(t, []string{"tok-1"}, n.Tokens)
	assert.Equal(t, "hh-1", n.HouseholdID)
	assert.Equal(t, "task_reminder", n.Payload["type"])
	assert.Equal(t, "task-1", n.Payload["task_id"])
	assert.Contains(t, n.Body, "Take out the bins")
	assert.True(t, n.NotifyAt.Equal(time.Date(2026, 2, 2, 7, 0, 0, 0, time.UTC)))

	occ, ok := store.notified["task-1"]
	require.True(t, ok)
	assert.True(t, occ.Equal(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)))
}

func TestSweepNotifyBeyondHorizonNotDelivered(t *testing.T) {
	// Notify time equals the 08:00 occurrence; at 07:50 with a 5m lookahead
	// that is still beyond the horizon.
	store := newFakeTaskStore(dailyTask())
	tokens := &fakeTokens{tokens: map[string][]push.TokenInfo{
		"user-1": {{Token: "tok-1"}},
	}}
	deliverer := &fakeDeliverer{}
	p := newTestPlanner(store, &fakePrefs{}, tokens, deliverer)

	require.NoError(t, p.Sweep(context.Background()))

	assert.Empty(t, deliverer.delivered)
	assert.Empty(t, store.notified)
}

func TestSweepWritesScheduleBookkeeping(t *testing.T) {
	store := newFakeTaskStore(dailyTask())
	p := newTestPlanner(store, &fakePrefs{}, &fakeTokens{}, &fakeDeliverer{})

	require.NoError(t, p.Sweep(context.Background()))

	sched, ok := store.schedules["task-1"]
	require.True(t, ok)
	require.NotNil(t, sched[0])
	require.NotNil(t, sched[1])
	assert.True(t, sched[0].Equal(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)))
	assert.True(t, sched[1].Equal(*sched[0]))
}

func TestSweepSkipsUnchangedSchedule(t *testing.T) {
	task := dailyTask()
	occ := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	task.NextOccurrenceAt = ptr(occ)
	task.NextNotifyAt = ptr(occ)
	store := newFakeTaskStore(task)
	p := newTestPlanner(store, &fakePrefs{}, &fakeTokens{}, &fakeDeliverer{})

	require.NoError(t, p.Sweep(context.Background()))

	assert.Empty(t, store.schedules)
}

func TestSweepSkipsAlreadyNotifiedOccurrence(t *testing.T) {
	task := dailyTask()
	task.PrepWindowHours = 1
	task.LastNotifiedFor = ptr(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC))
	store := newFakeTaskStore(task)
	tokens := &fakeTokens{tokens: map[string][]push.TokenInfo{
		"user-1": {{Token: "tok-1"}},
	}}
	deliverer := &fakeDeliverer{}
	p := newTestPlanner(store, &fakePrefs{}, tokens, deliverer)

	require.NoError(t, p.Sweep(context.Background()))

	assert.Empty(t, deliverer.delivered)
	assert.Empty(t, store.notified)
}

func TestSweepSkipsAssigneeWithoutTokens(t *testing.T) {
	task := dailyTask()
	task.PrepWindowHours = 1
	task.AssigneeIDs = []string{"user-1", "user-2"}
	store := newFakeTaskStore(task)
	tokens := &fakeTokens{tokens: map[string][]push.TokenInfo{
		"user-2": {{Token: "tok-2"}},
	}}
	deliverer := &fakeDeliverer{}
	p := newTestPlanner(store, &fakePrefs{}, tokens, deliverer)

	require.NoError(t, p.Sweep(context.Background()))

	require.Len(t, deliverer.delivered, 1)
	assert.Equal(t, "user-2", deliverer.delivered[0].RecipientID)
}

func TestSweepPassesQuietHoursToRouter(t *testing.T) {
	task := dailyTask()
	task.PrepWindowHours = 1
	store := newFakeTaskStore(task)
	tokens := &fakeTokens{tokens: map[string][]push.TokenInfo{
		"user-1": {{Token: "tok-1"}},
	}}
	window := &quiethours.Window{Start: "22:00", End: "07:00", Zone: "UTC", Mode: quiethours.ModeHard}
	prefs := &fakePrefs{windows: map[string]*quiethours.Window{"user-1": window}}
	deliverer := &fakeDeliverer{}
	p := newTestPlanner(store, prefs, tokens, deliverer)

	require.NoError(t, p.Sweep(context.Background()))

	require.Len(t, deliverer.windows, 1)
	assert.Equal(t, window, deliverer.windows[0])
}

func TestSweepUsesHouseholdTimezone(t *testing.T) {
	// Daily at 08:00 Oslo wall time. The stored anchor is 07:00 UTC, which
	// is 08:00 local under the winter offset; resolving in the household
	// zone keeps the occurrence at the same UTC instant.
	task := dailyTask()
	task.StartAt = ptr(time.Date(2026, 2, 1, 7, 0, 0, 0, time.UTC))
	store := newFakeTaskStore(task)
	store.timezones["hh-1"] = "Europe/Oslo"
	p := newTestPlanner(store, &fakePrefs{}, &fakeTokens{}, &fakeDeliverer{})

	require.NoError(t, p.Sweep(context.Background()))

	// 07:50 UTC is already past today's 07:00 occurrence, so the next one
	// lands tomorrow at the same UTC instant.
	sched, ok := store.schedules["task-1"]
	require.True(t, ok)
	require.NotNil(t, sched[0])
	assert.Equal(t, time.Date(2026, 2, 3, 7, 0, 0, 0, time.UTC), sched[0].UTC())
}

func TestSweepPausedTaskGetsNoReminder(t *testing.T) {
	task := dailyTask()
	task.PrepWindowHours = 1
	task.PausedUntil = ptr(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	store := newFakeTaskStore(task)
	tokens := &fakeTokens{tokens: map[string][]push.TokenInfo{
		"user-1": {{Token: "tok-1"}},
	}}
	deliverer := &fakeDeliverer{}
	p := newTestPlanner(store, &fakePrefs{}, tokens, deliverer)

	require.NoError(t, p.Sweep(context.Background()))

	assert.Empty(t, deliverer.delivered)
	sched, ok := store.schedules["task-1"]
	require.True(t, ok)
	require.NotNil(t, sched[0])
	assert.False(t, sched[0].Before(time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)))
}
