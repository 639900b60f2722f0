// Package queue drains deferred notifications from the persistent queue to
// the push transport, retrying transient failures with capped exponential
// backoff and dead-lettering records that exhaust their attempts.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
	"github.com/hjemmeapp/hjemme-engine/internal/push"
)

const (
	// reasonMaxAttempts marks a record whose final permitted attempt failed.
	reasonMaxAttempts = "max_attempts"
	// reasonTransientMaxAttempts marks a stale record claimed with its
	// attempt budget already spent (a previous run crashed mid-batch).
	reasonTransientMaxAttempts = "transient_max_attempts"

	cleanupTimeout = 10 * time.Second
)

// recordOutcome is the terminal state of one record within a sweep.
type recordOutcome int

const (
	outcomeSent recordOutcome = iota
	outcomeRescheduled
	outcomeDeadLettered
	outcomeDropped
)

// TokenCleaner invalidates stored device tokens. Failures here are logged
// and swallowed; cleanup never affects the surrounding delivery decision.
type TokenCleaner interface {
	FindUsersByToken(ctx context.Context, token string) ([]string, error)
	ClearToken(ctx context.Context, userID, token string) error
}

// Options configures the delivery worker.
type Options struct {
	BatchSize      int           // records claimed per sweep
	MaxAttempts    int           // attempts before dead-lettering
	RetryBaseDelay time.Duration // backoff base
	RetryCap       time.Duration // backoff ceiling
}

// Worker is the periodic delivery sweep over the queue store.
type Worker struct {
	store     Store
	transport push.Transport
	tokens    TokenCleaner
	logger    *logger.Logger
	opts      Options

	nowFn func() time.Time

	cleanups sync.WaitGroup
}

// NewWorker creates a delivery worker.
func NewWorker(store Store, transport push.Transport, tokens TokenCleaner, logger *logger.Logger, opts Options) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 5 * time.Minute
	}
	if opts.RetryCap <= 0 {
		opts.RetryCap = 6 * time.Hour
	}

	return &Worker{
		store:     store,
		transport: transport,
		tokens:    tokens,
		logger:    logger.WithComponent("delivery-worker"),
		opts:      opts,
		nowFn:     time.Now,
	}
}

// Sweep claims due records, delivers them, and persists the run metrics.
// Errors from individual records never abort the sweep.
func (w *Worker) Sweep(ctx context.Context) (RunMetrics, error) {
	ctx = logger.WithSweepID(ctx, logger.GenerateSweepID())
	log := w.logger.WithContext(ctx)
	start := w.nowFn()

	metrics := RunMetrics{RanAt: start.UTC()}

	records, err := w.store.Due(ctx, start, w.opts.BatchSize)
	if err != nil {
		log.Error("failed to claim due notifications", slog.String("error", err.Error()))
		return metrics, err
	}

	for _, rec := range records {
		metrics.Checked++
		w.processRecord(ctx, rec, &metrics)
	}

	metricChecked.Add(float64(metrics.Checked))
	metricSweepDuration.Observe(time.Since(start).Seconds())

	if err := w.store.RecordRun(ctx, metrics); err != nil {
		log.Warn("failed to persist run metrics", slog.String("error", err.Error()))
	}

	if metrics.Checked > 0 {
		log.Info("delivery sweep finished",
			slog.Int("checked", metrics.Checked),
			slog.Int("sent", metrics.Sent),
			slog.Int("dropped", metrics.Dropped),
			slog.Int("retried", metrics.Retried))
	}

	return metrics, nil
}

// processRecord runs one record through the delivery state machine:
// Pending -> {Sent | Rescheduled | DeadLettered | Dropped}.
func (w *Worker) processRecord(ctx context.Context, rec QueuedNotification, metrics *RunMetrics) recordOutcome {
	log := &logger.Logger{Logger: w.logger.WithContext(ctx).With(slog.String("record_id", rec.ID))}
	now := w.nowFn()

	tokens, userIDs := dedupeTokens(rec.RecipientTokens, rec.RecipientIDs)
	if len(tokens) == 0 {
		log.Warn("no deliverable tokens, dropping record")
		metrics.Dropped++
		metricDropped.Inc()
		w.deleteRecord(ctx, rec.ID, log)
		return outcomeDropped
	}

	msgs := make([]push.Message, len(tokens))
	for i, token := range tokens {
		msgs[i] = push.Message{
			Token:  token,
			Title:  rec.Title,
			Body:   rec.Body,
			Data:   rec.Payload,
			Silent: rec.Silent,
		}
	}

	transient := false
	outcomes, err := w.transport.Send(ctx, msgs)
	if err != nil {
		log.Warn("transport failed, treating as transient", slog.String("error", err.Error()))
		transient = true
	} else {
		for i, out := range outcomes {
			switch out.Status {
			case push.StatusOK:
				metrics.Sent++
				metricSent.Inc()
			case push.StatusUnregistered:
				metrics.Dropped++
				metricDropped.Inc()
				w.cleanupToken(tokens[i], userIDs[i])
			case push.StatusTransient:
				transient = true
			}
		}
	}

	if !transient {
		w.deleteRecord(ctx, rec.ID, log)
		return outcomeSent
	}

	// Stale claim: the attempt budget was already spent before this sweep.
	if rec.Attempts >= w.opts.MaxAttempts {
		return w.deadLetter(ctx, rec, reasonTransientMaxAttempts, log)
	}

	attempts := rec.Attempts + 1
	if attempts < w.opts.MaxAttempts {
		retryAt := now.Add(w.backoff(attempts))
		if err := w.store.Reschedule(ctx, rec.ID, attempts, retryAt); err != nil {
			log.Error("failed to reschedule record", slog.String("error", err.Error()))
			return outcomeRescheduled
		}
		metrics.Retried++
		metricRetried.Inc()
		log.Info("rescheduled after transient failure",
			slog.Int("attempts", attempts),
			slog.Time("retry_at", retryAt))
		return outcomeRescheduled
	}

	return w.deadLetter(ctx, rec, reasonMaxAttempts, log)
}

func (w *Worker) deadLetter(ctx context.Context, rec QueuedNotification, reason string, log *logger.Logger) recordOutcome {
	if err := w.store.DeadLetter(ctx, rec, reason); err != nil {
		log.Error("failed to write dead letter", slog.String("error", err.Error()))
		// Leave the record in place; the next sweep retries the move.
		return outcomeDeadLettered
	}
	metricDeadLettered.Inc()
	log.Warn("dead-lettered record", slog.String("reason", reason), slog.Int("attempts", rec.Attempts))
	w.deleteRecord(ctx, rec.ID, log)
	return outcomeDeadLettered
}

func (w *Worker) deleteRecord(ctx context.Context, id string, log *logger.Logger) {
	if err := w.store.Delete(ctx, id); err != nil {
		log.Error("failed to delete queue record", slog.String("error", err.Error()))
	}
}

// backoff returns min(2^attempts * base, cap).
func (w *Worker) backoff(attempts int) time.Duration {
	delay := w.opts.RetryBaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= w.opts.RetryCap {
			return w.opts.RetryCap
		}
	}
	return delay
}

// cleanupToken detaches a best-effort invalidation of a dead device token.
// Looked up by the aligned recipient id when present, otherwise by bounded
// reverse token lookup.
func (w *Worker) cleanupToken(token, userID string) {
	w.cleanups.Add(1)
	go func() {
		defer w.cleanups.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		if userID != "" {
			if err := w.tokens.ClearToken(ctx, userID, token); err != nil {
				w.logger.Warn("token cleanup failed", slog.String("user_id", userID), slog.String("error", err.Error()))
			}
			return
		}

		userIDs, err := w.tokens.FindUsersByToken(ctx, token)
		if err != nil {
			w.logger.Warn("reverse token lookup failed", slog.String("error", err.Error()))
			return
		}
		for _, id := range userIDs {
			if err := w.tokens.ClearToken(ctx, id, token); err != nil {
				w.logger.Warn("token cleanup failed", slog.String("user_id", id), slog.String("error", err.Error()))
			}
		}
	}()
}

// Close waits for outstanding token cleanups to drain, with a timeout.
func (w *Worker) Close() {
	done := make(chan struct{})
	go func() {
		w.cleanups.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		w.logger.Warn("timed out waiting for token cleanups to finish")
	}
}

// dedupeTokens removes empty and duplicate tokens, first occurrence wins.
// The returned user-id slice is always aligned with the returned tokens;
// records without an aligned id list get empty ids.
func dedupeTokens(tokens, userIDs []string) ([]string, []string) {
	aligned := len(userIDs) == len(tokens)

	seen := make(map[string]struct{}, len(tokens))
	outTokens := make([]string, 0, len(tokens))
	outIDs := make([]string, 0, len(tokens))

	for i, token := range tokens {
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		outTokens = append(outTokens, token)
		if aligned {
			outIDs = append(outIDs, userIDs[i])
		} else {
			outIDs = append(outIDs, "")
		}
	}

	return outTokens, outIDs
}
