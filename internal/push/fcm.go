package push

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
)

// fcmBatchLimit is the maximum messages FCM accepts per SendEach call.
const fcmBatchLimit = 500

// FCMTransport sends push notifications through Firebase Cloud Messaging.
type FCMTransport struct {
	client *messaging.Client
	logger *logger.Logger
}

// NewFCMTransport creates an FCM-backed transport.
func NewFCMTransport(client *messaging.Client, logger *logger.Logger) *FCMTransport {
	return &FCMTransport{
		client: client,
		logger: logger.WithComponent("fcm-transport"),
	}
}

// Send submits the messages in provider-sized chunks. A chunk-level
// provider failure marks every message in that chunk transient instead of
// failing the caller; the returned slice always aligns with msgs.
func (t *FCMTransport) Send(ctx context.Context, msgs []Message) ([]Outcome, error) {
	if t.client == nil {
		return nil, fmt.Errorf("messaging client is nil")
	}

	log := t.logger.WithContext(ctx)
	outcomes := make([]Outcome, 0, len(msgs))

	for start := 0; start < len(msgs); start += fcmBatchLimit {
		end := start + fcmBatchLimit
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[start:end]

		batch := make([]*messaging.Message, len(chunk))
		for i, m := range chunk {
			batch[i] = toFCMMessage(m)
		}

		resp, err := t.client.SendEach(ctx, batch)
		if err != nil {
			log.Warn("provider rejected batch, marking transient",
				slog.Int("batch_size", len(chunk)),
				slog.String("error", err.Error()))
			for range chunk {
				outcomes = append(outcomes, Outcome{Status: StatusTransient, Error: err.Error()})
			}
			continue
		}

		for _, r := range resp.Responses {
			outcomes = append(outcomes, classify(r))
		}
	}

	return outcomes, nil
}

func toFCMMessage(m Message) *messaging.Message {
	msg := &messaging.Message{
		Token: m.Token,
		Data:  m.Data,
	}

	if m.Silent {
		// Data-only delivery: no alert, low priority on both platforms.
		msg.Android = &messaging.AndroidConfig{Priority: "normal"}
		msg.APNS = &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "5"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{ContentAvailable: true},
			},
		}
		return msg
	}

	msg.Notification = &messaging.Notification{
		Title: m.Title,
		Body:  m.Body,
	}
	return msg
}

// classify maps a per-message FCM response onto the engine's outcome model.
// Unregistered and malformed tokens are permanent; everything else retries.
func classify(r *messaging.SendResponse) Outcome {
	if r.Success {
		return Outcome{Status: StatusOK}
	}

	err := r.Error
	if err == nil {
		return Outcome{Status: StatusTransient}
	}

	if messaging.IsUnregistered(err) || errorutils.IsInvalidArgument(err) {
		return Outcome{Status: StatusUnregistered, Error: err.Error()}
	}

	return Outcome{Status: StatusTransient, Error: err.Error()}
}
