package push

import (
	"context"
	"log/slog"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
)

// NoopTransport accepts every message without sending. Used when push
// notifications are disabled by configuration.
type NoopTransport struct {
	logger *logger.Logger
}

// NewNoopTransport creates a transport that only logs.
func NewNoopTransport(logger *logger.Logger) *NoopTransport {
	return &NoopTransport{logger: logger.WithComponent("noop-transport")}
}

// Send reports success for every message.
func (t *NoopTransport) Send(ctx context.Context, msgs []Message) ([]Outcome, error) {
	t.logger.WithContext(ctx).Debug("push disabled, dropping messages", slog.Int("count", len(msgs)))
	return make([]Outcome, len(msgs)), nil
}
