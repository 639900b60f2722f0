package push

import "context"

// Status classifies the per-token outcome of a send.
type Status int

const (
	// StatusOK means the provider accepted the message.
	StatusOK Status = iota
	// StatusUnregistered means the device token is permanently invalid and
	// should be cleaned up.
	StatusUnregistered
	// StatusTransient means the send failed in a retryable way (rate limit,
	// provider outage, unknown error).
	StatusTransient
)

// Message is a single device-addressed push notification.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
	// Silent delivers without an alert (soft quiet hours).
	Silent bool
}

// Outcome is the result of sending one Message, positionally aligned with
// the input slice.
type Outcome struct {
	Status Status
	Error  string
}

// Transport sends a batch of messages and reports per-message outcomes.
// Implementations must never let one bad token fail the whole batch.
type Transport interface {
	Send(ctx context.Context, msgs []Message) ([]Outcome, error)
}

// TokenInfo is one registered device token for a user.
type TokenInfo struct {
	Token         string `firestore:"token"`
	DeviceID      string `firestore:"deviceId"`
	LastUpdatedAt string `firestore:"lastUpdatedAt"`
}
