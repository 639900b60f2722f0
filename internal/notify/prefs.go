package notify

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
	"github.com/hjemmeapp/hjemme-engine/internal/quiethours"
)

// PrefsStore reads recipient notification preferences from Firestore.
// Preferences live at /user_prefs/{user_id}.
type PrefsStore struct {
	client *firestore.Client
	logger *logger.Logger
}

type prefsDoc struct {
	QuietHours *quiethours.Window `firestore:"quietHours"`
}

// NewPrefsStore creates a preferences store.
func NewPrefsStore(client *firestore.Client, logger *logger.Logger) *PrefsStore {
	return &PrefsStore{
		client: client,
		logger: logger.WithComponent("prefs-store"),
	}
}

// QuietHours returns the user's quiet-hours window, or nil when the user
// has none configured.
func (ps *PrefsStore) QuietHours(ctx context.Context, userID string) (*quiethours.Window, error) {
	doc, err := ps.client.Collection("user_prefs").Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch preferences for user %s: %w", userID, err)
	}

	var prefs prefsDoc
	if err := doc.DataTo(&prefs); err != nil {
		return nil, fmt.Errorf("failed to parse preferences for user %s: %w", userID, err)
	}
	return prefs.QuietHours, nil
}
