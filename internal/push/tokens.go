package push

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hjemmeapp/hjemme-engine/internal/logger"
)

// maxReverseLookup bounds the reverse token query so cleanup stays cheap.
const maxReverseLookup = 5

// TokenStore reads and invalidates push notification tokens in Firestore.
//
// Tokens are stored at /push_tokens/{user_id} with structure:
//
//	{
//	  tokens: {
//	    deviceId1: {token: "fcm_token_...", deviceId: "device1", lastUpdatedAt: timestamp},
//	    deviceId2: {...}
//	  },
//	  tokenList: ["fcm_token_...", ...]
//	}
//
// tokenList mirrors the token values so a token can be traced back to its
// owner with an array-contains query.
type TokenStore struct {
	client *firestore.Client
	logger *logger.Logger
}

// NewTokenStore creates a new token store.
func NewTokenStore(client *firestore.Client, logger *logger.Logger) *TokenStore {
	return &TokenStore{
		client: client,
		logger: logger.WithComponent("token-store"),
	}
}

// GetUserTokens retrieves all registered device tokens for a user.
func (ts *TokenStore) GetUserTokens(ctx context.Context, userID string) ([]TokenInfo, error) {
	log := ts.logger.WithContext(ctx)

	doc, err := ts.client.Collection("push_tokens").Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch push tokens: %w", err)
	}

	tokensData, ok := doc.Data()["tokens"]
	if !ok {
		return nil, nil
	}

	tokensMap, ok := tokensData.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid tokens data structure for user %s", userID)
	}

	var tokens []TokenInfo
	for deviceID, tokenData := range tokensMap {
		tokenMap, ok := tokenData.(map[string]interface{})
		if !ok {
			log.Warn("skipping invalid token entry",
				slog.String("user_id", userID),
				slog.String("device_id", deviceID))
			continue
		}

		token, ok := tokenMap["token"].(string)
		if !ok || token == "" {
			continue
		}

		info := TokenInfo{Token: token, DeviceID: deviceID}
		if lastUpdated, ok := tokenMap["lastUpdatedAt"].(string); ok {
			info.LastUpdatedAt = lastUpdated
		}
		tokens = append(tokens, info)
	}

	return tokens, nil
}

// FindUsersByToken returns the ids of users owning the given token.
// Best-effort and bounded; used when a dropped token arrives without an
// aligned recipient id.
func (ts *TokenStore) FindUsersByToken(ctx context.Context, token string) ([]string, error) {
	docs, err := ts.client.Collection("push_tokens").
		Where("tokenList", "array-contains", token).
		Limit(maxReverseLookup).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to look up token owner: %w", err)
	}

	userIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		userIDs = append(userIDs, doc.Ref.ID)
	}
	return userIDs, nil
}

// ClearToken removes every device entry holding the given token from the
// user's document, and the token from the reverse-lookup list.
func (ts *TokenStore) ClearToken(ctx context.Context, userID, token string) error {
	log := ts.logger.WithContext(ctx)

	docRef := ts.client.Collection("push_tokens").Doc(userID)
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to fetch push tokens for cleanup: %w", err)
	}

	tokensMap, _ := doc.Data()["tokens"].(map[string]interface{})

	updates := []firestore.Update{
		{Path: "tokenList", Value: firestore.ArrayRemove(token)},
	}
	for deviceID, tokenData := range tokensMap {
		tokenMap, ok := tokenData.(map[string]interface{})
		if !ok {
			continue
		}
		if stored, _ := tokenMap["token"].(string); stored == token {
			updates = append(updates, firestore.Update{
				Path:  "tokens." + deviceID,
				Value: firestore.Delete,
			})
		}
	}

	if _, err := docRef.Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to clear token for user %s: %w", userID, err)
	}

	log.Info("cleared invalid device token",
		slog.String("user_id", userID),
		slog.String("token_prefix", tokenPrefix(token)))
	return nil
}

// tokenPrefix truncates a token for logging.
func tokenPrefix(token string) string {
	if len(token) > 10 {
		return token[:10] + "..."
	}
	return token
}
