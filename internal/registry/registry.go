package registry

import "context"

// User is one record from the external user registry. The registry owns
// the schema; this service reads it and, during token cleanup, deletes the
// fcmToken field and nothing else.
type User struct {
	FCMToken       string            `json:"fcmToken,omitempty"`
	FavoriteRoutes map[string]bool   `json:"favoriteRoutes,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// Snapshot is a point-in-time read of the whole users collection, keyed by
// user id. An empty snapshot means no recipients, not an error.
type Snapshot map[string]User

type Reader interface {
	Users(ctx context.Context) (Snapshot, error)
}

type TokenRemover interface {
	RemoveToken(ctx context.Context, userID string) error
}

type Store interface {
	Reader
	TokenRemover
}
