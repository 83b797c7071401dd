package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	databaseScope = "https://www.googleapis.com/auth/firebase.database"
	emailScope    = "https://www.googleapis.com/auth/userinfo.email"
)

// FirebaseClient reads and mutates the users collection over the Realtime
// Database REST API, authenticated with service-account credentials.
type FirebaseClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewFirebaseClient(ctx context.Context, serviceAccountJSON []byte, databaseURL string) (*FirebaseClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	creds, err := google.CredentialsFromJSON(ctx, serviceAccountJSON, databaseScope, emailScope)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, creds.TokenSource)
	httpClient.Timeout = 10 * time.Second

	return &FirebaseClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(databaseURL, "/"),
	}, nil
}

// NewFirebaseClientWithHTTP builds a client around an existing HTTP client.
// Used by tests to point at a local server without credentials.
func NewFirebaseClientWithHTTP(httpClient *http.Client, databaseURL string) *FirebaseClient {
	return &FirebaseClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(databaseURL, "/"),
	}
}

func (c *FirebaseClient) Users(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users.json", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error reading users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error reading users: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// The database returns a bare "null" when the collection is empty.
	if strings.TrimSpace(string(body)) == "null" {
		return Snapshot{}, nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("error decoding users snapshot: %w", err)
	}

	return snapshot, nil
}

func (c *FirebaseClient) RemoveToken(ctx context.Context, userID string) error {
	path := fmt.Sprintf("%s/users/%s/fcmToken.json", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error removing token for user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error removing token for user %s: %s", userID, resp.Status)
	}

	return nil
}
