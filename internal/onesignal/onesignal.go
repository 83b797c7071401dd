package onesignal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dcervantes/rutalert/internal/payload"
)

const (
	DefaultEndpoint = "https://onesignal.com/api/v1/notifications"

	largeIcon = "ic_launcher"
	smallIcon = "ic_stat_onesignal_default"
)

// Client broadcasts notifications to tag-filtered audiences. The provider
// resolves who receives the message; this client only submits the filter.
type Client struct {
	httpClient *http.Client
	endpoint   string
	appID      string
	apiKey     string
}

type broadcastRequest struct {
	AppID     string            `json:"app_id"`
	Headings  map[string]string `json:"headings"`
	Contents  map[string]string `json:"contents"`
	LargeIcon string            `json:"large_icon,omitempty"`
	SmallIcon string            `json:"small_icon,omitempty"`
	Filters   []filter          `json:"filters"`
	Data      map[string]string `json:"data,omitempty"`
}

type filter struct {
	Field    string `json:"field"`
	Key      string `json:"key"`
	Relation string `json:"relation"`
	Value    string `json:"value"`
}

type broadcastResponse struct {
	ID string `json:"id"`
}

func NewClient(appID, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   DefaultEndpoint,
		appID:      appID,
		apiKey:     apiKey,
	}
}

// NewClientWithEndpoint exists for tests pointing at a local server.
func NewClientWithEndpoint(httpClient *http.Client, endpoint, appID, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		appID:      appID,
		apiKey:     apiKey,
	}
}

func (c *Client) BroadcastToTag(ctx context.Context, key, value string, n *payload.Notification) (string, error) {
	request := broadcastRequest{
		AppID:     c.appID,
		Headings:  map[string]string{"en": n.Title},
		Contents:  map[string]string{"en": n.Body},
		LargeIcon: largeIcon,
		SmallIcon: smallIcon,
		Filters: []filter{
			{Field: "tag", Key: key, Relation: "=", Value: value},
		},
		Data: n.Data,
	}

	payloadBytes, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Basic %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to broadcast notification: %s", resp.Status)
	}

	var br broadcastResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return "", fmt.Errorf("error decoding broadcast response: %w", err)
	}

	return br.ID, nil
}
