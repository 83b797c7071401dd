package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dcervantes/rutalert/internal/dispatch"
	"github.com/dcervantes/rutalert/internal/payload"
)

const (
	fcmScope    = "https://www.googleapis.com/auth/firebase.messaging"
	fcmEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

	// Provider-imposed ceiling on recipients per multicast call.
	MaxBatchTokens = 500
)

type Client struct {
	httpClient *http.Client
	endpoint   string
	numSenders int
}

type fcmRequest struct {
	ValidateOnly bool       `json:"validate_only,omitempty"`
	Message      fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmErrorResponse struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func NewClient(ctx context.Context, serviceAccountJSON []byte, numSenders int) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, serviceAccountJSON, fcmScope)
	if err != nil {
		return nil, err
	}

	var rawJSON map[string]interface{}
	if err := json.Unmarshal(serviceAccountJSON, &rawJSON); err != nil {
		return nil, err
	}
	projectID, ok := rawJSON["project_id"].(string)
	if !ok {
		return nil, fmt.Errorf("service account JSON has no project_id")
	}

	httpClient := oauth2.NewClient(ctx, creds.TokenSource)
	httpClient.Timeout = 10 * time.Second

	return &Client{
		httpClient: httpClient,
		endpoint:   fmt.Sprintf(fcmEndpoint, projectID),
		numSenders: senderCount(numSenders),
	}, nil
}

// NewClientWithHTTP builds a client against an arbitrary endpoint. Used by
// tests to point at a local server.
func NewClientWithHTTP(httpClient *http.Client, endpoint string, numSenders int) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		numSenders: senderCount(numSenders),
	}
}

func senderCount(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

// SendEachForMulticast sends the notification to every token in the batch,
// one v1 send per token, with bounded concurrency. Responses line up with
// the input token order. A single bad token never fails the batch; only a
// batch of more than MaxBatchTokens is rejected outright.
func (c *Client) SendEachForMulticast(ctx context.Context, tokens []string, n *payload.Notification) (*dispatch.BatchResponse, error) {
	if len(tokens) > MaxBatchTokens {
		return nil, fmt.Errorf("batch of %d tokens exceeds the %d token limit", len(tokens), MaxBatchTokens)
	}

	resp := &dispatch.BatchResponse{
		Responses: make([]dispatch.SendResponse, len(tokens)),
	}

	indexes := make(chan int)
	var wg sync.WaitGroup

	workers := c.numSenders
	if workers > len(tokens) {
		workers = len(tokens)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				err := c.send(ctx, fcmRequest{
					Message: fcmMessage{
						Token:        tokens[idx],
						Notification: &notification{Title: n.Title, Body: n.Body},
						Data:         n.Data,
					},
				})
				if err != nil {
					resp.Responses[idx] = dispatch.SendResponse{Success: false, Error: err}
				} else {
					resp.Responses[idx] = dispatch.SendResponse{Success: true}
				}
			}
		}()
	}

	for idx := range tokens {
		indexes <- idx
	}
	close(indexes)
	wg.Wait()

	for _, r := range resp.Responses {
		if r.Success {
			resp.SuccessCount++
		} else {
			resp.FailureCount++
		}
	}

	return resp, nil
}

// ValidateToken probes a token with a validate-only send that the provider
// never delivers. The returned error carries the provider's code when the
// token itself is bad.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	return c.send(ctx, fcmRequest{
		ValidateOnly: true,
		Message: fcmMessage{
			Token: token,
			Data:  map[string]string{"test": "true"},
		},
	})
}

func (c *Client) send(ctx context.Context, request fcmRequest) error {
	payloadBytes, err := json.Marshal(request)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return sendErrorFromBody(resp.Status, body, request.ValidateOnly)
}

// sendErrorFromBody normalizes an FCM v1 error payload to the two token
// error codes the rest of the system acts on. Everything else keeps the
// raw status so it is never mistaken for a dead token. INVALID_ARGUMENT is
// only token-shaped on the validate-only probe, whose payload is fixed; a
// real send can earn the same status for an oversized data map, so there
// the raw status is kept.
func sendErrorFromBody(httpStatus string, body []byte, validateOnly bool) error {
	var errResp fcmErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Status == "" {
		return &dispatch.SendError{Code: "unavailable", Message: httpStatus}
	}

	status := errResp.Error.Status
	for _, d := range errResp.Error.Details {
		if d.ErrorCode != "" {
			status = d.ErrorCode
		}
	}

	switch status {
	case "UNREGISTERED", "NOT_FOUND":
		return &dispatch.SendError{Code: dispatch.CodeTokenUnregistered, Message: errResp.Error.Message}
	case "INVALID_ARGUMENT":
		if validateOnly {
			return &dispatch.SendError{Code: dispatch.CodeInvalidToken, Message: errResp.Error.Message}
		}
		return &dispatch.SendError{Code: status, Message: errResp.Error.Message}
	default:
		return &dispatch.SendError{Code: status, Message: errResp.Error.Message}
	}
}
