package dispatch

import (
	"context"
	"fmt"

	"github.com/dcervantes/rutalert/internal/payload"
)

// Provider error codes that mark a device token as gone for good. Only
// these two justify removing a token from the registry; anything else may
// be transient.
const (
	CodeInvalidToken      = "invalid-registration-token"
	CodeTokenUnregistered = "registration-token-not-registered"
)

// SendError is a per-recipient delivery failure reported by a push provider.
type SendError struct {
	Code    string
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Failure identifies one recipient a dispatch could not reach.
type Failure struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
	Code   string `json:"code"`
}

// Result aggregates the outcome of one fan-out. For the tag strategy the
// provider resolves the audience itself, so only BroadcastID is set.
type Result struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Failures     []Failure `json:"failures,omitempty"`
	BroadcastID  string    `json:"broadcast_id,omitempty"`
}

// Transport delivers one notification to everyone interested in a route.
// A returned error means nothing was delivered; partial failures are
// reported inside the Result instead.
type Transport interface {
	SendToRoute(ctx context.Context, routeName string, n *payload.Notification) (*Result, error)
}

// SendResponse is the per-token outcome within one multicast batch, in the
// same order as the submitted tokens.
type SendResponse struct {
	Success bool
	Error   error
}

// BatchResponse is what a MulticastClient reports for one batch of tokens.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResponse
}

// MulticastClient sends one notification to a bounded batch of device
// tokens. Implemented by the FCM client.
type MulticastClient interface {
	SendEachForMulticast(ctx context.Context, tokens []string, n *payload.Notification) (*BatchResponse, error)
}

// Broadcaster delivers one notification to a server-side tag audience and
// returns the provider's delivery id. Implemented by the OneSignal client.
type Broadcaster interface {
	BroadcastToTag(ctx context.Context, key, value string, n *payload.Notification) (string, error)
}
