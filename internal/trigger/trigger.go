package trigger

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dcervantes/rutalert/internal/dispatch"
	"github.com/dcervantes/rutalert/internal/payload"
	"github.com/dcervantes/rutalert/internal/storage"
)

// Bus is the before/after snapshot shape delivered by the change trigger.
// Only these two fields matter; any other field change is ignored.
type Bus struct {
	IsActive  bool   `json:"isActive"`
	RouteName string `json:"routeName"`
}

type Announcement struct {
	RouteName string `json:"routeName"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
}

// Outcome is what a handler hands back to the invoking platform. Business
// errors land in the Error field instead of a Go error: a handler that
// "throws" would trip the platform's retry machinery and re-deliver an
// already-partially-sent dispatch.
type Outcome struct {
	Success     bool   `json:"success"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
	DispatchID  string `json:"dispatch_id,omitempty"`
	BroadcastID string `json:"broadcast_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Handler reacts to change events from the external data store. It holds no
// state of its own across invocations.
type Handler struct {
	transport dispatch.Transport
	store     storage.Store
}

func NewHandler(transport dispatch.Transport, store storage.Store) *Handler {
	return &Handler{transport: transport, store: store}
}

// BusUpdated fires a favorite-route dispatch when a bus transitions from
// inactive to active. Every other transition is a no-op and returns nil.
func (h *Handler) BusUpdated(ctx context.Context, busID string, before, after Bus) *Outcome {
	if before.IsActive || !after.IsActive {
		return nil
	}

	log.Printf("Bus %s activated for route: %s", busID, after.RouteName)

	n, err := payload.ForBusActivation(after.RouteName, busID)
	if err != nil {
		log.Printf("Error building notification: %v", err)
		return &Outcome{Success: false, Error: err.Error()}
	}

	return h.dispatch(ctx, payload.EventFavoriteRouteActive, after.RouteName, n)
}

// AnnouncementCreated fires on every new announcement; creation itself is
// the transition, so there is no condition to check.
func (h *Handler) AnnouncementCreated(ctx context.Context, announcementID string, ann Announcement) *Outcome {
	log.Printf("Announcement %s created for route: %s", announcementID, ann.RouteName)

	n, err := payload.ForAnnouncement(ann.RouteName, announcementID, ann.Subject, ann.Message)
	if err != nil {
		log.Printf("Error building notification: %v", err)
		return &Outcome{Success: false, Error: err.Error()}
	}

	return h.dispatch(ctx, payload.EventAnnouncement, ann.RouteName, n)
}

func (h *Handler) dispatch(ctx context.Context, kind, routeName string, n *payload.Notification) *Outcome {
	dispatchID := uuid.New().String()

	h.recordDispatch(ctx, &storage.Dispatch{
		ID:        dispatchID,
		Kind:      kind,
		RouteName: routeName,
		Status:    "IN_PROGRESS",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})

	result, err := h.transport.SendToRoute(ctx, routeName, n)
	if err != nil {
		log.Printf("Error sending notifications: %v", err)
		h.finishDispatch(ctx, dispatchID, "FAILED", 0, 0)
		return &Outcome{Success: false, DispatchID: dispatchID, Error: err.Error()}
	}

	log.Printf("Successfully sent %d notifications", result.SuccessCount)
	if result.FailureCount > 0 {
		log.Printf("Failed to send %d notifications", result.FailureCount)
	}

	h.recordFailures(ctx, dispatchID, result.Failures)
	h.finishDispatch(ctx, dispatchID, "COMPLETED", result.SuccessCount, result.FailureCount)

	return &Outcome{
		Success:     true,
		Sent:        result.SuccessCount,
		Failed:      result.FailureCount,
		DispatchID:  dispatchID,
		BroadcastID: result.BroadcastID,
	}
}

// Audit writes are best effort: a store hiccup must never fail a dispatch
// that already went out.

func (h *Handler) recordDispatch(ctx context.Context, d *storage.Dispatch) {
	if h.store == nil {
		return
	}
	if err := h.store.CreateDispatch(ctx, d); err != nil {
		log.Printf("Error recording dispatch %s: %v", d.ID, err)
	}
}

func (h *Handler) finishDispatch(ctx context.Context, dispatchID, status string, success, failure int) {
	if h.store == nil {
		return
	}
	if err := h.store.FinishDispatch(ctx, dispatchID, status, success, failure); err != nil {
		log.Printf("Error updating dispatch %s: %v", dispatchID, err)
	}
}

func (h *Handler) recordFailures(ctx context.Context, dispatchID string, failures []dispatch.Failure) {
	if h.store == nil || len(failures) == 0 {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	receipts := make([]storage.DeliveryReceipt, len(failures))
	for i, f := range failures {
		receipts[i] = storage.DeliveryReceipt{
			ID:           uuid.New().String(),
			DispatchID:   dispatchID,
			UserID:       f.UserID,
			Token:        f.Token,
			Status:       "FAILED",
			StatusReason: f.Code,
			DispatchedAt: now,
		}
	}

	if err := h.store.BulkInsertReceipts(ctx, receipts); err != nil {
		log.Printf("Error recording delivery receipts for dispatch %s: %v", dispatchID, err)
	}
}
