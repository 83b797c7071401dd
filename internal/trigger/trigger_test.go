package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcervantes/rutalert/internal/dispatch"
	"github.com/dcervantes/rutalert/internal/payload"
	"github.com/dcervantes/rutalert/internal/storage"
)

type fakeTransport struct {
	calls  int
	route  string
	last   *payload.Notification
	result *dispatch.Result
	err    error
}

func (t *fakeTransport) SendToRoute(ctx context.Context, routeName string, n *payload.Notification) (*dispatch.Result, error) {
	t.calls++
	t.route = routeName
	t.last = n
	return t.result, t.err
}

type fakeStore struct {
	dispatches []storage.Dispatch
	finished   map[string]string
	receipts   []storage.DeliveryReceipt
}

func newFakeStore() *fakeStore {
	return &fakeStore{finished: map[string]string{}}
}

func (s *fakeStore) CreateDispatch(ctx context.Context, d *storage.Dispatch) error {
	s.dispatches = append(s.dispatches, *d)
	return nil
}

func (s *fakeStore) FinishDispatch(ctx context.Context, dispatchID, status string, success, failure int) error {
	s.finished[dispatchID] = status
	return nil
}

func (s *fakeStore) GetDispatch(ctx context.Context, dispatchID string) (*storage.Dispatch, error) {
	return nil, storage.Errors.NotFound
}

func (s *fakeStore) BulkInsertReceipts(ctx context.Context, receipts []storage.DeliveryReceipt) error {
	s.receipts = append(s.receipts, receipts...)
	return nil
}

func (s *fakeStore) ListFailedReceipts(ctx context.Context, dispatchID string) ([]storage.DeliveryReceipt, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func TestBusUpdatedFiresOnlyOnActivation(t *testing.T) {
	cases := []struct {
		name       string
		before     bool
		after      bool
		dispatched bool
	}{
		{"inactive to active", false, true, true},
		{"stays active", true, true, false},
		{"stays inactive", false, false, false},
		{"active to inactive", true, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &fakeTransport{result: &dispatch.Result{SuccessCount: 3}}
			h := NewHandler(transport, nil)

			outcome := h.BusUpdated(context.Background(), "bus-1",
				Bus{IsActive: tc.before, RouteName: "Centro"},
				Bus{IsActive: tc.after, RouteName: "Centro"},
			)

			if tc.dispatched {
				require.NotNil(t, outcome)
				assert.True(t, outcome.Success)
				assert.Equal(t, 3, outcome.Sent)
				assert.Equal(t, 1, transport.calls)
				assert.Equal(t, "Centro", transport.route)
			} else {
				assert.Nil(t, outcome)
				assert.Equal(t, 0, transport.calls)
			}
		})
	}
}

func TestBusUpdatedUsesAfterRouteName(t *testing.T) {
	transport := &fakeTransport{result: &dispatch.Result{}}
	h := NewHandler(transport, nil)

	h.BusUpdated(context.Background(), "bus-1",
		Bus{IsActive: false, RouteName: "Vieja"},
		Bus{IsActive: true, RouteName: "Nueva"},
	)

	assert.Equal(t, "Nueva", transport.route)
	assert.Equal(t, "Nueva", transport.last.Data["routeName"])
}

func TestAnnouncementCreatedAlwaysDispatches(t *testing.T) {
	transport := &fakeTransport{result: &dispatch.Result{SuccessCount: 7}}
	h := NewHandler(transport, nil)

	outcome := h.AnnouncementCreated(context.Background(), "ann-1", Announcement{
		RouteName: "Centro",
		Subject:   "Delay",
		Message:   "15 min delay due to traffic",
	})

	require.NotNil(t, outcome)
	assert.True(t, outcome.Success)
	assert.Equal(t, 7, outcome.Sent)
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, "Delay", transport.last.Body)
	assert.Equal(t, "15 min delay due to traffic", transport.last.Data["message"])
}

func TestHandlerSwallowsTransportErrors(t *testing.T) {
	transport := &fakeTransport{err: errors.New("registry unavailable")}
	h := NewHandler(transport, nil)

	outcome := h.BusUpdated(context.Background(), "bus-1",
		Bus{IsActive: false, RouteName: "Centro"},
		Bus{IsActive: true, RouteName: "Centro"},
	)

	require.NotNil(t, outcome)
	assert.False(t, outcome.Success)
	assert.Equal(t, "registry unavailable", outcome.Error)
}

func TestHandlerRejectsMissingRoute(t *testing.T) {
	transport := &fakeTransport{result: &dispatch.Result{}}
	h := NewHandler(transport, nil)

	outcome := h.BusUpdated(context.Background(), "bus-1",
		Bus{IsActive: false},
		Bus{IsActive: true},
	)

	require.NotNil(t, outcome)
	assert.False(t, outcome.Success)
	assert.Equal(t, 0, transport.calls, "no dispatch on a build failure")
}

func TestHandlerRecordsAudit(t *testing.T) {
	transport := &fakeTransport{result: &dispatch.Result{
		SuccessCount: 2,
		FailureCount: 1,
		Failures: []dispatch.Failure{
			{UserID: "u1", Token: "tok-1", Code: dispatch.CodeTokenUnregistered},
		},
	}}
	store := newFakeStore()
	h := NewHandler(transport, store)

	outcome := h.AnnouncementCreated(context.Background(), "ann-1", Announcement{
		RouteName: "Centro",
		Subject:   "Delay",
	})

	require.NotNil(t, outcome)
	require.Len(t, store.dispatches, 1)
	assert.Equal(t, payload.EventAnnouncement, store.dispatches[0].Kind)
	assert.Equal(t, "COMPLETED", store.finished[store.dispatches[0].ID])

	require.Len(t, store.receipts, 1)
	assert.Equal(t, "u1", store.receipts[0].UserID)
	assert.Equal(t, dispatch.CodeTokenUnregistered, store.receipts[0].StatusReason)
	assert.Equal(t, store.dispatches[0].ID, store.receipts[0].DispatchID)
}

func TestHandlerMarksFailedDispatch(t *testing.T) {
	transport := &fakeTransport{err: errors.New("auth failure")}
	store := newFakeStore()
	h := NewHandler(transport, store)

	outcome := h.AnnouncementCreated(context.Background(), "ann-1", Announcement{RouteName: "Centro"})

	require.NotNil(t, outcome)
	assert.False(t, outcome.Success)
	require.Len(t, store.dispatches, 1)
	assert.Equal(t, "FAILED", store.finished[store.dispatches[0].ID])
}
