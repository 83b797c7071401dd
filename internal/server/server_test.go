package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcervantes/rutalert/internal/dispatch"
	"github.com/dcervantes/rutalert/internal/payload"
	"github.com/dcervantes/rutalert/internal/storage"
	"github.com/dcervantes/rutalert/internal/trigger"
)

type stubTransport struct {
	calls int
}

func (t *stubTransport) SendToRoute(ctx context.Context, routeName string, n *payload.Notification) (*dispatch.Result, error) {
	t.calls++
	return &dispatch.Result{SuccessCount: 2}, nil
}

type stubStore struct{}

func (s *stubStore) CreateDispatch(ctx context.Context, d *storage.Dispatch) error { return nil }
func (s *stubStore) FinishDispatch(ctx context.Context, dispatchID, status string, success, failure int) error {
	return nil
}
func (s *stubStore) GetDispatch(ctx context.Context, dispatchID string) (*storage.Dispatch, error) {
	return nil, storage.Errors.NotFound
}
func (s *stubStore) BulkInsertReceipts(ctx context.Context, receipts []storage.DeliveryReceipt) error {
	return nil
}
func (s *stubStore) ListFailedReceipts(ctx context.Context, dispatchID string) ([]storage.DeliveryReceipt, error) {
	return nil, nil
}
func (s *stubStore) Close() error { return nil }

func newTestServer(transport *stubTransport) *Server {
	handler := trigger.NewHandler(transport, nil)
	return New(handler, nil, &stubStore{})
}

func TestBusTriggerEndpoint(t *testing.T) {
	transport := &stubTransport{}
	srv := newTestServer(transport)
	router := srv.setupRouter()

	body := `{"before": {"isActive": false, "routeName": "Centro"}, "after": {"isActive": true, "routeName": "Centro"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/triggers/buses/bus-1", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, transport.calls)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"sent":2`)
}

func TestBusTriggerEndpointSkipsNonActivation(t *testing.T) {
	transport := &stubTransport{}
	srv := newTestServer(transport)
	router := srv.setupRouter()

	body := `{"before": {"isActive": true, "routeName": "Centro"}, "after": {"isActive": true, "routeName": "Centro"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/triggers/buses/bus-1", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, transport.calls)
	assert.Contains(t, rec.Body.String(), `"skipped":true`)
}

func TestAnnouncementTriggerEndpoint(t *testing.T) {
	transport := &stubTransport{}
	srv := newTestServer(transport)
	router := srv.setupRouter()

	body := `{"routeName": "Centro", "subject": "Delay", "message": "15 min delay due to traffic"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/triggers/announcements/ann-1", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, transport.calls)
}

func TestTokenCleanupUnconfigured(t *testing.T) {
	srv := newTestServer(&stubTransport{})
	router := srv.setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/token-cleanup", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetDispatchNotFound(t *testing.T) {
	srv := newTestServer(&stubTransport{})
	router := srv.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/dispatches/nope", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
