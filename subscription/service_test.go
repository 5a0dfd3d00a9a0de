package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zllovesuki/subtrack/auth"
	"github.com/zllovesuki/subtrack/spec/protocol"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProducer struct {
	requests []*protocol.ReminderStartRequest
	err      error
}

func (p *stubProducer) Close() {
}

func (p *stubProducer) SendReminderStartRequest(req *protocol.ReminderStartRequest) error {
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

type envelope struct {
	Success  bool            `json:"success"`
	Messages []string        `json:"messages"`
	Result   json.RawMessage `json:"result"`
}

type serviceHarness struct {
	clock    *fakeClock
	manager  *Manager
	producer *stubProducer
	router   http.Handler
}

func newServiceHarness(t *testing.T, userID string) *serviceHarness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	manager := testManager(t, clock)
	producer := &stubProducer{}

	svc, err := NewService(ServiceOptions{
		SubscriptionManager: manager,
		Producer:            producer,
		Logger:              zap.NewNop(),
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &auth.Claims{
				Email: "alice@example.com",
				ID:    userID,
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auth.Context, claims)))
		})
	})
	router.Mount("/", svc.Router())

	return &serviceHarness{
		clock:    clock,
		manager:  manager,
		producer: producer,
		router:   router,
	}
}

func (h *serviceHarness) do(t *testing.T, method, target string, body interface{}) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return w, &env
}

func validCreateBody() map[string]interface{} {
	return map[string]interface{}{
		"name":          "Netflix",
		"price":         15.99,
		"frequency":     "monthly",
		"category":      "entertainment",
		"paymentMethod": "Visa ending 4242",
	}
}

func TestCreateSubscriptionEndpoint(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	w, env := h.do(t, "POST", "/", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, env.Success)

	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))
	require.NotEmpty(t, sub.ID)
	require.Equal(t, "user-1", sub.UserID)
	require.Equal(t, StatusActive, sub.Status)
	require.Equal(t, CurrencyUSD, sub.Currency)

	// creation hands the reminder sequence off to the worker
	require.Len(t, h.producer.requests, 1)
	require.Equal(t, sub.ID, h.producer.requests[0].SubscriptionID)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	body := validCreateBody()
	delete(body, "price")
	w, env := h.do(t, "POST", "/", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)
	require.Empty(t, h.producer.requests)
}

func TestCreateSubscriptionConflictPayload(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	w, env := h.do(t, "POST", "/", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code)
	var first Subscription
	require.NoError(t, json.Unmarshal(env.Result, &first))

	// same name, same frequency: conflict without a pointer
	w, env = h.do(t, "POST", "/", validCreateBody())
	require.Equal(t, http.StatusConflict, w.Code)
	require.False(t, env.Success)
	require.NotContains(t, string(env.Result), "existingSubscriptionId")

	// same name, different frequency: the response names the existing record
	body := validCreateBody()
	body["frequency"] = "yearly"
	w, env = h.do(t, "POST", "/", body)
	require.Equal(t, http.StatusConflict, w.Code)

	var result map[string]string
	require.NoError(t, json.Unmarshal(env.Result, &result))
	require.Equal(t, first.ID, result["existingSubscriptionId"])
}

func TestCreateSubscriptionEnqueueFailureStillCreates(t *testing.T) {
	h := newServiceHarness(t, "user-1")
	h.producer.err = fmt.Errorf("broker unavailable")

	w, env := h.do(t, "POST", "/", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, env.Success)

	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))

	// the subscription stands even though the reminder could not be enqueued
	stored, err := h.manager.Get(context.Background(), GetOption{UserID: "user-1", SubscriptionID: sub.ID})
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)
}

func TestGetSubscriptionEndpoint(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	_, env := h.do(t, "POST", "/", validCreateBody())
	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))

	w, env := h.do(t, "GET", "/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found Subscription
	require.NoError(t, json.Unmarshal(env.Result, &found))
	require.Equal(t, sub.ID, found.ID)

	w, _ = h.do(t, "GET", "/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSubscriptionsEndpoint(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	h.do(t, "POST", "/", validCreateBody())
	body := validCreateBody()
	body["name"] = "Spotify"
	h.do(t, "POST", "/", body)

	w, env := h.do(t, "GET", "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var results []Subscription
	require.NoError(t, json.Unmarshal(env.Result, &results))
	require.Len(t, results, 2)
}

func TestUpdateSubscriptionEndpoint(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	_, env := h.do(t, "POST", "/", validCreateBody())
	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))

	w, env := h.do(t, "PUT", "/"+sub.ID, map[string]interface{}{
		"frequency": "weekly",
		"price":     9.99,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var updated Subscription
	require.NoError(t, json.Unmarshal(env.Result, &updated))
	require.Equal(t, FrequencyWeekly, updated.Frequency)
	require.Equal(t, 9.99, updated.Price)
	require.True(t, updated.RenewalDate.Equal(sub.StartDate.AddDate(0, 0, 7)))

	w, _ = h.do(t, "PUT", "/"+sub.ID, map[string]interface{}{
		"frequency": "hourly",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelSubscriptionEndpoint(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	_, env := h.do(t, "POST", "/", validCreateBody())
	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))

	w, env := h.do(t, "PUT", "/"+sub.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled Subscription
	require.NoError(t, json.Unmarshal(env.Result, &cancelled))
	require.Equal(t, StatusCancelled, cancelled.Status)

	// cancelling twice is an invalid transition
	w, _ = h.do(t, "PUT", "/"+sub.ID+"/cancel", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenewSubscriptionEndpoint(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	_, env := h.do(t, "POST", "/", validCreateBody())
	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))
	require.Len(t, h.producer.requests, 1)

	w, env := h.do(t, "PUT", "/"+sub.ID+"/renew", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var renewed Subscription
	require.NoError(t, json.Unmarshal(env.Result, &renewed))
	require.True(t, renewed.StartDate.Equal(sub.RenewalDate))
	require.True(t, renewed.RenewalDate.Equal(sub.RenewalDate.AddDate(0, 1, 0)))

	// the rollover enqueues a reminder sequence for the next billing period
	require.Len(t, h.producer.requests, 2)
	require.Equal(t, sub.ID, h.producer.requests[1].SubscriptionID)

	w, _ = h.do(t, "PUT", "/no-such-id/renew", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenewSubscriptionIsScopedToOwner(t *testing.T) {
	owner := newServiceHarness(t, "user-1")

	_, env := owner.do(t, "POST", "/", validCreateBody())
	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))

	other, err := NewService(ServiceOptions{
		SubscriptionManager: owner.manager,
		Producer:            &stubProducer{},
		Logger:              zap.NewNop(),
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &auth.Claims{
				Email: "mallory@example.com",
				ID:    "user-2",
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auth.Context, claims)))
		})
	})
	router.Mount("/", other.Router())

	req := httptest.NewRequest("PUT", "/"+sub.ID+"/renew", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSubscriptionEndpoint(t *testing.T) {
	h := newServiceHarness(t, "user-1")

	_, env := h.do(t, "POST", "/", validCreateBody())
	var sub Subscription
	require.NoError(t, json.Unmarshal(env.Result, &sub))

	w, _ := h.do(t, "DELETE", "/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = h.do(t, "GET", "/"+sub.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
