package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
)

func breachEvent() events.Event {
	deadline := time.Now().Add(-5 * time.Minute)
	return events.Event{
		ID:        "evt-1",
		Type:      events.EventSLABreached,
		TicketID:  "ticket-1",
		Timestamp: time.Now(),
		Payload: events.SLABreachedPayload{
			DepartmentID: "dept-1",
			DeadlineAt:   &deadline,
			At:           time.Now(),
		},
	}
}

func TestNotificationDeliversWebhook(t *testing.T) {
	var received atomic.Int32
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		body, _ = io.ReadAll(r.Body)
		assert.Equal(t, string(events.EventSLABreached), r.Header.Get("X-SLA-Event"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(config.WebhookConfig{URL: server.URL, TimeoutSeconds: 2}, dispatcher, zap.NewNop())
	svc.RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), breachEvent()))

	assert.Equal(t, int32(1), received.Load())
	var delivered events.Event
	require.NoError(t, json.Unmarshal(body, &delivered))
	assert.Equal(t, "ticket-1", delivered.TicketID)
}

func TestNotificationRetriesOnce(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(config.WebhookConfig{URL: server.URL, TimeoutSeconds: 2}, dispatcher, zap.NewNop())
	svc.RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), breachEvent()))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestNotificationWithoutWebhookLogsOnly(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(config.WebhookConfig{}, dispatcher, zap.NewNop())
	svc.RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), breachEvent()))
}
