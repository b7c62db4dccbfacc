package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
)

// NotificationService forwards SLA breach and escalation events to an
// external webhook so on-duty supervisors get paged. Delivery is best
// effort: a failed post is retried once and then logged, never letting a
// down consumer stall the evaluator.
type NotificationService struct {
	dispatcher events.Dispatcher
	client     *http.Client
	webhookURL string
	logger     *zap.Logger
}

// NewNotificationService constructs the service. With an empty webhook URL
// the service still subscribes and logs, which is the development default.
func NewNotificationService(cfg config.WebhookConfig, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		client:     &http.Client{Timeout: cfg.Timeout()},
		webhookURL: cfg.URL,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to the events worth paging about.
func (s *NotificationService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventSLABreached, s.handle)
	s.dispatcher.Subscribe(events.EventSLAEscalated, s.handle)
	s.dispatcher.Subscribe(events.EventClassificationChanged, s.handle)
}

func (s *NotificationService) handle(ctx context.Context, event events.Event) error {
	if s.webhookURL == "" {
		s.logger.Info("sla notification",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		return nil
	}

	if err := s.deliver(ctx, event); err != nil {
		s.logger.Warn("webhook delivery failed, retrying once",
			zap.String("event_id", event.ID), zap.Error(err))
		if err := s.deliver(ctx, event); err != nil {
			s.logger.Error("webhook delivery failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SLA-Event", string(event.Type))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
