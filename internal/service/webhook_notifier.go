package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/holds"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
	"github.com/iliyamo/hostel-bed-holds/internal/queue"
)

// WebhookNotifier POSTs hold events as JSON to a configured URL, typically
// the guest messaging service.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhookNotifier builds a notifier with a short timeout and two retries.
func NewWebhookNotifier(url string, timeout time.Duration, l *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &WebhookNotifier{client: client, url: url, logger: logger.OrNop(l)}
}

// HoldChanged implements holds.Notifier.
func (w *WebhookNotifier) HoldChanged(ctx context.Context, h model.Hold) error {
	ev := queue.NewHoldEvent(h)
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("X-Event-Type", ev.Type).
		SetBody(ev).
		Post(w.url)
	if err != nil {
		w.logger.Warn("webhook call failed", zap.String("hold_id", h.ID), zap.Error(err))
		return fmt.Errorf("webhook %s: %w", ev.Type, err)
	}
	if resp.IsError() {
		w.logger.Warn("webhook rejected event",
			zap.String("hold_id", h.ID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("webhook %s: status %d", ev.Type, resp.StatusCode())
	}
	return nil
}

// MultiNotifier fans one change out to several notifiers.  Every notifier
// is called; their errors are joined.
type MultiNotifier []holds.Notifier

// HoldChanged implements holds.Notifier.
func (m MultiNotifier) HoldChanged(ctx context.Context, h model.Hold) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.HoldChanged(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
