package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/conflict"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
)

// Importer admits external bookings.  *conflict.Resolver satisfies it.
type Importer interface {
	Import(ctx context.Context, ext conflict.ExternalBooking) (conflict.ImportResult, error)
}

const maxBackoff = 30 * time.Second

// StartImportConsumer connects to RabbitMQ, declares bookings.import
// (durable) and feeds each message to importer.  It reconnects with
// exponential backoff and returns only when ctx is cancelled.  Messages
// that fail are rejected without requeue so a poison message cannot spin.
func StartImportConsumer(ctx context.Context, url string, importer Importer, l *zap.Logger) error {
	l = logger.OrNop(l).With(zap.String("queue", BookingImportsQueue))
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			l.Warn("import consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, importer, l)
		_ = conn.Close()
		if ctx.Err() != nil {
			l.Info("import consumer stopped")
			return ctx.Err()
		}
		l.Warn("import consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, importer Importer, l *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		l.Warn("import consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(BookingImportsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingImportsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if _, err := handleMessage(ctx, importer, d.Body, l); err != nil {
				l.Warn("import consumer: message rejected", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handleMessage decodes one delivery and runs the import.  A rejected
// import (strategy says skip) is still a successfully handled message.
func handleMessage(ctx context.Context, importer Importer, body []byte, l *zap.Logger) (conflict.ImportResult, error) {
	var msg ExternalBookingMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return conflict.ImportResult{}, fmt.Errorf("unmarshal: %w", err)
	}
	res, err := importer.Import(ctx, msg.ToExternal())
	if err != nil {
		return conflict.ImportResult{}, fmt.Errorf("import %s/%s: %w", msg.Platform, msg.ExternalRef, err)
	}
	l.Info("import consumer: message handled",
		zap.String("platform", msg.Platform),
		zap.String("external_ref", msg.ExternalRef),
		zap.Bool("admitted", res.Proceed),
		zap.Bool("duplicate", res.Duplicate),
		zap.String("action", string(res.Action)),
	)
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
