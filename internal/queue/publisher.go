package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/internal/repository"
)

// ErrRecipientSuppressed is returned by Enqueue when the recipient was
// recently marked undeliverable for this tenant and channel.
var ErrRecipientSuppressed = errors.New("queue: recipient is suppressed")

// Publisher enqueues delivery requests onto the notifications exchange.
// Suppression is checked here, at the boundary, so the task semantics stay
// untouched.
type Publisher struct {
	conn        *amqp.Connection
	exchange    string
	suppression *repository.SuppressionStore
	logger      *slog.Logger
}

func NewPublisher(conn *amqp.Connection, suppression *repository.SuppressionStore, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:        conn,
		exchange:    exchangeName,
		suppression: suppression,
		logger:      logger,
	}
}

// Enqueue publishes req with its channel as the routing key. The first
// attempt number is stamped into the message headers; the consumer owns the
// counter from there.
func (p *Publisher) Enqueue(ctx context.Context, req *models.DeliveryRequest) error {
	if p.suppression != nil {
		suppressed, err := p.suppression.IsSuppressed(ctx, req.TenantID, req.Channel, req.Recipient)
		if err != nil {
			// The guard is best-effort; a cache outage must not block sends.
			p.logger.Warn("suppression check failed, enqueueing anyway",
				slog.String("request_id", req.ID), slog.Any("error", err))
		} else if suppressed {
			p.logger.Info("recipient suppressed, delivery not enqueued",
				slog.String("request_id", req.ID),
				slog.Int64("tenant_id", req.TenantID),
				slog.String("channel", string(req.Channel)),
				slog.String("recipient", req.Recipient),
			)
			return ErrRecipientSuppressed
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("queue: encoding request %s: %w", req.ID, err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: opening channel: %w", err)
	}
	defer ch.Close()

	err = ch.Publish(p.exchange, string(req.Channel), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    req.ID,
		Body:         body,
		Headers:      amqp.Table{attemptHeader: int32(1)},
	})
	if err != nil {
		return fmt.Errorf("queue: publishing request %s: %w", req.ID, err)
	}
	return nil
}
