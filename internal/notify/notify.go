// Package notify publishes reservation lifecycle events to RabbitMQ. The
// notification service consumes them to send customer emails; this core
// never sends email itself.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bashostudio/basho-go/internal/domain"
)

const (
	QueueReservationEvents = "reservation.events"
	QueueReconcile         = "settlement.reconcile"
)

type Config struct {
	URL string
}

type Notifier struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// ReservationEvent is the payload for confirmed/failed reservations.
type ReservationEvent struct {
	Type          string           `json:"type"`
	ReservationID uuid.UUID        `json:"reservation_id"`
	OrderType     domain.OrderType `json:"order_type"`
	Email         string           `json:"email,omitempty"`
	TsUnix        int64            `json:"ts_unix"`
}

// ReconcileEvent flags a payment order that settled PAID while the matching
// reservation confirmation failed. An operator resolves these by hand.
type ReconcileEvent struct {
	PaymentOrderID uuid.UUID        `json:"payment_order_id"`
	OrderType      domain.OrderType `json:"order_type"`
	Reason         string           `json:"reason"`
	TsUnix         int64            `json:"ts_unix"`
}

func New(cfg Config) (*Notifier, error) {
	const op = "notify.New"

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range []string{QueueReservationEvents, QueueReconcile} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("%s: declare %s: %w", op, q, err)
		}
	}

	return &Notifier{conn: conn, ch: ch}, nil
}

func (n *Notifier) Close() error {
	if err := n.ch.Close(); err != nil {
		return err
	}
	return n.conn.Close()
}

func (n *Notifier) ReservationConfirmed(ctx context.Context, reservationID uuid.UUID, orderType domain.OrderType, email string) error {
	return n.publish(ctx, QueueReservationEvents, ReservationEvent{
		Type:          "reservation_confirmed",
		ReservationID: reservationID,
		OrderType:     orderType,
		Email:         email,
		TsUnix:        time.Now().Unix(),
	})
}

func (n *Notifier) ReservationFailed(ctx context.Context, reservationID uuid.UUID, orderType domain.OrderType, email string) error {
	return n.publish(ctx, QueueReservationEvents, ReservationEvent{
		Type:          "reservation_failed",
		ReservationID: reservationID,
		OrderType:     orderType,
		Email:         email,
		TsUnix:        time.Now().Unix(),
	})
}

func (n *Notifier) ReconciliationRequired(ctx context.Context, paymentOrderID uuid.UUID, orderType domain.OrderType, reason string) error {
	return n.publish(ctx, QueueReconcile, ReconcileEvent{
		PaymentOrderID: paymentOrderID,
		OrderType:      orderType,
		Reason:         reason,
		TsUnix:         time.Now().Unix(),
	})
}

func (n *Notifier) publish(ctx context.Context, queue string, payload any) error {
	const op = "notify.Notifier.publish"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := n.ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
