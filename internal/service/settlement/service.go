package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/gateway"
	"github.com/bashostudio/basho-go/internal/notify"
	"github.com/bashostudio/basho-go/internal/repository"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	redisrepo "github.com/bashostudio/basho-go/internal/repository/redis"
	"github.com/bashostudio/basho-go/internal/uow"
)

// Outcome reports what a settlement call actually did. Idempotent replays
// (AlreadyPaid, AlreadyResolved) are success-with-no-op, not errors.
type Outcome int

const (
	Settled Outcome = iota + 1
	AlreadyPaid
	MarkedFailed
	AlreadyResolved
)

// Service is the settlement coordinator: it verifies a gateway callback,
// transitions the payment order exactly once, and dispatches to the
// per-order-type confirmation routine.
type Service struct {
	store    *postgresrepo.Store
	cache    *redisrepo.Cache
	pubsub   *redisrepo.SlotsPubSub
	gateway  gateway.PaymentGateway
	notifier *notify.Notifier
	uow      *uow.UoW
	log      *slog.Logger

	confirmers map[domain.OrderType]confirmFunc
}

type confirmFunc func(ctx context.Context, po *domain.PaymentOrder) error

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SlotsPubSub,
	gw gateway.PaymentGateway,
	notifier *notify.Notifier,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		store:    store,
		cache:    cache,
		pubsub:   pubsub,
		gateway:  gw,
		notifier: notifier,
		uow:      uow.NewUoW(store),
		log:      log,
	}

	// One confirmation routine per order type; dispatch is static, no type
	// lookup at settlement time.
	s.confirmers = map[domain.OrderType]confirmFunc{
		domain.OrderTypeExperience: s.confirmSingle,
		domain.OrderTypeWorkshop:   s.confirmSingle,
		domain.OrderTypeCustom:     s.confirmSingle,
		domain.OrderTypeProduct:    s.confirmProduct,
	}

	return s
}

// Settle processes a success callback from the gateway.
//
// The order of operations matters:
//  1. verify the signature; an invalid one only appends a failed audit
//     event. An invalid signature is no proof the reservation should be
//     released, it may be a forged or replayed callback on someone else's
//     order.
//  2. lock the payment order; if it is already PAID, stop. This single check
//     is the defense against duplicate callback delivery.
//  3. mark PAID, append the verified event, commit.
//  4. run the order type's confirmation routine in its own transaction.
//     If it fails the order stays PAID, since the money is captured and
//     reversing it is not this core's call. The divergence goes to the
//     operator queue.
func (s *Service) Settle(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string, rawPayload []byte) (Outcome, error) {
	const op = "service.settlement.Settle"

	if !s.gateway.VerifySignature(gatewayOrderID, gatewayPaymentID, signature) {
		s.log.Warn("settlement callback failed signature verification",
			slog.String("gateway_order_id", gatewayOrderID),
			slog.String("gateway_payment_id", gatewayPaymentID),
		)
		po, err := s.store.Payments().GetByGatewayID(ctx, gatewayOrderID)
		switch {
		case err == nil:
			if err := s.store.Payments().AppendEvent(ctx, po.ID, "failed", rawPayload); err != nil {
				s.log.Error("failed to record rejected settlement callback",
					slog.String("payment_order_id", po.ID.String()),
					slog.Any("error", err),
				)
			}
		case !errors.Is(err, repository.ErrNotFound):
			s.log.Error("failed to load payment order for rejected callback",
				slog.String("gateway_order_id", gatewayOrderID),
				slog.Any("error", err),
			)
		}
		return 0, fmt.Errorf("%s: %w", op, ErrSignatureInvalid)
	}

	var po *domain.PaymentOrder
	outcome := Settled

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		var err error
		po, err = s.store.Payments().With(tx).GetByGatewayIDForUpdate(ctx, gatewayOrderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		switch po.Status {
		case domain.PaymentPaid:
			outcome = AlreadyPaid
			return nil
		case domain.PaymentFailed:
			// The order was failed (sweep or explicit cancel) before a valid
			// payment arrived. The capacity is gone but the money is real:
			// commit the audit trail and hand it to the operator queue.
			outcome = AlreadyResolved
			if err := s.store.Payments().With(tx).AppendEvent(ctx, po.ID, "late_settlement", rawPayload); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			after(func(ctx context.Context) {
				s.reconcile(ctx, po, "valid payment for an already failed order")
			})
			return nil
		}

		if err := s.store.Payments().With(tx).MarkPaid(ctx, po.ID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Payments().With(tx).AppendEvent(ctx, po.ID, "verified", rawPayload); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	switch outcome {
	case AlreadyPaid:
		return AlreadyPaid, nil
	case AlreadyResolved:
		return 0, fmt.Errorf("%s: %w", op, ErrReconciliationRequired)
	}

	confirm, ok := s.confirmers[po.OrderType]
	if !ok {
		s.reconcile(ctx, po, fmt.Sprintf("no confirmation routine for order type %s", po.OrderType))
		return 0, fmt.Errorf("%s: %w", op, ErrReconciliationRequired)
	}

	if err := confirm(ctx, po); err != nil {
		s.reconcile(ctx, po, err.Error())
		return 0, fmt.Errorf("%s: %w: %w", op, ErrReconciliationRequired, err)
	}

	return Settled, nil
}

// SettleFailure processes a gateway-reported failure: the payment order goes
// FAILED, the reserved capacity is released and the reservations fail.
// PAID is sticky: a late failure callback for a settled order is a no-op.
func (s *Service) SettleFailure(ctx context.Context, gatewayOrderID, reason string, rawPayload []byte) (Outcome, error) {
	const op = "service.settlement.SettleFailure"

	outcome := MarkedFailed

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		po, err := s.store.Payments().With(tx).GetByGatewayIDForUpdate(ctx, gatewayOrderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		switch po.Status {
		case domain.PaymentPaid:
			outcome = AlreadyPaid
			return nil
		case domain.PaymentFailed:
			outcome = AlreadyResolved
			return nil
		}

		if err := s.store.Payments().With(tx).MarkFailed(ctx, po.ID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Payments().With(tx).AppendEvent(ctx, po.ID, "failed", rawPayload); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.releaseReservations(ctx, tx, po, after); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if order, err := s.store.Orders().With(tx).GetByPaymentOrder(ctx, po.ID); err == nil {
			if err := s.store.Orders().With(tx).SetStatus(ctx, order.ID, "failed"); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return outcome, nil
}

// Events returns the audit trail of a payment order, oldest first.
func (s *Service) Events(ctx context.Context, paymentOrderID uuid.UUID) ([]domain.PaymentEvent, error) {
	const op = "service.settlement.Events"

	if _, err := s.store.Payments().Get(ctx, paymentOrderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	events, err := s.store.Payments().ListEvents(ctx, paymentOrderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

// releaseReservations gives back the capacity of every still-pending
// reservation under the payment order and fails it. Runs inside the
// settlement transaction, reservations locked one at a time.
func (s *Service) releaseReservations(ctx context.Context, tx postgresrepo.DB, po *domain.PaymentOrder, after func(uow.AfterCommit)) error {
	ids, err := s.store.Reservations().With(tx).ListIDsByPaymentOrder(ctx, po.ID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		r, err := s.store.Reservations().With(tx).GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if r.Status.Terminal() {
			continue
		}

		if err := s.store.Capacity().With(tx).Release(ctx, r.CapacityUnitID, r.Units); err != nil {
			return err
		}

		if err := s.store.Reservations().With(tx).SetStatus(ctx, r.ID, domain.ReservationFailed); err != nil {
			return err
		}

		rr := r
		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateSlot(ctx, rr.CapacityUnitID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishSlotChanged(ctx, rr.CapacityUnitID)
			}
			if s.notifier != nil {
				_ = s.notifier.ReservationFailed(ctx, rr.ID, rr.OrderType, rr.Email)
			}
		})
	}

	return nil
}

// confirmSingle finalizes the one reservation behind an experience, workshop
// or custom order. Capacity was consumed at reservation time; this only
// flips status, after a defensive re-check that the unit was not pushed over
// capacity by an out-of-band correction.
func (s *Service) confirmSingle(ctx context.Context, po *domain.PaymentOrder) error {
	const op = "service.settlement.confirmSingle"

	ids, err := s.store.Reservations().ListIDsByPaymentOrder(ctx, po.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if len(ids) == 0 {
		// Custom orders may have nothing to confirm.
		if po.OrderType == domain.OrderTypeCustom {
			return nil
		}
		return fmt.Errorf("%s: no reservation linked to order %s", op, po.ID)
	}

	return s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		for _, id := range ids {
			if err := s.confirmReservation(ctx, tx, id, after); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		return nil
	})
}

// confirmProduct finalizes every line-item reservation under the payment
// order, marks the product order paid and clears the originating cart.
func (s *Service) confirmProduct(ctx context.Context, po *domain.PaymentOrder) error {
	const op = "service.settlement.confirmProduct"

	return s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		ids, err := s.store.Reservations().With(tx).ListIDsByPaymentOrder(ctx, po.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		for _, id := range ids {
			if err := s.confirmReservation(ctx, tx, id, after); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		order, err := s.store.Orders().With(tx).GetByPaymentOrder(ctx, po.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Orders().With(tx).SetStatus(ctx, order.ID, "paid"); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if order.CartID != nil {
			if err := s.store.Carts().With(tx).Clear(ctx, *order.CartID); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		return nil
	})
}

func (s *Service) confirmReservation(ctx context.Context, tx postgresrepo.DB, id uuid.UUID, after func(uow.AfterCommit)) error {
	r, err := s.store.Reservations().With(tx).GetForUpdate(ctx, id)
	if err != nil {
		return err
	}

	// Duplicate settlement dispatch.
	if r.Status == domain.ReservationConfirmed {
		return nil
	}

	if r.Status != domain.ReservationPending {
		return fmt.Errorf("reservation %s is %s, cannot confirm", r.ID, r.Status)
	}

	unit, err := s.store.Capacity().With(tx).GetForUpdate(ctx, r.CapacityUnitID)
	if err != nil {
		return err
	}

	if unit.Overbooked() {
		return fmt.Errorf("capacity unit %d overbooked (%d/%d)", unit.ID, unit.Consumed, unit.Total)
	}

	if err := s.store.Reservations().With(tx).SetStatus(ctx, r.ID, domain.ReservationConfirmed); err != nil {
		return err
	}

	rr := r
	after(func(ctx context.Context) {
		if s.cache != nil {
			_ = s.cache.InvalidateSlot(ctx, rr.CapacityUnitID)
		}
		if s.pubsub != nil {
			_ = s.pubsub.PublishSlotChanged(ctx, rr.CapacityUnitID)
		}
		if s.notifier != nil {
			_ = s.notifier.ReservationConfirmed(ctx, rr.ID, rr.OrderType, rr.Email)
		}
	})

	return nil
}

// reconcile records a PAID-but-unconfirmed divergence. The payment event is
// the durable trace; the broker message only wakes the operator queue up, so
// its failure is logged, not propagated.
func (s *Service) reconcile(ctx context.Context, po *domain.PaymentOrder, reason string) {
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	if err := s.store.Payments().AppendEvent(ctx, po.ID, "reconcile_required", payload); err != nil {
		s.log.Error("failed to record reconciliation event",
			slog.String("payment_order_id", po.ID.String()),
			slog.Any("error", err),
		)
	}

	s.log.Warn("payment order requires reconciliation",
		slog.String("payment_order_id", po.ID.String()),
		slog.String("order_type", string(po.OrderType)),
		slog.String("reason", reason),
	)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.ReconciliationRequired(ctx, po.ID, po.OrderType, reason); err != nil {
		s.log.Error("failed to publish reconciliation message",
			slog.String("payment_order_id", po.ID.String()),
			slog.Any("error", err),
		)
	}
}
