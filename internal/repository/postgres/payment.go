package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/repository"
)

// PaymentRepo owns payment orders and their append-only event log. Status
// transitions go through MarkPaid/MarkFailed only, which check the current
// status under the row lock instead of overwriting it.
type PaymentRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *PaymentRepo) With(db DB) *PaymentRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PaymentRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Open creates a PENDING payment order. reservationID is nil for product
// orders, whose line reservations point back via payment_order_id.
func (r *PaymentRepo) Open(
	ctx context.Context,
	orderType domain.OrderType,
	reservationID *uuid.UUID,
	amountPaise int64,
) (uuid.UUID, error) {
	const op = "postgres.PaymentRepo.Open"

	db := r.handle()

	id := uuid.New()
	if _, err := db.Exec(ctx,
		`INSERT INTO payment_orders(id, order_type, reservation_id, amount_paise, status)
       	 VALUES ($1, $2, $3, $4, 'PENDING')`,
		id, orderType, reservationID, amountPaise,
	); err != nil {
		return uuid.Nil, wrapDBErr(op, err)
	}

	return id, nil
}

// SetAmount overwrites the order amount. Product checkouts open the order
// before the line prices are snapshotted and fix the amount up in the same
// transaction; it must never run on an order past PENDING.
func (r *PaymentRepo) SetAmount(ctx context.Context, id uuid.UUID, amountPaise int64) error {
	const op = "postgres.PaymentRepo.SetAmount"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE payment_orders SET amount_paise = $2 WHERE id = $1 AND status = 'PENDING'`,
		id, amountPaise,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrAlreadyTerminal)
	}

	return nil
}

// AttachGatewayID stores the externally assigned gateway order id. It may
// succeed exactly once per payment order.
//
// Returns:
//   - error: repository.ErrAlreadyAttached if an id is already set.
//   - error: repository.ErrConflict if the gateway id is already used by
//     another order (unique index).
func (r *PaymentRepo) AttachGatewayID(ctx context.Context, id uuid.UUID, gatewayOrderID string) error {
	const op = "postgres.PaymentRepo.AttachGatewayID"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE payment_orders
        	SET gateway_order_id = $2
      	 WHERE id = $1 AND gateway_order_id IS NULL`,
		id, gatewayOrderID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrAlreadyAttached)
	}

	return nil
}

// GetByGatewayIDForUpdate locks the payment order carrying the given gateway
// order id. This is the lock every settlement path takes first.
func (r *PaymentRepo) GetByGatewayIDForUpdate(ctx context.Context, gatewayOrderID string) (*domain.PaymentOrder, error) {
	const op = "postgres.PaymentRepo.GetByGatewayIDForUpdate"

	return r.getWhere(ctx, op,
		`SELECT id, order_type, reservation_id, amount_paise, status,
        	COALESCE(gateway_order_id, ''), created_at
       	 FROM payment_orders WHERE gateway_order_id = $1
     	 FOR UPDATE`,
		gatewayOrderID,
	)
}

// GetByGatewayID returns a payment order without locking.
func (r *PaymentRepo) GetByGatewayID(ctx context.Context, gatewayOrderID string) (*domain.PaymentOrder, error) {
	const op = "postgres.PaymentRepo.GetByGatewayID"

	return r.getWhere(ctx, op,
		`SELECT id, order_type, reservation_id, amount_paise, status,
        	COALESCE(gateway_order_id, ''), created_at
       	 FROM payment_orders WHERE gateway_order_id = $1`,
		gatewayOrderID,
	)
}

// GetForUpdate locks the payment order row by primary key. Used by paths
// that reach the order from a reservation; the lock order is always payment
// order first, then reservation.
func (r *PaymentRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error) {
	const op = "postgres.PaymentRepo.GetForUpdate"

	return r.getWhere(ctx, op,
		`SELECT id, order_type, reservation_id, amount_paise, status,
        	COALESCE(gateway_order_id, ''), created_at
       	 FROM payment_orders WHERE id = $1
     	 FOR UPDATE`,
		id,
	)
}

// Get returns a payment order without locking.
func (r *PaymentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error) {
	const op = "postgres.PaymentRepo.Get"

	return r.getWhere(ctx, op,
		`SELECT id, order_type, reservation_id, amount_paise, status,
        	COALESCE(gateway_order_id, ''), created_at
       	 FROM payment_orders WHERE id = $1`,
		id,
	)
}

func (r *PaymentRepo) getWhere(ctx context.Context, op, sql string, arg any) (*domain.PaymentOrder, error) {
	db := r.handle()

	var po domain.PaymentOrder
	err := db.QueryRow(ctx, sql, arg).Scan(
		&po.ID, &po.OrderType, &po.ReservationID, &po.AmountPaise,
		&po.Status, &po.GatewayOrderID, &po.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &po, nil
}

// MarkPaid transitions the order to PAID. The caller holds the row lock via
// GetByGatewayIDForUpdate and has already short-circuited on PAID; the status
// guard in the WHERE clause is the last line of defense.
//
// Returns:
//   - error: repository.ErrAlreadyPaid if the order is no longer PENDING.
func (r *PaymentRepo) MarkPaid(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.PaymentRepo.MarkPaid"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE payment_orders SET status = 'PAID'
      	 WHERE id = $1 AND status = 'PENDING'`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrAlreadyPaid)
	}

	return nil
}

// MarkFailed transitions the order to FAILED. PAID is sticky: a late failure
// callback never downgrades a settled order.
//
// Returns:
//   - error: repository.ErrAlreadyPaid if the order is already PAID.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.PaymentRepo.MarkFailed"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE payment_orders SET status = 'FAILED'
      	 WHERE id = $1 AND status <> 'PAID'`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrAlreadyPaid)
	}

	return nil
}

// AppendEvent writes one audit row for a processed gateway callback. Rows are
// write-once; nothing updates or deletes them.
func (r *PaymentRepo) AppendEvent(ctx context.Context, paymentOrderID uuid.UUID, event string, payload []byte) error {
	const op = "postgres.PaymentRepo.AppendEvent"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO payment_events(payment_order_id, event, payload)
       	 VALUES ($1, $2, $3)`,
		paymentOrderID, event, payload,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListEvents returns the audit trail for a payment order, oldest first.
func (r *PaymentRepo) ListEvents(ctx context.Context, paymentOrderID uuid.UUID) ([]domain.PaymentEvent, error) {
	const op = "postgres.PaymentRepo.ListEvents"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, payment_order_id, event, payload, created_at
       	 FROM payment_events
      	 WHERE payment_order_id = $1
      	 ORDER BY id`,
		paymentOrderID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.PaymentEvent
	for rows.Next() {
		var ev domain.PaymentEvent
		if err := rows.Scan(&ev.ID, &ev.PaymentOrderID, &ev.Event, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
