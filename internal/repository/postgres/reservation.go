package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bashostudio/basho-go/internal/domain"
)

type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a pending reservation. The caller must have reserved the
// units on the capacity ledger inside the same transaction.
func (r *ReservationRepo) Create(ctx context.Context, res *domain.Reservation) (uuid.UUID, error) {
	const op = "postgres.ReservationRepo.Create"

	db := r.handle()

	id := uuid.New()
	if _, err := db.Exec(ctx,
		`INSERT INTO reservations(
			id, capacity_unit_id, order_type, units, status,
			payment_order_id, user_id, full_name, email, phone
		 ) VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9)`,
		id, res.CapacityUnitID, res.OrderType, res.Units,
		res.PaymentOrderID, res.UserID, res.FullName, res.Email, res.Phone,
	); err != nil {
		return uuid.Nil, wrapDBErr(op, err)
	}

	return id, nil
}

// Get returns the reservation without locking.
func (r *ReservationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Get"

	db := r.handle()

	var res domain.Reservation
	err := db.QueryRow(ctx,
		`SELECT id, capacity_unit_id, order_type, units, status,
        	payment_order_id, user_id, full_name, email, phone, created_at
       	 FROM reservations WHERE id = $1`,
		id,
	).Scan(
		&res.ID, &res.CapacityUnitID, &res.OrderType, &res.Units, &res.Status,
		&res.PaymentOrderID, &res.UserID, &res.FullName, &res.Email, &res.Phone,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}

// GetForUpdate locks the reservation row and returns it. Settlement, cancel
// and the sweep all take this lock before inspecting status, so exactly one
// of them performs the terminal transition.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.GetForUpdate"

	db := r.handle()

	var res domain.Reservation
	err := db.QueryRow(ctx,
		`SELECT id, capacity_unit_id, order_type, units, status,
        	payment_order_id, user_id, full_name, email, phone, created_at
       	 FROM reservations WHERE id = $1
     	 FOR UPDATE`,
		id,
	).Scan(
		&res.ID, &res.CapacityUnitID, &res.OrderType, &res.Units, &res.Status,
		&res.PaymentOrderID, &res.UserID, &res.FullName, &res.Email, &res.Phone,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}

// SetStatus writes the reservation status. Callers hold the row lock and have
// already checked the transition is legal.
func (r *ReservationRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	const op = "postgres.ReservationRepo.SetStatus"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`UPDATE reservations SET status = $2 WHERE id = $1`,
		id, status,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListIDsByPaymentOrder returns the ids of all reservations opened under one
// payment order (product orders carry one per line item).
func (r *ReservationRepo) ListIDsByPaymentOrder(ctx context.Context, paymentOrderID uuid.UUID) ([]uuid.UUID, error) {
	const op = "postgres.ReservationRepo.ListIDsByPaymentOrder"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id FROM reservations
      	 WHERE payment_order_id = $1
      	 ORDER BY created_at`,
		paymentOrderID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SweepCandidates returns ids of pending reservations whose payment order is
// still PENDING and that were created before cutoff. No locks are taken here;
// the reaper re-checks status under the row lock one reservation at a time.
func (r *ReservationRepo) SweepCandidates(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	const op = "postgres.ReservationRepo.SweepCandidates"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT r.id
       	 FROM reservations r
       	 JOIN payment_orders po ON po.id = r.payment_order_id
      	 WHERE r.status = 'pending'
        	AND po.status = 'PENDING'
        	AND r.created_at < $1
      	 ORDER BY r.created_at
      	 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
