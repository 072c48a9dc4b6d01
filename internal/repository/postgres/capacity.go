package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/repository"
)

// CapacityRepo is the capacity ledger. Every mutation of a unit's consumed
// counter happens under a FOR UPDATE lock on that single row, so two
// concurrent reserves against the same unit serialize and neither can
// observe consumed above total_capacity.
type CapacityRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CapacityRepo) With(db DB) *CapacityRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CapacityRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetForUpdate locks the unit row and returns its current state. Must be
// called inside a transaction.
func (r *CapacityRepo) GetForUpdate(ctx context.Context, unitID int64) (*domain.CapacityUnit, error) {
	const op = "postgres.CapacityRepo.GetForUpdate"

	db := r.handle()

	var u domain.CapacityUnit
	err := db.QueryRow(ctx,
		`SELECT id, kind, total_capacity, consumed, active
       	 FROM capacity_units WHERE id = $1
     	 FOR UPDATE`,
		unitID,
	).Scan(&u.ID, &u.Kind, &u.Total, &u.Consumed, &u.Active)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

// Reserve adds units to the unit's consumed counter. It locks the row first,
// so the check and the increment are one atomic step.
//
// Returns:
//   - error: repository.ErrNotFound if the unit does not exist.
//   - error: repository.ErrUnitInactive if the unit is not bookable.
//   - error: repository.ErrCapacityExceeded if the reserve would oversell.
func (r *CapacityRepo) Reserve(ctx context.Context, unitID int64, units int) error {
	const op = "postgres.CapacityRepo.Reserve"

	db := r.handle()

	u, err := r.GetForUpdate(ctx, unitID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !u.Active {
		return fmt.Errorf("%s: %w", op, repository.ErrUnitInactive)
	}

	if !u.CanConsume(units) {
		return fmt.Errorf("%s: %w", op, repository.ErrCapacityExceeded)
	}

	if _, err := db.Exec(ctx,
		`UPDATE capacity_units SET consumed = consumed + $2 WHERE id = $1`,
		unitID, units,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Release gives units back to the unit, floored at zero. Idempotency is the
// caller's responsibility: it must not run twice for the same reservation.
func (r *CapacityRepo) Release(ctx context.Context, unitID int64, units int) error {
	const op = "postgres.CapacityRepo.Release"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`UPDATE capacity_units
        	SET consumed = GREATEST(consumed - $2, 0)
      	 WHERE id = $1`,
		unitID, units,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Availability reads the unit's counters without locking.
func (r *CapacityRepo) Availability(ctx context.Context, unitID int64) (*domain.SlotAvailability, error) {
	const op = "postgres.CapacityRepo.Availability"

	db := r.handle()

	var u domain.CapacityUnit
	err := db.QueryRow(ctx,
		`SELECT id, total_capacity, consumed
       	 FROM capacity_units WHERE id = $1`,
		unitID,
	).Scan(&u.ID, &u.Total, &u.Consumed)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &domain.SlotAvailability{
		CapacityUnitID: u.ID,
		Total:          u.Total,
		Consumed:       u.Consumed,
		Available:      u.Available(),
	}, nil
}

// Create inserts a new capacity unit and returns its id. Used by the
// scheduling/catalog side when a slot or product is set up.
func (r *CapacityRepo) Create(ctx context.Context, kind domain.CapacityKind, total int) (int64, error) {
	const op = "postgres.CapacityRepo.Create"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO capacity_units(kind, total_capacity, consumed, active)
       	 VALUES ($1, $2, 0, TRUE)
     	 RETURNING id`,
		kind, total,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}
