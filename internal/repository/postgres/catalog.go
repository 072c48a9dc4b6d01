package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bashostudio/basho-go/internal/domain"
)

// CatalogRepo is the read side of the catalog/scheduling subsystem: the
// experiences, workshops and products whose slots and stock the booking core
// reserves against, plus the admin inserts that set slots up.
type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *CatalogRepo) GetExperience(ctx context.Context, id int64) (*domain.Experience, error) {
	const op = "postgres.CatalogRepo.GetExperience"

	db := r.handle()

	var e domain.Experience
	err := db.QueryRow(ctx,
		`SELECT id, title, price_paise,
        	COALESCE(min_participants, 0), COALESCE(max_participants, 0), is_active
       	 FROM experiences WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &e.PricePaise, &e.MinParticipants, &e.MaxParticipants, &e.Active)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *CatalogRepo) GetExperienceSlot(ctx context.Context, id int64) (*domain.ExperienceSlot, error) {
	const op = "postgres.CatalogRepo.GetExperienceSlot"

	db := r.handle()

	var s domain.ExperienceSlot
	err := db.QueryRow(ctx,
		`SELECT id, experience_id, capacity_unit_id, slot_date, start_time, end_time
       	 FROM experience_slots WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.ExperienceID, &s.CapacityUnitID, &s.Date, &s.StartTime, &s.EndTime)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *CatalogRepo) ListExperienceSlots(ctx context.Context, experienceID int64) ([]domain.ExperienceSlot, error) {
	const op = "postgres.CatalogRepo.ListExperienceSlots"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, experience_id, capacity_unit_id, slot_date, start_time, end_time
       	 FROM experience_slots
      	 WHERE experience_id = $1
      	 ORDER BY slot_date, start_time`,
		experienceID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.ExperienceSlot
	for rows.Next() {
		var s domain.ExperienceSlot
		if err := rows.Scan(&s.ID, &s.ExperienceID, &s.CapacityUnitID, &s.Date, &s.StartTime, &s.EndTime); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *CatalogRepo) GetWorkshop(ctx context.Context, id int64) (*domain.Workshop, error) {
	const op = "postgres.CatalogRepo.GetWorkshop"

	db := r.handle()

	var w domain.Workshop
	err := db.QueryRow(ctx,
		`SELECT id, name, level, price_paise, price_per_person, is_active
       	 FROM workshops WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.Name, &w.Level, &w.PricePaise, &w.PricePerPerson, &w.Active)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &w, nil
}

func (r *CatalogRepo) GetWorkshopSlot(ctx context.Context, id int64) (*domain.WorkshopSlot, error) {
	const op = "postgres.CatalogRepo.GetWorkshopSlot"

	db := r.handle()

	var s domain.WorkshopSlot
	err := db.QueryRow(ctx,
		`SELECT id, workshop_id, capacity_unit_id, slot_date, start_time, end_time
       	 FROM workshop_slots WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.WorkshopID, &s.CapacityUnitID, &s.Date, &s.StartTime, &s.EndTime)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *CatalogRepo) ListWorkshopSlots(ctx context.Context, workshopID int64) ([]domain.WorkshopSlot, error) {
	const op = "postgres.CatalogRepo.ListWorkshopSlots"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, workshop_id, capacity_unit_id, slot_date, start_time, end_time
       	 FROM workshop_slots
      	 WHERE workshop_id = $1
      	 ORDER BY slot_date, start_time`,
		workshopID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.WorkshopSlot
	for rows.Next() {
		var s domain.WorkshopSlot
		if err := rows.Scan(&s.ID, &s.WorkshopID, &s.CapacityUnitID, &s.Date, &s.StartTime, &s.EndTime); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *CatalogRepo) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	const op = "postgres.CatalogRepo.GetProduct"

	db := r.handle()

	var p domain.Product
	err := db.QueryRow(ctx,
		`SELECT id, name, price_paise, weight_kg, stock_unit_id, is_active
       	 FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.PricePaise, &p.WeightKg, &p.StockUnitID, &p.Active)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

// CreateExperienceSlot inserts a slot row pointing at an already created
// capacity unit. Runs inside the admin transaction that created the unit.
func (r *CatalogRepo) CreateExperienceSlot(
	ctx context.Context,
	experienceID, capacityUnitID int64,
	date time.Time,
	startTime, endTime string,
) (int64, error) {
	const op = "postgres.CatalogRepo.CreateExperienceSlot"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO experience_slots(experience_id, capacity_unit_id, slot_date, start_time, end_time)
       	 VALUES ($1, $2, $3, $4, $5)
     	 RETURNING id`,
		experienceID, capacityUnitID, date, startTime, endTime,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CatalogRepo) CreateWorkshopSlot(
	ctx context.Context,
	workshopID, capacityUnitID int64,
	date time.Time,
	startTime, endTime string,
) (int64, error) {
	const op = "postgres.CatalogRepo.CreateWorkshopSlot"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO workshop_slots(workshop_id, capacity_unit_id, slot_date, start_time, end_time)
       	 VALUES ($1, $2, $3, $4, $5)
     	 RETURNING id`,
		workshopID, capacityUnitID, date, startTime, endTime,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}
