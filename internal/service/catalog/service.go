package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/repository"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	redisrepo "github.com/bashostudio/basho-go/internal/repository/redis"
	"github.com/bashostudio/basho-go/internal/uow"
)

const (
	slotsTTL        = 5 * time.Minute
	availabilityTTL = 10 * time.Second
)

// Service is the read side of the catalog plus the admin slot management.
// Listings are cached; availability is cached briefly and invalidated by
// every capacity writer.
type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.SlotsPubSub
	uow    *uow.UoW
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, pubsub *redisrepo.SlotsPubSub) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
	}
}

// SlotView is a slot with its live availability, as served to clients.
type SlotView struct {
	ID             int64     `json:"id"`
	CapacityUnitID int64     `json:"capacity_unit_id"`
	Date           time.Time `json:"date"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Total          int       `json:"total"`
	Available      int       `json:"available"`
}

// ListExperienceSlots returns the bookable slots of an experience with
// availability attached. The slot list itself is cached; availability is
// read fresh so a cached listing never overstates free seats for long.
func (s *Service) ListExperienceSlots(ctx context.Context, experienceID int64) ([]SlotView, error) {
	const op = "service.catalog.ListExperienceSlots"

	if _, err := s.getExperience(ctx, experienceID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	slots, err := s.cachedExperienceSlots(ctx, experienceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	views := make([]SlotView, 0, len(slots))
	for _, sl := range slots {
		v := SlotView{
			ID:             sl.ID,
			CapacityUnitID: sl.CapacityUnitID,
			Date:           sl.Date,
			StartTime:      sl.StartTime,
			EndTime:        sl.EndTime,
		}
		if a, err := s.Availability(ctx, sl.CapacityUnitID); err == nil {
			v.Total = a.Total
			v.Available = a.Available
		}
		views = append(views, v)
	}

	return views, nil
}

// ListWorkshopSlots is the workshop flavor of ListExperienceSlots.
func (s *Service) ListWorkshopSlots(ctx context.Context, workshopID int64) ([]SlotView, error) {
	const op = "service.catalog.ListWorkshopSlots"

	if _, err := s.getWorkshop(ctx, workshopID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	slots, err := s.cachedWorkshopSlots(ctx, workshopID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	views := make([]SlotView, 0, len(slots))
	for _, sl := range slots {
		v := SlotView{
			ID:             sl.ID,
			CapacityUnitID: sl.CapacityUnitID,
			Date:           sl.Date,
			StartTime:      sl.StartTime,
			EndTime:        sl.EndTime,
		}
		if a, err := s.Availability(ctx, sl.CapacityUnitID); err == nil {
			v.Total = a.Total
			v.Available = a.Available
		}
		views = append(views, v)
	}

	return views, nil
}

// Availability returns the remaining capacity of a unit. Served from a
// short-lived cache entry that every capacity writer invalidates on commit.
func (s *Service) Availability(ctx context.Context, unitID int64) (*domain.SlotAvailability, error) {
	const op = "service.catalog.Availability"

	load := func(ctx context.Context) (*domain.SlotAvailability, error) {
		a, err := s.store.Capacity().Availability(ctx, unitID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrSlotNotFound
			}
			return nil, err
		}
		return a, nil
	}

	if s.cache == nil {
		a, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return a, nil
	}

	a, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeySlotAvailability(unitID), availabilityTTL, load)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// GetExperience returns an active experience.
func (s *Service) GetExperience(ctx context.Context, id int64) (*domain.Experience, error) {
	const op = "service.catalog.GetExperience"

	exp, err := s.getExperience(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return exp, nil
}

// GetWorkshop returns an active workshop.
func (s *Service) GetWorkshop(ctx context.Context, id int64) (*domain.Workshop, error) {
	const op = "service.catalog.GetWorkshop"

	w, err := s.getWorkshop(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return w, nil
}

// GetProduct returns an active product with its live stock.
func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, int, error) {
	const op = "service.catalog.GetProduct"

	p, err := s.store.Catalog().GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, fmt.Errorf("%s: %w", op, ErrProductNotFound)
		}
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	stock := 0
	if a, err := s.Availability(ctx, p.StockUnitID); err == nil {
		stock = a.Available
	}

	return p, stock, nil
}

// SlotInput defines a new bookable slot.
type SlotInput struct {
	Date      time.Time
	StartTime string
	EndTime   string
	Capacity  int
}

// CreateExperienceSlot creates the capacity unit and the slot row in one
// transaction and invalidates the cached listing.
func (s *Service) CreateExperienceSlot(ctx context.Context, experienceID int64, in SlotInput) (int64, error) {
	const op = "service.catalog.CreateExperienceSlot"

	if in.Capacity <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidSlot)
	}

	if _, err := s.getExperience(ctx, experienceID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var slotID int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		unitID, err := s.store.Capacity().With(tx).Create(ctx, domain.CapacityExperienceSlot, in.Capacity)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		slotID, err = s.store.Catalog().With(tx).CreateExperienceSlot(ctx, experienceID, unitID, in.Date, in.StartTime, in.EndTime)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.Del(ctx, redisrepo.KeyExperienceSlots(experienceID))
			}
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	return slotID, nil
}

// CreateWorkshopSlot is the workshop flavor of CreateExperienceSlot.
func (s *Service) CreateWorkshopSlot(ctx context.Context, workshopID int64, in SlotInput) (int64, error) {
	const op = "service.catalog.CreateWorkshopSlot"

	if in.Capacity <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidSlot)
	}

	if _, err := s.getWorkshop(ctx, workshopID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var slotID int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		unitID, err := s.store.Capacity().With(tx).Create(ctx, domain.CapacityWorkshopSlot, in.Capacity)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		slotID, err = s.store.Catalog().With(tx).CreateWorkshopSlot(ctx, workshopID, unitID, in.Date, in.StartTime, in.EndTime)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.Del(ctx, redisrepo.KeyWorkshopSlots(workshopID))
			}
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	return slotID, nil
}

func (s *Service) getExperience(ctx context.Context, id int64) (*domain.Experience, error) {
	exp, err := s.store.Catalog().GetExperience(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExperienceNotFound
		}
		return nil, err
	}
	if !exp.Active {
		return nil, ErrExperienceNotFound
	}
	return exp, nil
}

func (s *Service) getWorkshop(ctx context.Context, id int64) (*domain.Workshop, error) {
	w, err := s.store.Catalog().GetWorkshop(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWorkshopNotFound
		}
		return nil, err
	}
	if !w.Active {
		return nil, ErrWorkshopNotFound
	}
	return w, nil
}

func (s *Service) cachedExperienceSlots(ctx context.Context, experienceID int64) ([]domain.ExperienceSlot, error) {
	load := func(ctx context.Context) ([]domain.ExperienceSlot, error) {
		return s.store.Catalog().ListExperienceSlots(ctx, experienceID)
	}

	if s.cache == nil {
		return load(ctx)
	}

	return redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyExperienceSlots(experienceID), slotsTTL, load)
}

func (s *Service) cachedWorkshopSlots(ctx context.Context, workshopID int64) ([]domain.WorkshopSlot, error) {
	load := func(ctx context.Context) ([]domain.WorkshopSlot, error) {
		return s.store.Catalog().ListWorkshopSlots(ctx, workshopID)
	}

	if s.cache == nil {
		return load(ctx)
	}

	return redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyWorkshopSlots(workshopID), slotsTTL, load)
}
