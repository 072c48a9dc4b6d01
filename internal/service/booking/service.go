package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/gateway"
	"github.com/bashostudio/basho-go/internal/repository"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	redisrepo "github.com/bashostudio/basho-go/internal/repository/redis"
	"github.com/bashostudio/basho-go/internal/uow"
)

// Service is the reservation manager for experience bookings and workshop
// registrations: it reserves slot capacity and opens the payment order in one
// transaction, and owns the pending -> cancelled path.
type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	pubsub  *redisrepo.SlotsPubSub
	limiter *redisrepo.SlidingWindowLimiter
	gateway gateway.PaymentGateway
	uow     *uow.UoW
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SlotsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	gw gateway.PaymentGateway,
) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		gateway: gw,
		uow:     uow.NewUoW(store),
	}
}

// ExperienceBookingInput carries the acting principal explicitly; UserID is
// nil for guest bookings.
type ExperienceBookingInput struct {
	ExperienceID int64
	SlotID       int64
	People       int
	FullName     string
	Email        string
	Phone        string
	UserID       *int64
}

type WorkshopRegistrationInput struct {
	WorkshopID   int64
	SlotID       int64
	Participants int
	FullName     string
	Email        string
	Phone        string
	UserID       *int64
}

// Result is what the API layer hands back to the client to start the
// gateway checkout.
type Result struct {
	ReservationID  uuid.UUID
	PaymentOrderID uuid.UUID
	GatewayOrderID string
	AmountPaise    int64
}

type CancelOutcome int

const (
	Cancelled CancelOutcome = iota + 1
	// AlreadyTerminal is not an error: a user cancel racing a concurrent
	// settlement both ending terminal is expected.
	AlreadyTerminal
)

// CreateExperienceBooking reserves slot capacity and opens a payment order.
//
// Returns:
//   - error: *ValidationError on bad input.
//   - error: ErrExperienceNotFound / ErrSlotNotFound.
//   - error: *CapacityExceededError (matches ErrCapacityExceeded) when the
//     slot cannot take the requested party; no partial state is left.
//   - error: ErrGateway when the gateway order cannot be created; the
//     reservation is released before returning.
func (s *Service) CreateExperienceBooking(ctx context.Context, in ExperienceBookingInput, rlKey string) (*Result, error) {
	const op = "service.booking.CreateExperienceBooking"

	if in.People <= 0 {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Msg: "number of people must be positive"})
	}

	exp, err := s.store.Catalog().GetExperience(ctx, in.ExperienceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrExperienceNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !exp.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrExperienceNotFound)
	}

	if exp.MinParticipants > 0 && in.People < exp.MinParticipants {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{
			Msg: fmt.Sprintf("this experience needs at least %d participants", exp.MinParticipants),
		})
	}

	if exp.MaxParticipants > 0 && in.People > exp.MaxParticipants {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{
			Msg: fmt.Sprintf("this experience takes at most %d participants", exp.MaxParticipants),
		})
	}

	slot, err := s.store.Catalog().GetExperienceSlot(ctx, in.SlotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSlotNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if slot.ExperienceID != exp.ID {
		return nil, fmt.Errorf("%s: %w", op, ErrSlotNotFound)
	}

	if err := s.allow(ctx, rlKey); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &domain.Reservation{
		CapacityUnitID: slot.CapacityUnitID,
		OrderType:      domain.OrderTypeExperience,
		Units:          in.People,
		UserID:         in.UserID,
		FullName:       in.FullName,
		Email:          in.Email,
		Phone:          in.Phone,
	}

	return s.reserveAndOpen(ctx, op, res, exp.PricePaise)
}

// CreateWorkshopRegistration is the workshop flavor of the same flow. The
// amount is per person when the workshop prices that way.
func (s *Service) CreateWorkshopRegistration(ctx context.Context, in WorkshopRegistrationInput, rlKey string) (*Result, error) {
	const op = "service.booking.CreateWorkshopRegistration"

	if in.Participants <= 0 {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Msg: "number of participants must be positive"})
	}

	w, err := s.store.Catalog().GetWorkshop(ctx, in.WorkshopID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrWorkshopNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !w.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrWorkshopNotFound)
	}

	slot, err := s.store.Catalog().GetWorkshopSlot(ctx, in.SlotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSlotNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if slot.WorkshopID != w.ID {
		return nil, fmt.Errorf("%s: %w", op, ErrSlotNotFound)
	}

	if err := s.allow(ctx, rlKey); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	amount := WorkshopAmount(w, in.Participants)

	res := &domain.Reservation{
		CapacityUnitID: slot.CapacityUnitID,
		OrderType:      domain.OrderTypeWorkshop,
		Units:          in.Participants,
		UserID:         in.UserID,
		FullName:       in.FullName,
		Email:          in.Email,
		Phone:          in.Phone,
	}

	return s.reserveAndOpen(ctx, op, res, amount)
}

// WorkshopAmount computes the charge for a registration.
func WorkshopAmount(w *domain.Workshop, participants int) int64 {
	if w.PricePerPerson {
		return w.PricePaise * int64(participants)
	}
	return w.PricePaise
}

// reserveAndOpen runs the atomic compound operation: reserve capacity,
// persist the pending reservation and open a PENDING payment order in one
// transaction, then register the order with the gateway. A gateway failure
// rolls the reservation back through the regular release path so no capacity
// leaks.
func (s *Service) reserveAndOpen(ctx context.Context, op string, res *domain.Reservation, amountPaise int64) (*Result, error) {
	var out Result
	out.AmountPaise = amountPaise

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Capacity().With(tx).Reserve(ctx, res.CapacityUnitID, res.Units); err != nil {
			if errors.Is(err, repository.ErrCapacityExceeded) || errors.Is(err, repository.ErrUnitInactive) {
				return err
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		poID, err := s.store.Payments().With(tx).Open(ctx, res.OrderType, nil, amountPaise)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		res.PaymentOrderID = &poID

		rid, err := s.store.Reservations().With(tx).Create(ctx, res)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		out.ReservationID = rid
		out.PaymentOrderID = poID

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateSlot(ctx, res.CapacityUnitID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishSlotChanged(ctx, res.CapacityUnitID)
			}
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) || errors.Is(err, repository.ErrUnitInactive) {
			return nil, fmt.Errorf("%s: %w", op, s.capacityErr(ctx, res.CapacityUnitID))
		}
		return nil, err
	}

	gwOrderID, err := s.gateway.CreateOrder(ctx, amountPaise, "INR", out.PaymentOrderID.String())
	if err != nil {
		// The gateway never saw this order, so releasing is safe.
		_, _ = s.Cancel(ctx, out.ReservationID)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrGateway, err)
	}

	if err := s.store.Payments().AttachGatewayID(ctx, out.PaymentOrderID, gwOrderID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out.GatewayOrderID = gwOrderID

	return &out, nil
}

// Cancel releases a pending reservation and fails its payment order.
// Calling it on an already-terminal reservation reports AlreadyTerminal
// without touching anything.
func (s *Service) Cancel(ctx context.Context, reservationID uuid.UUID) (CancelOutcome, error) {
	const op = "service.booking.Cancel"

	r, err := s.store.Reservations().Get(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s: %w", op, ErrReservationNotFound)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if r.Status.Terminal() {
		return AlreadyTerminal, nil
	}

	outcome := Cancelled

	err = s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		// Payment order first, then reservation: settlement takes the same
		// locks in the same order.
		if r.PaymentOrderID != nil {
			po, err := s.store.Payments().With(tx).GetForUpdate(ctx, *r.PaymentOrderID)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			if po.Status == domain.PaymentPaid {
				// Settlement won the race; the reservation is being confirmed.
				outcome = AlreadyTerminal
				return nil
			}

			if po.Status == domain.PaymentPending {
				if err := s.store.Payments().With(tx).MarkFailed(ctx, po.ID); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				if err := s.store.Payments().With(tx).AppendEvent(ctx, po.ID, "cancelled", nil); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
			}
		}

		locked, err := s.store.Reservations().With(tx).GetForUpdate(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if locked.Status.Terminal() {
			outcome = AlreadyTerminal
			return nil
		}

		if err := s.store.Capacity().With(tx).Release(ctx, locked.CapacityUnitID, locked.Units); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Reservations().With(tx).SetStatus(ctx, reservationID, domain.ReservationCancelled); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateSlot(ctx, locked.CapacityUnitID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishSlotChanged(ctx, locked.CapacityUnitID)
			}
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	return outcome, nil
}

func (s *Service) allow(ctx context.Context, rlKey string) error {
	if s.limiter == nil || rlKey == "" {
		return nil
	}

	ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w, retry in %s", ErrRateLimited, retry)
	}

	return nil
}

func (s *Service) capacityErr(ctx context.Context, unitID int64) error {
	avail := 0
	if a, err := s.store.Capacity().Availability(ctx, unitID); err == nil {
		avail = a.Available
	}
	return &CapacityExceededError{Available: avail}
}
