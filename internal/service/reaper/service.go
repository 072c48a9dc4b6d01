package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/notify"
	"github.com/bashostudio/basho-go/internal/repository"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	redisrepo "github.com/bashostudio/basho-go/internal/repository/redis"
	"github.com/bashostudio/basho-go/internal/uow"
)

const sweepBatch = 200

// Service reclaims capacity from reservations whose payment never arrived.
// It is the only writer that acts without a user or gateway trigger, so it
// takes the same locks in the same order as settlement and defers to any
// payment that lands mid-sweep.
type Service struct {
	store    *postgresrepo.Store
	cache    *redisrepo.Cache
	pubsub   *redisrepo.SlotsPubSub
	notifier *notify.Notifier
	uow      *uow.UoW
	log      *slog.Logger
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SlotsPubSub,
	notifier *notify.Notifier,
	log *slog.Logger,
) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		pubsub:   pubsub,
		notifier: notifier,
		uow:      uow.NewUoW(store),
		log:      log,
	}
}

// Sweep releases every pending reservation older than maxAge whose payment
// order is still PENDING, and reports how many it released. Candidates are
// selected without locks and re-checked one at a time under lock, so a
// payment settling mid-sweep always wins.
func (s *Service) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	const op = "service.reaper.Sweep"

	cutoff := time.Now().Add(-maxAge)

	ids, err := s.store.Reservations().SweepCandidates(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	released := 0
	for _, id := range ids {
		ok, err := s.reap(ctx, id)
		if err != nil {
			// One stuck reservation must not stall the rest of the batch.
			s.log.Error("failed to reap reservation",
				slog.String("reservation_id", id.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			released++
		}
	}

	return released, nil
}

// reap expires a single reservation in its own transaction. Reports false
// when the reservation turned out to be settled or otherwise terminal by the
// time the locks were held.
func (s *Service) reap(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "service.reaper.reap"

	reaped := false

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		r, err := s.store.Reservations().With(tx).Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		// Payment order first, then reservation: same lock order as
		// settlement and cancel.
		if r.PaymentOrderID != nil {
			po, err := s.store.Payments().With(tx).GetForUpdate(ctx, *r.PaymentOrderID)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			if po.Status == domain.PaymentPaid {
				// A payment landed between candidate selection and this
				// lock. The settlement path owns it now.
				return nil
			}

			if po.Status == domain.PaymentPending {
				if err := s.store.Payments().With(tx).MarkFailed(ctx, po.ID); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				if err := s.store.Payments().With(tx).AppendEvent(ctx, po.ID, "expired", nil); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
			}
		}

		locked, err := s.store.Reservations().With(tx).GetForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if locked.Status != domain.ReservationPending {
			return nil
		}

		if err := s.store.Capacity().With(tx).Release(ctx, locked.CapacityUnitID, locked.Units); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Reservations().With(tx).SetStatus(ctx, id, domain.ReservationFailed); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		reaped = true

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateSlot(ctx, locked.CapacityUnitID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishSlotChanged(ctx, locked.CapacityUnitID)
			}
			if s.notifier != nil {
				_ = s.notifier.ReservationFailed(ctx, locked.ID, locked.OrderType, locked.Email)
			}
		})

		return nil
	})
	if err != nil {
		return false, err
	}

	return reaped, nil
}

// Run sweeps on a fixed interval until the context is cancelled. Meant to be
// started in the application's errgroup next to the HTTP server.
func (s *Service) Run(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.Sweep(ctx, maxAge)
			if err != nil {
				s.log.Error("reservation sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.log.Info("released abandoned reservations", slog.Int("count", n))
			}
		}
	}
}
