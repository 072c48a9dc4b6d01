package reaper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/testutil"
)

// An abandoned reservation past the cutoff must be failed, its payment order
// failed, and its units returned to the pool.
func TestSweepReleasesAbandonedReservation(t *testing.T) {
	store, pool := testutil.NewStore(t)
	ctx := context.Background()

	unitID, err := store.Capacity().Create(ctx, domain.CapacityWorkshopSlot, 4)
	require.NoError(t, err)
	require.NoError(t, store.Capacity().Reserve(ctx, unitID, 2))

	orderID, err := store.Payments().Open(ctx, domain.OrderTypeWorkshop, nil, 80000)
	require.NoError(t, err)

	reservationID, err := store.Reservations().Create(ctx, &domain.Reservation{
		CapacityUnitID: unitID,
		OrderType:      domain.OrderTypeWorkshop,
		Units:          2,
		PaymentOrderID: &orderID,
		FullName:       "Meera Iyer",
		Email:          "meera@example.com",
	})
	require.NoError(t, err)

	// Age the reservation past the sweep cutoff.
	_, err = pool.Exec(ctx,
		`UPDATE reservations SET created_at = now() - interval '2 hours' WHERE id = $1`,
		reservationID,
	)
	require.NoError(t, err)

	svc := New(store, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	released, err := svc.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	r, err := store.Reservations().Get(ctx, reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationFailed, r.Status)

	po, err := store.Payments().Get(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, po.Status)

	avail, err := store.Capacity().Availability(ctx, unitID)
	require.NoError(t, err)
	require.Equal(t, 0, avail.Consumed)
	require.Equal(t, 4, avail.Available)

	events, err := store.Payments().ListEvents(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "expired", events[0].Event)

	// The batch is drained; a second pass finds nothing.
	released, err = svc.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, released)
}

// A reservation whose payment settled between candidate selection and the
// sweep lock belongs to settlement, not the reaper.
func TestSweepSkipsPaidOrders(t *testing.T) {
	store, pool := testutil.NewStore(t)
	ctx := context.Background()

	unitID, err := store.Capacity().Create(ctx, domain.CapacityWorkshopSlot, 4)
	require.NoError(t, err)
	require.NoError(t, store.Capacity().Reserve(ctx, unitID, 2))

	orderID, err := store.Payments().Open(ctx, domain.OrderTypeWorkshop, nil, 80000)
	require.NoError(t, err)

	reservationID, err := store.Reservations().Create(ctx, &domain.Reservation{
		CapacityUnitID: unitID,
		OrderType:      domain.OrderTypeWorkshop,
		Units:          2,
		PaymentOrderID: &orderID,
		Email:          "meera@example.com",
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`UPDATE reservations SET created_at = now() - interval '2 hours' WHERE id = $1`,
		reservationID,
	)
	require.NoError(t, err)

	require.NoError(t, store.Payments().MarkPaid(ctx, orderID))

	svc := New(store, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	released, err := svc.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, released)

	r, err := store.Reservations().Get(ctx, reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationPending, r.Status)

	avail, err := store.Capacity().Availability(ctx, unitID)
	require.NoError(t, err)
	require.Equal(t, 2, avail.Consumed)
}
