package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bashostudio/basho-go/internal/domain"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	"github.com/bashostudio/basho-go/internal/testutil"
)

type stubGateway struct{}

func (stubGateway) CreateOrder(_ context.Context, _ int64, _, receipt string) (string, error) {
	return "gw_" + receipt, nil
}

func (stubGateway) VerifySignature(_, _, _ string) bool { return true }

func seedPendingReservation(t *testing.T, ctx context.Context, store *postgresrepo.Store, total, units int) (int64, uuid.UUID, uuid.UUID) {
	t.Helper()

	unitID, err := store.Capacity().Create(ctx, domain.CapacityExperienceSlot, total)
	require.NoError(t, err)
	require.NoError(t, store.Capacity().Reserve(ctx, unitID, units))

	orderID, err := store.Payments().Open(ctx, domain.OrderTypeExperience, nil, 100000)
	require.NoError(t, err)

	reservationID, err := store.Reservations().Create(ctx, &domain.Reservation{
		CapacityUnitID: unitID,
		OrderType:      domain.OrderTypeExperience,
		Units:          units,
		PaymentOrderID: &orderID,
		FullName:       "Ravi Menon",
		Email:          "ravi@example.com",
	})
	require.NoError(t, err)

	return unitID, reservationID, orderID
}

// A cancelled reservation must give its units back so another booking can
// take the whole slot again.
func TestCancelReleasesCapacityForReuse(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	unitID, reservationID, orderID := seedPendingReservation(t, ctx, store, 5, 5)
	svc := New(store, nil, nil, nil, stubGateway{})

	outcome, err := svc.Cancel(ctx, reservationID)
	require.NoError(t, err)
	require.Equal(t, Cancelled, outcome)

	r, err := store.Reservations().Get(ctx, reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationCancelled, r.Status)

	po, err := store.Payments().Get(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, po.Status)

	avail, err := store.Capacity().Availability(ctx, unitID)
	require.NoError(t, err)
	require.Equal(t, 0, avail.Consumed)
	require.Equal(t, 5, avail.Available)

	// The slot was full before the cancel; now it takes a full-size
	// reservation again.
	require.NoError(t, store.Capacity().Reserve(ctx, unitID, 5))
}

func TestCancelTwiceReportsAlreadyTerminal(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	unitID, reservationID, _ := seedPendingReservation(t, ctx, store, 5, 2)
	svc := New(store, nil, nil, nil, stubGateway{})

	outcome, err := svc.Cancel(ctx, reservationID)
	require.NoError(t, err)
	require.Equal(t, Cancelled, outcome)

	// The duplicate cancel must not release the units a second time.
	outcome, err = svc.Cancel(ctx, reservationID)
	require.NoError(t, err)
	require.Equal(t, AlreadyTerminal, outcome)

	avail, err := store.Capacity().Availability(ctx, unitID)
	require.NoError(t, err)
	require.Equal(t, 0, avail.Consumed)
}
