package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bashostudio/basho-go/internal/domain"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	"github.com/bashostudio/basho-go/internal/testutil"
)

type stubGateway struct {
	valid bool
}

func (g stubGateway) CreateOrder(_ context.Context, _ int64, _, receipt string) (string, error) {
	return "gw_" + receipt, nil
}

func (g stubGateway) VerifySignature(_, _, _ string) bool { return g.valid }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type settlementFixture struct {
	unitID        int64
	reservationID uuid.UUID
	orderID       uuid.UUID
}

// seedPendingBooking sets up the state a booking leaves behind right before
// the gateway calls back: capacity consumed, reservation pending, payment
// order PENDING with a gateway id attached.
func seedPendingBooking(t *testing.T, ctx context.Context, store *postgresrepo.Store, gatewayOrderID string) settlementFixture {
	t.Helper()

	unitID, err := store.Capacity().Create(ctx, domain.CapacityExperienceSlot, 10)
	require.NoError(t, err)
	require.NoError(t, store.Capacity().Reserve(ctx, unitID, 3))

	orderID, err := store.Payments().Open(ctx, domain.OrderTypeExperience, nil, 300000)
	require.NoError(t, err)
	require.NoError(t, store.Payments().AttachGatewayID(ctx, orderID, gatewayOrderID))

	reservationID, err := store.Reservations().Create(ctx, &domain.Reservation{
		CapacityUnitID: unitID,
		OrderType:      domain.OrderTypeExperience,
		Units:          3,
		PaymentOrderID: &orderID,
		FullName:       "Asha Rao",
		Email:          "asha@example.com",
	})
	require.NoError(t, err)

	return settlementFixture{unitID: unitID, reservationID: reservationID, orderID: orderID}
}

func TestSettleConfirmsWithoutConsumingCapacityAgain(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	fx := seedPendingBooking(t, ctx, store, "order_happy")
	svc := New(store, nil, nil, stubGateway{valid: true}, nil, testLogger())

	outcome, err := svc.Settle(ctx, "order_happy", "pay_1", "sig", []byte(`{"ok":true}`))
	require.NoError(t, err)
	require.Equal(t, Settled, outcome)

	po, err := store.Payments().Get(ctx, fx.orderID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, po.Status)

	r, err := store.Reservations().Get(ctx, fx.reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationConfirmed, r.Status)

	// Capacity was consumed when the reservation was placed; confirmation
	// must not touch it again.
	avail, err := store.Capacity().Availability(ctx, fx.unitID)
	require.NoError(t, err)
	require.Equal(t, 3, avail.Consumed)
	require.Equal(t, 7, avail.Available)
}

func TestSettleIsIdempotent(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	fx := seedPendingBooking(t, ctx, store, "order_dup")
	svc := New(store, nil, nil, stubGateway{valid: true}, nil, testLogger())

	outcome, err := svc.Settle(ctx, "order_dup", "pay_1", "sig", nil)
	require.NoError(t, err)
	require.Equal(t, Settled, outcome)

	events, err := store.Payments().ListEvents(ctx, fx.orderID)
	require.NoError(t, err)
	firstCount := len(events)

	// The gateway redelivers the same callback.
	outcome, err = svc.Settle(ctx, "order_dup", "pay_1", "sig", nil)
	require.NoError(t, err)
	require.Equal(t, AlreadyPaid, outcome)

	events, err = store.Payments().ListEvents(ctx, fx.orderID)
	require.NoError(t, err)
	require.Len(t, events, firstCount, "replayed callback must not append events")

	avail, err := store.Capacity().Availability(ctx, fx.unitID)
	require.NoError(t, err)
	require.Equal(t, 3, avail.Consumed)
}

func TestSettleFailureAfterPaidIsNoOp(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	fx := seedPendingBooking(t, ctx, store, "order_sticky")
	svc := New(store, nil, nil, stubGateway{valid: true}, nil, testLogger())

	_, err := svc.Settle(ctx, "order_sticky", "pay_1", "sig", nil)
	require.NoError(t, err)

	// A late failure callback for a settled order must not unwind anything.
	outcome, err := svc.SettleFailure(ctx, "order_sticky", "issuer timeout", nil)
	require.NoError(t, err)
	require.Equal(t, AlreadyPaid, outcome)

	po, err := store.Payments().Get(ctx, fx.orderID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, po.Status)

	r, err := store.Reservations().Get(ctx, fx.reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationConfirmed, r.Status)

	avail, err := store.Capacity().Availability(ctx, fx.unitID)
	require.NoError(t, err)
	require.Equal(t, 3, avail.Consumed)
}

func TestSettleFailureReleasesCapacity(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	fx := seedPendingBooking(t, ctx, store, "order_fail")
	svc := New(store, nil, nil, stubGateway{valid: true}, nil, testLogger())

	outcome, err := svc.SettleFailure(ctx, "order_fail", "card declined", nil)
	require.NoError(t, err)
	require.Equal(t, MarkedFailed, outcome)

	po, err := store.Payments().Get(ctx, fx.orderID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, po.Status)

	r, err := store.Reservations().Get(ctx, fx.reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationFailed, r.Status)

	avail, err := store.Capacity().Availability(ctx, fx.unitID)
	require.NoError(t, err)
	require.Equal(t, 0, avail.Consumed)

	// The freed units are reservable again.
	require.NoError(t, store.Capacity().Reserve(ctx, fx.unitID, 10))
}

func TestSettleInvalidSignatureLeavesOrderPendingWithAudit(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	fx := seedPendingBooking(t, ctx, store, "order_forged")
	svc := New(store, nil, nil, stubGateway{valid: false}, nil, testLogger())

	_, err := svc.Settle(ctx, "order_forged", "pay_1", "bad_sig", []byte(`{"forged":true}`))
	require.ErrorIs(t, err, ErrSignatureInvalid)

	po, err := store.Payments().Get(ctx, fx.orderID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPending, po.Status)

	r, err := store.Reservations().Get(ctx, fx.reservationID)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationPending, r.Status)

	events, err := store.Payments().ListEvents(ctx, fx.orderID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "failed", events[0].Event)
}

func TestSettleWithoutReservationRecordsReconciliation(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()

	// A paid order with no linked reservation cannot be confirmed; the money
	// is captured, so it must leave a durable trace for the operator.
	orderID, err := store.Payments().Open(ctx, domain.OrderTypeExperience, nil, 150000)
	require.NoError(t, err)
	require.NoError(t, store.Payments().AttachGatewayID(ctx, orderID, "order_orphan"))

	svc := New(store, nil, nil, stubGateway{valid: true}, nil, testLogger())

	_, err = svc.Settle(ctx, "order_orphan", "pay_1", "sig", nil)
	require.ErrorIs(t, err, ErrReconciliationRequired)

	po, err := store.Payments().Get(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, po.Status)

	events, err := svc.Events(ctx, orderID)
	require.NoError(t, err)

	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Event)
	}
	require.Contains(t, kinds, "verified")
	require.Contains(t, kinds, "reconcile_required")
}
