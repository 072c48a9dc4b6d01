package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapacityUnit_CanConsume(t *testing.T) {
	tests := []struct {
		name  string
		unit  CapacityUnit
		units int
		want  bool
	}{
		{"fits exactly", CapacityUnit{Total: 5, Consumed: 0, Active: true}, 5, true},
		{"fits partially", CapacityUnit{Total: 5, Consumed: 0, Active: true}, 3, true},
		{"exceeds after prior reserve", CapacityUnit{Total: 5, Consumed: 3, Active: true}, 3, false},
		{"fills remaining", CapacityUnit{Total: 5, Consumed: 3, Active: true}, 2, true},
		{"full unit", CapacityUnit{Total: 2, Consumed: 2, Active: true}, 1, false},
		{"inactive unit", CapacityUnit{Total: 5, Consumed: 0, Active: false}, 1, false},
		{"zero units", CapacityUnit{Total: 5, Consumed: 0, Active: true}, 0, false},
		{"negative units", CapacityUnit{Total: 5, Consumed: 0, Active: true}, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.unit.CanConsume(tt.units))
		})
	}
}

func TestCapacityUnit_Available(t *testing.T) {
	assert.Equal(t, 5, CapacityUnit{Total: 5}.Available())
	assert.Equal(t, 2, CapacityUnit{Total: 5, Consumed: 3}.Available())
	assert.Equal(t, 0, CapacityUnit{Total: 5, Consumed: 5}.Available())
	// consumed above total after an out-of-band correction
	assert.Equal(t, 0, CapacityUnit{Total: 5, Consumed: 7}.Available())
}

func TestReleaseConsumed(t *testing.T) {
	assert.Equal(t, 1, ReleaseConsumed(3, 2))
	assert.Equal(t, 0, ReleaseConsumed(3, 3))
	// never goes below zero, even on a double release
	assert.Equal(t, 0, ReleaseConsumed(2, 5))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, ReservationPending.Terminal())
	assert.True(t, ReservationConfirmed.Terminal())
	assert.True(t, ReservationFailed.Terminal())
	assert.True(t, ReservationCancelled.Terminal())

	assert.False(t, PaymentPending.Terminal())
	assert.True(t, PaymentPaid.Terminal())
	assert.True(t, PaymentFailed.Terminal())
}
