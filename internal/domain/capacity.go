package domain

// Available returns how many units can still be reserved.
func (u CapacityUnit) Available() int {
	if u.Consumed >= u.Total {
		return 0
	}
	return u.Total - u.Consumed
}

// CanConsume reports whether units more can be reserved without exceeding
// total capacity. Callers must hold the unit's row lock.
func (u CapacityUnit) CanConsume(units int) bool {
	return u.Active && units > 0 && u.Consumed+units <= u.Total
}

// Overbooked reports an out-of-band correction that left consumed above
// total. Settlement treats this as a reconciliation fault.
func (u CapacityUnit) Overbooked() bool {
	return u.Consumed > u.Total
}

// ReleaseConsumed returns the consumed counter after giving units back,
// floored at zero.
func ReleaseConsumed(consumed, units int) int {
	if units >= consumed {
		return 0
	}
	return consumed - units
}

// Terminal reports whether the reservation reached a final state.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationConfirmed || s == ReservationFailed || s == ReservationCancelled
}

// Terminal reports whether the payment order reached a final state. PAID is
// sticky: a terminal order never transitions again.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}
