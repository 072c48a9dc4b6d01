package booking

import (
	"errors"
	"fmt"

	"github.com/bashostudio/basho-go/internal/repository"
)

var (
	ErrExperienceNotFound  = errors.New("experience not found")
	ErrWorkshopNotFound    = errors.New("workshop not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrCapacityExceeded    = errors.New("not enough capacity")
	ErrGateway             = errors.New("payment gateway unavailable")
	ErrRateLimited         = errors.New("rate limited")
)

// ValidationError rejects bad input before any transaction opens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// CapacityExceededError carries the remaining capacity so the API layer can
// tell the caller how many units are actually left.
type CapacityExceededError struct {
	Available int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("only %d units left", e.Available)
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded || target == repository.ErrCapacityExceeded
}
