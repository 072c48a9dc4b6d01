package checkout

import (
	"errors"
	"fmt"

	"github.com/bashostudio/basho-go/internal/repository"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrCartEmpty       = errors.New("cart is empty")
	ErrGateway         = errors.New("payment gateway unavailable")
)

// ValidationError reports a rejected input with a client-safe message.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// OutOfStockError reports which product could not be reserved and how many
// units were still available at that moment. Matches
// repository.ErrCapacityExceeded via errors.Is.
type OutOfStockError struct {
	ProductID int64
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d out of stock, %d available", e.ProductID, e.Available)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == repository.ErrCapacityExceeded
}
