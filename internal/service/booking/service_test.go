package booking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/repository"
)

func TestWorkshopAmount(t *testing.T) {
	tests := []struct {
		name         string
		workshop     domain.Workshop
		participants int
		want         int64
	}{
		{
			name:         "per person pricing multiplies",
			workshop:     domain.Workshop{PricePaise: 250000, PricePerPerson: true},
			participants: 4,
			want:         1000000,
		},
		{
			name:         "flat pricing ignores party size",
			workshop:     domain.Workshop{PricePaise: 250000, PricePerPerson: false},
			participants: 4,
			want:         250000,
		},
		{
			name:         "single participant",
			workshop:     domain.Workshop{PricePaise: 250000, PricePerPerson: true},
			participants: 1,
			want:         250000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WorkshopAmount(&tt.workshop, tt.participants))
		})
	}
}

func TestCapacityExceededErrorMatchesSentinel(t *testing.T) {
	err := &CapacityExceededError{Available: 3}

	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.True(t, errors.Is(err, repository.ErrCapacityExceeded))

	var capErr *CapacityExceededError
	assert.True(t, errors.As(error(err), &capErr))
	assert.Equal(t, 3, capErr.Available)
}
