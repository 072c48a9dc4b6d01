package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bashostudio/basho-go/internal/domain"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
)

// Every order type that can open a payment order must have a confirmation
// routine, otherwise a paid order lands in the reconciliation queue.
func TestConfirmerDispatchCoversAllOrderTypes(t *testing.T) {
	s := New(&postgresrepo.Store{}, nil, nil, nil, nil, nil)

	for _, typ := range []domain.OrderType{
		domain.OrderTypeProduct,
		domain.OrderTypeWorkshop,
		domain.OrderTypeExperience,
		domain.OrderTypeCustom,
	} {
		require.Contains(t, s.confirmers, typ, "order type %s has no confirmation routine", typ)
	}
}
