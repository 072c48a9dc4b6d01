package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bashostudio/basho-go/internal/domain"
	"github.com/bashostudio/basho-go/internal/gateway"
	"github.com/bashostudio/basho-go/internal/repository"
	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	redisrepo "github.com/bashostudio/basho-go/internal/repository/redis"
	"github.com/bashostudio/basho-go/internal/uow"
)

// Service owns the cart and the product checkout: it turns a cart into
// per-line stock reservations sharing one payment order.
type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	pubsub  *redisrepo.SlotsPubSub
	gateway gateway.PaymentGateway
	uow     *uow.UoW
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SlotsPubSub,
	gw gateway.PaymentGateway,
) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		gateway: gw,
		uow:     uow.NewUoW(store),
	}
}

// CartView is the cart with its priced lines, as served to the client.
type CartView struct {
	Cart  *domain.Cart
	Items []domain.CartItemView
	Quote Quote
}

// GetCart returns the user's active cart, creating one if needed.
func (s *Service) GetCart(ctx context.Context, userID int64) (*CartView, error) {
	const op = "service.checkout.GetCart"

	cart, err := s.store.Carts().GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items, err := s.store.Carts().ListItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &CartView{Cart: cart, Items: items, Quote: quote(viewLines(items))}, nil
}

// AddItem puts quantity units of a product in the user's cart, replacing any
// existing line for that product. The quantity is clamped to current stock;
// the clamp is advisory only, real stock is claimed at checkout.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, quantity int) (*CartView, error) {
	const op = "service.checkout.AddItem"

	if quantity <= 0 {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Msg: "quantity must be positive"})
	}

	p, err := s.store.Catalog().GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrProductNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !p.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrProductNotFound)
	}

	if a, err := s.store.Capacity().Availability(ctx, p.StockUnitID); err == nil {
		if a.Available == 0 {
			return nil, fmt.Errorf("%s: %w", op, &OutOfStockError{ProductID: p.ID})
		}
		if quantity > a.Available {
			quantity = a.Available
		}
	}

	cart, err := s.store.Carts().GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Carts().UpsertItem(ctx, cart.ID, productID, quantity); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetCart(ctx, userID)
}

// RemoveItem drops a product line from the user's cart. Removing a product
// that is not in the cart is a no-op.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) (*CartView, error) {
	const op = "service.checkout.RemoveItem"

	cart, err := s.store.Carts().GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Carts().RemoveItem(ctx, cart.ID, productID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetCart(ctx, userID)
}

// ClearCart empties and deactivates the user's active cart.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	const op = "service.checkout.ClearCart"

	cart, err := s.store.Carts().GetOrCreateActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Carts().Clear(ctx, cart.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// OrderInput is the shipping detail captured at checkout.
type OrderInput struct {
	UserID    int64
	FullName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Pincode   string
	GSTNumber string
}

// OrderResult is handed back to the client to start the gateway checkout.
type OrderResult struct {
	OrderID        uuid.UUID
	PaymentOrderID uuid.UUID
	GatewayOrderID string
	Quote          Quote
}

// CreateOrder turns the user's active cart into a product order: one stock
// reservation per line item, all under a single payment order. Prices and
// weights are snapshotted from the catalog inside the transaction, not from
// the cart. Any line failing its stock claim aborts the whole order.
//
// Returns:
//   - error: ErrCartEmpty when there is nothing to order.
//   - error: *OutOfStockError (matches repository.ErrCapacityExceeded) naming
//     the offending product; nothing is reserved.
//   - error: ErrGateway when the gateway order cannot be created; every
//     reservation is released before returning.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (*OrderResult, error) {
	const op = "service.checkout.CreateOrder"

	cart, err := s.store.Carts().GetOrCreateActive(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cartItems, err := s.store.Carts().ListItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(cartItems) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrCartEmpty)
	}

	var (
		out        OrderResult
		failedItem int64
	)

	err = s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		lines := make([]pricedLine, 0, len(cartItems))
		orderItems := make([]domain.ProductOrderItem, 0, len(cartItems))

		poID, err := s.store.Payments().With(tx).Open(ctx, domain.OrderTypeProduct, nil, 0)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		for _, ci := range cartItems {
			p, err := s.store.Catalog().With(tx).GetProduct(ctx, ci.ProductID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%s: %w", op, ErrProductNotFound)
				}
				return fmt.Errorf("%s: %w", op, err)
			}

			if !p.Active {
				failedItem = p.ID
				return fmt.Errorf("%s: %w", op, ErrProductNotFound)
			}

			if err := s.store.Capacity().With(tx).Reserve(ctx, p.StockUnitID, ci.Quantity); err != nil {
				if errors.Is(err, repository.ErrCapacityExceeded) || errors.Is(err, repository.ErrUnitInactive) {
					failedItem = p.ID
				}
				return err
			}

			rid, err := s.store.Reservations().With(tx).Create(ctx, &domain.Reservation{
				CapacityUnitID: p.StockUnitID,
				OrderType:      domain.OrderTypeProduct,
				Units:          ci.Quantity,
				PaymentOrderID: &poID,
				UserID:         &in.UserID,
				FullName:       in.FullName,
				Email:          in.Email,
				Phone:          in.Phone,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			lines = append(lines, pricedLine{PricePaise: p.PricePaise, Quantity: ci.Quantity, WeightKg: p.WeightKg})

			pid := p.ID
			orderItems = append(orderItems, domain.ProductOrderItem{
				ProductID:     &pid,
				ProductName:   p.Name,
				PricePaise:    p.PricePaise,
				Quantity:      ci.Quantity,
				WeightKg:      p.WeightKg,
				ReservationID: rid,
			})

			unitID := p.StockUnitID
			after(func(ctx context.Context) {
				if s.cache != nil {
					_ = s.cache.InvalidateSlot(ctx, unitID)
				}
				if s.pubsub != nil {
					_ = s.pubsub.PublishSlotChanged(ctx, unitID)
				}
			})
		}

		q := quote(lines)

		// The payment order was opened before the amount was known; fix it
		// up inside the same transaction before anything can read it.
		if err := s.store.Payments().With(tx).SetAmount(ctx, poID, q.TotalPaise); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		oid, err := s.store.Orders().With(tx).Create(ctx, &domain.ProductOrder{
			PaymentOrderID: poID,
			CartID:         &cart.ID,
			FullName:       in.FullName,
			Email:          in.Email,
			Phone:          in.Phone,
			Address:        in.Address,
			City:           in.City,
			Pincode:        in.Pincode,
			GSTNumber:      in.GSTNumber,
			SubtotalPaise:  q.SubtotalPaise,
			ShippingPaise:  q.ShippingPaise,
			TotalWeightKg:  q.TotalWeightKg,
			TotalPaise:     q.TotalPaise,
		}, orderItems)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		out.OrderID = oid
		out.PaymentOrderID = poID
		out.Quote = q

		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) || errors.Is(err, repository.ErrUnitInactive) {
			return nil, fmt.Errorf("%s: %w", op, s.stockErr(ctx, failedItem))
		}
		return nil, err
	}

	gwOrderID, err := s.gateway.CreateOrder(ctx, out.Quote.TotalPaise, "INR", out.PaymentOrderID.String())
	if err != nil {
		// The gateway never saw this order, so releasing is safe.
		if rerr := s.abortOrder(ctx, out.PaymentOrderID); rerr != nil {
			return nil, fmt.Errorf("%s: %w: %w (release failed: %w)", op, ErrGateway, err, rerr)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrGateway, err)
	}

	if err := s.store.Payments().AttachGatewayID(ctx, out.PaymentOrderID, gwOrderID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out.GatewayOrderID = gwOrderID

	return &out, nil
}

// abortOrder fails a freshly created order and gives back every line's
// stock. Only called before a gateway id is attached, so no settlement can
// be racing it on the PENDING path.
func (s *Service) abortOrder(ctx context.Context, paymentOrderID uuid.UUID) error {
	const op = "service.checkout.abortOrder"

	return s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		po, err := s.store.Payments().With(tx).GetForUpdate(ctx, paymentOrderID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if po.Status != domain.PaymentPending {
			return nil
		}

		if err := s.store.Payments().With(tx).MarkFailed(ctx, po.ID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Payments().With(tx).AppendEvent(ctx, po.ID, "cancelled", nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		ids, err := s.store.Reservations().With(tx).ListIDsByPaymentOrder(ctx, po.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		for _, id := range ids {
			r, err := s.store.Reservations().With(tx).GetForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			if r.Status.Terminal() {
				continue
			}

			if err := s.store.Capacity().With(tx).Release(ctx, r.CapacityUnitID, r.Units); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			if err := s.store.Reservations().With(tx).SetStatus(ctx, r.ID, domain.ReservationFailed); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			unitID := r.CapacityUnitID
			after(func(ctx context.Context) {
				if s.cache != nil {
					_ = s.cache.InvalidateSlot(ctx, unitID)
				}
				if s.pubsub != nil {
					_ = s.pubsub.PublishSlotChanged(ctx, unitID)
				}
			})
		}

		if order, err := s.store.Orders().With(tx).GetByPaymentOrder(ctx, po.ID); err == nil {
			if err := s.store.Orders().With(tx).SetStatus(ctx, order.ID, "failed"); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
}

func (s *Service) stockErr(ctx context.Context, productID int64) error {
	e := &OutOfStockError{ProductID: productID}
	if p, err := s.store.Catalog().GetProduct(ctx, productID); err == nil {
		if a, err := s.store.Capacity().Availability(ctx, p.StockUnitID); err == nil {
			e.Available = a.Available
		}
	}
	return e
}

func viewLines(items []domain.CartItemView) []pricedLine {
	lines := make([]pricedLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricedLine{PricePaise: it.PricePaise, Quantity: it.Quantity, WeightKg: it.WeightKg})
	}
	return lines
}
