package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bashostudio/basho-go/internal/domain"
)

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a product order with its item snapshot. Runs inside the
// checkout transaction, after stock has been reserved per line item.
func (r *OrderRepo) Create(ctx context.Context, o *domain.ProductOrder, items []domain.ProductOrderItem) (uuid.UUID, error) {
	const op = "postgres.OrderRepo.Create"

	db := r.handle()

	id := uuid.New()
	if _, err := db.Exec(ctx,
		`INSERT INTO product_orders(
			id, payment_order_id, cart_id, status,
			full_name, email, phone, address, city, pincode, gst_number,
			subtotal_paise, shipping_paise, total_weight_kg, total_paise
		 ) VALUES ($1, $2, $3, 'created', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, o.PaymentOrderID, o.CartID,
		o.FullName, o.Email, o.Phone, o.Address, o.City, o.Pincode, o.GSTNumber,
		o.SubtotalPaise, o.ShippingPaise, o.TotalWeightKg, o.TotalPaise,
	); err != nil {
		return uuid.Nil, wrapDBErr(op, err)
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO product_order_items(
				order_id, product_id, product_name, price_paise, quantity, weight_kg, reservation_id
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, it.ProductID, it.ProductName, it.PricePaise, it.Quantity, it.WeightKg, it.ReservationID,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return uuid.Nil, wrapDBErr(op, err)
	}

	return id, nil
}

// GetByPaymentOrder returns the product order opened under a payment order.
func (r *OrderRepo) GetByPaymentOrder(ctx context.Context, paymentOrderID uuid.UUID) (*domain.ProductOrder, error) {
	const op = "postgres.OrderRepo.GetByPaymentOrder"

	db := r.handle()

	var o domain.ProductOrder
	err := db.QueryRow(ctx,
		`SELECT id, payment_order_id, cart_id, status,
        	full_name, email, phone, address, city, pincode, COALESCE(gst_number, ''),
        	subtotal_paise, shipping_paise, total_weight_kg, total_paise, created_at
       	 FROM product_orders WHERE payment_order_id = $1`,
		paymentOrderID,
	).Scan(
		&o.ID, &o.PaymentOrderID, &o.CartID, &o.Status,
		&o.FullName, &o.Email, &o.Phone, &o.Address, &o.City, &o.Pincode, &o.GSTNumber,
		&o.SubtotalPaise, &o.ShippingPaise, &o.TotalWeightKg, &o.TotalPaise, &o.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

func (r *OrderRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	const op = "postgres.OrderRepo.SetStatus"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`UPDATE product_orders SET status = $2 WHERE id = $1`,
		id, status,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
