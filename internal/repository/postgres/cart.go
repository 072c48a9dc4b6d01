package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bashostudio/basho-go/internal/domain"
)

type CartRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CartRepo) With(db DB) *CartRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CartRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetOrCreateActive returns the user's active cart, creating one if needed.
func (r *CartRepo) GetOrCreateActive(ctx context.Context, userID int64) (*domain.Cart, error) {
	const op = "postgres.CartRepo.GetOrCreateActive"

	db := r.handle()

	var c domain.Cart
	err := db.QueryRow(ctx,
		`INSERT INTO carts(user_id, is_active)
       	 VALUES ($1, TRUE)
     	 ON CONFLICT (user_id) WHERE is_active DO UPDATE SET is_active = TRUE
     	 RETURNING id, user_id, is_active, created_at`,
		userID,
	).Scan(&c.ID, &c.UserID, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}

// UpsertItem sets the quantity for a product in the cart. Quantity clamping
// against stock is done by the caller.
func (r *CartRepo) UpsertItem(ctx context.Context, cartID, productID int64, quantity int) error {
	const op = "postgres.CartRepo.UpsertItem"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO cart_items(cart_id, product_id, quantity)
       	 VALUES ($1, $2, $3)
     	 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		cartID, productID, quantity,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CartRepo) RemoveItem(ctx context.Context, cartID, productID int64) error {
	const op = "postgres.CartRepo.RemoveItem"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListItems returns the cart contents joined with product name, price,
// weight and remaining stock.
func (r *CartRepo) ListItems(ctx context.Context, cartID int64) ([]domain.CartItemView, error) {
	const op = "postgres.CartRepo.ListItems"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity,
        	p.name, p.price_paise, p.weight_kg,
        	cu.total_capacity - cu.consumed
       	 FROM cart_items ci
       	 JOIN products p ON p.id = ci.product_id
       	 JOIN capacity_units cu ON cu.id = p.stock_unit_id
      	 WHERE ci.cart_id = $1
      	 ORDER BY ci.id`,
		cartID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.CartItemView
	for rows.Next() {
		var v domain.CartItemView
		if err := rows.Scan(
			&v.ID, &v.CartID, &v.ProductID, &v.Quantity,
			&v.ProductName, &v.PricePaise, &v.WeightKg, &v.Stock,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Clear empties the cart and deactivates it. Called when the originating
// product order settles.
func (r *CartRepo) Clear(ctx context.Context, cartID int64) error {
	const op = "postgres.CartRepo.Clear"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1`,
		cartID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	if _, err := db.Exec(ctx,
		`UPDATE carts SET is_active = FALSE WHERE id = $1`,
		cartID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
