// Package cart persists shopping carts keyed by an opaque cart id.
package cart

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage"
)

var (
	ErrItemNotFound = errors.New("cart item not found")
	ErrOutOfStock   = errors.New("product is out of stock")
	ErrBadQuantity  = errors.New("quantity must be between 1 and 99")
)

const maxQuantity = 99

// Item is one cart row joined with its product.
type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	Stock     *int            `json:"stock"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

// Cart is the priced contents of one cart id.
type Cart struct {
	ID       string          `json:"id"`
	Items    []Item          `json:"items"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Service struct {
	db  *storage.DB
	now func() time.Time
}

func NewService(db *storage.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the cart, dropping nothing: inactive products stay visible so
// the shopper can remove them.
func (s *Service) Get(ctx context.Context, cartID string) (Cart, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, p.name, p.price, p.category, p.image_url, p.stock, c.quantity, c.added_at
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.cart_id = ? ORDER BY c.added_at, p.id`, cartID)
	if err != nil {
		return Cart{}, errors.Wrap(err, "list cart")
	}
	defer rows.Close()

	out := Cart{ID: cartID, Items: []Item{}, Subtotal: decimal.Zero}
	for rows.Next() {
		var (
			it                 Item
			category, imageURL sql.NullString
			stock              sql.NullInt64
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &category, &imageURL, &stock, &it.Quantity, &it.AddedAt); err != nil {
			return Cart{}, errors.Wrap(err, "scan cart item")
		}
		it.Price = it.Price.Round(2)
		it.Category = category.String
		it.ImageURL = imageURL.String
		if stock.Valid {
			n := int(stock.Int64)
			it.Stock = &n
		}
		out.Items = append(out.Items, it)
		out.Count += it.Quantity
		out.Subtotal = out.Subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if err := rows.Err(); err != nil {
		return Cart{}, errors.Wrap(err, "iterate cart")
	}
	return out, nil
}

// Add increases the quantity of productID by qty, clamped to stock when it
// is tracked.
func (s *Service) Add(ctx context.Context, cartID string, productID int64, qty int) (Cart, error) {
	if qty < 1 || qty > maxQuantity {
		return Cart{}, ErrBadQuantity
	}
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		p, err := activeProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		var current int
		err = tx.QueryRowContext(ctx, `SELECT quantity FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "read cart item")
		}
		next, err := clampToStock(p, current+qty)
		if err != nil {
			return err
		}
		return upsert(ctx, tx, cartID, productID, next, s.now())
	})
	if err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, cartID)
}

// SetQuantity overwrites the quantity of an existing cart row.
func (s *Service) SetQuantity(ctx context.Context, cartID string, productID int64, qty int) (Cart, error) {
	if qty < 1 || qty > maxQuantity {
		return Cart{}, ErrBadQuantity
	}
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		p, err := activeProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		next, err := clampToStock(p, qty)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND product_id = ?`, next, cartID, productID)
		if err != nil {
			return errors.Wrap(err, "update cart item")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrItemNotFound
		}
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, cartID)
}

func (s *Service) Remove(ctx context.Context, cartID string, productID int64) (Cart, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID)
	if err != nil {
		return Cart{}, errors.Wrap(err, "remove cart item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Cart{}, ErrItemNotFound
	}
	return s.Get(ctx, cartID)
}

func (s *Service) Clear(ctx context.Context, cartID string) error {
	return Clear(ctx, s.db, cartID)
}

// Clear deletes every row of cartID using q, so order persistence can run
// it inside its own transaction.
func Clear(ctx context.Context, q storage.Queryer, cartID string) error {
	if cartID == "" {
		return nil
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func activeProduct(ctx context.Context, q storage.Queryer, productID int64) (catalog.Product, error) {
	var (
		p     catalog.Product
		stock sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `SELECT id, is_active, stock FROM products WHERE id = ?`, productID).Scan(&p.ID, &p.IsActive, &stock)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !p.IsActive) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "lookup product")
	}
	if stock.Valid {
		n := int(stock.Int64)
		p.Stock = &n
	}
	return p, nil
}

func clampToStock(p catalog.Product, qty int) (int, error) {
	if qty > maxQuantity {
		qty = maxQuantity
	}
	if p.Stock == nil {
		return qty, nil
	}
	if *p.Stock < 1 {
		return 0, ErrOutOfStock
	}
	if qty > *p.Stock {
		qty = *p.Stock
	}
	return qty, nil
}

func upsert(ctx context.Context, q storage.Queryer, cartID string, productID int64, qty int, now time.Time) error {
	_, err := q.ExecContext(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity, added_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = excluded.quantity`, cartID, productID, qty, now)
	if err != nil {
		return errors.Wrap(err, "upsert cart item")
	}
	return nil
}
