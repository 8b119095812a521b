package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cart"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid shipping status")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Shipping statuses, in their usual progression.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

func NormalizeShippingStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return s
	default:
		return ""
	}
}

type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type ShippingStatus struct {
	Status         string    `json:"status"`
	Carrier        string    `json:"carrier,omitempty"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Order struct {
	ID            string          `json:"id"`
	PayPalOrderID string          `json:"paypal_order_id"`
	CaptureID     string          `json:"capture_id,omitempty"`
	Status        string          `json:"status"`
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	Email         string          `json:"email,omitempty"`
	PayerName     string          `json:"payer_name,omitempty"`
	Shipping      json.RawMessage `json:"shipping,omitempty"`
	CartID        string          `json:"cart_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []Item          `json:"items,omitempty"`
	ShippingState *ShippingStatus `json:"shipping_status,omitempty"`
}

// Service persists orders and their shipping state.
type Service struct {
	db  *storage.DB
	log *zap.Logger
	now func() time.Time
}

func NewService(db *storage.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log.Named("orders"), now: func() time.Time { return time.Now().UTC() }}
}

// NewOrder is everything known about a captured payment.
type NewOrder struct {
	PayPalOrderID string
	CaptureID     string
	Status        string
	Currency      string
	Total         decimal.Decimal
	Email         string
	PayerName     string
	Shipping      json.RawMessage
	CartID        string
	Items         []Item
}

// Persist writes the order, its lines and a pending shipping row, takes
// the sold quantities off stock (never below zero) and empties the cart,
// all in one transaction. An order already stored for the same PayPal id
// is returned unchanged with created=false.
func (s *Service) Persist(ctx context.Context, in NewOrder) (Order, bool, error) {
	if in.PayPalOrderID == "" {
		return Order{}, false, errors.New("missing paypal order id")
	}
	if len(in.Items) == 0 {
		return Order{}, false, errors.New("order has no items")
	}

	var (
		orderID string
		created bool
	)
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		existing, err := idByPayPalID(ctx, tx, in.PayPalOrderID)
		if err == nil {
			orderID = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := s.now()
		orderID = uuid.NewString()
		var shipping any
		if len(in.Shipping) > 0 && string(in.Shipping) != "null" {
			shipping = string(in.Shipping)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO orders (id, paypal_order_id, capture_id, status, currency, total, email, payer_name, shipping_json, cart_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			orderID, in.PayPalOrderID, storage.NilIfEmpty(in.CaptureID), in.Status, in.Currency, in.Total.StringFixed(2),
			storage.NilIfEmpty(in.Email), storage.NilIfEmpty(in.PayerName), shipping, storage.NilIfEmpty(in.CartID), now, now,
		); err != nil {
			return errors.Wrap(err, "insert order")
		}
		for _, it := range in.Items {
			if _, err := tx.ExecContext(ctx, `INSERT INTO order_items (order_id, product_id, name, unit_price, quantity) VALUES (?, ?, ?, ?, ?)`,
				orderID, it.ProductID, it.Name, it.UnitPrice.StringFixed(2), it.Quantity); err != nil {
				return errors.Wrap(err, "insert order item")
			}
			if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = CASE WHEN stock >= ? THEN stock - ? ELSE 0 END, updated_at = ?
				WHERE id = ? AND stock IS NOT NULL`, it.Quantity, it.Quantity, now, it.ProductID); err != nil {
				return errors.Wrap(err, "decrement stock")
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO shipping_status (order_id, status, updated_at) VALUES (?, ?, ?)`, orderID, StatusPending, now); err != nil {
			return errors.Wrap(err, "insert shipping status")
		}
		if err := cart.Clear(ctx, tx, in.CartID); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	o, err := s.Get(ctx, orderID)
	return o, created, err
}

// ByPayPalID returns the order stored for a PayPal order id.
func (s *Service) ByPayPalID(ctx context.Context, paypalOrderID string) (Order, error) {
	id, err := idByPayPalID(ctx, s.db, paypalOrderID)
	if err != nil {
		return Order{}, err
	}
	return s.Get(ctx, id)
}

func idByPayPalID(ctx context.Context, q storage.Queryer, paypalOrderID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM orders WHERE paypal_order_id = ?`, paypalOrderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "lookup order")
	}
	return id, nil
}

const orderColumns = `o.id, o.paypal_order_id, o.capture_id, o.status, o.currency, o.total, o.email, o.payer_name, o.shipping_json, o.cart_id, o.created_at, o.updated_at,
	s.status, s.carrier, s.tracking_number, s.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o                                         Order
		captureID, email, payer, shipping, cartID sql.NullString
		shipStatus, carrier, tracking             sql.NullString
		shipUpdated                               sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.PayPalOrderID, &captureID, &o.Status, &o.Currency, &o.Total, &email, &payer, &shipping, &cartID, &o.CreatedAt, &o.UpdatedAt,
		&shipStatus, &carrier, &tracking, &shipUpdated); err != nil {
		return Order{}, err
	}
	o.Total = o.Total.Round(2)
	o.CaptureID = captureID.String
	o.Email = email.String
	o.PayerName = payer.String
	o.CartID = cartID.String
	if shipping.Valid && shipping.String != "" {
		o.Shipping = json.RawMessage(shipping.String)
	}
	if shipStatus.Valid {
		o.ShippingState = &ShippingStatus{
			Status:         shipStatus.String,
			Carrier:        carrier.String,
			TrackingNumber: tracking.String,
			UpdatedAt:      shipUpdated.Time,
		}
	}
	return o, nil
}

// Get returns an order with its lines and shipping state.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o LEFT JOIN shipping_status s ON s.order_id = o.id WHERE o.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, errors.Wrap(err, "get order")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT product_id, name, unit_price, quantity FROM order_items WHERE order_id = ? ORDER BY id`, id)
	if err != nil {
		return Order{}, errors.Wrap(err, "list order items")
	}
	defer rows.Close()
	o.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return Order{}, errors.Wrap(err, "scan order item")
		}
		it.UnitPrice = it.UnitPrice.Round(2)
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, errors.Wrap(err, "iterate order items")
	}
	return o, nil
}

type ListFilter struct {
	// ShippingStatus filters on the shipping row; empty means all.
	ShippingStatus string
	Cursor         string
	Limit          int
}

type ListResult struct {
	Items      []Order `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// List pages through orders newest first with a (created_at, id) keyset
// cursor.
func (s *Service) List(ctx context.Context, f ListFilter) (ListResult, error) {
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 50
	}
	cursorTime, cursorID, err := parseCursor(f.Cursor)
	if err != nil {
		return ListResult{}, err
	}

	where := []string{"1 = 1"}
	args := []any{}
	if f.ShippingStatus != "" {
		st := NormalizeShippingStatus(f.ShippingStatus)
		if st == "" {
			return ListResult{}, ErrInvalidStatus
		}
		where = append(where, "s.status = ?")
		args = append(args, st)
	}
	if !cursorTime.IsZero() {
		where = append(where, "(o.created_at < ? OR (o.created_at = ? AND o.id < ?))")
		args = append(args, cursorTime, cursorTime, cursorID)
	}
	args = append(args, f.Limit+1)
	q := fmt.Sprintf(`SELECT %s FROM orders o LEFT JOIN shipping_status s ON s.order_id = o.id
		WHERE %s ORDER BY o.created_at DESC, o.id DESC LIMIT ?`, orderColumns, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return ListResult{}, errors.Wrap(err, "list orders")
	}
	defer rows.Close()
	items := make([]Order, 0, f.Limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return ListResult{}, errors.Wrap(err, "scan order")
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, errors.Wrap(err, "iterate orders")
	}

	res := ListResult{Items: items}
	if len(items) > f.Limit {
		last := items[f.Limit-1]
		res.Items = items[:f.Limit]
		res.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return res, nil
}

type ShippingUpdate struct {
	Status         string  `json:"status"`
	Carrier        *string `json:"carrier,omitempty"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
}

// UpdateShipping sets the shipping status (and optionally carrier and
// tracking number) of an order.
func (s *Service) UpdateShipping(ctx context.Context, orderID string, u ShippingUpdate) (Order, error) {
	status := NormalizeShippingStatus(u.Status)
	if status == "" {
		return Order{}, ErrInvalidStatus
	}
	assignments := []string{"status = ?", "updated_at = ?"}
	args := []any{status, s.now()}
	if u.Carrier != nil {
		assignments = append(assignments, "carrier = ?")
		args = append(args, storage.NilIfEmpty(strings.TrimSpace(*u.Carrier)))
	}
	if u.TrackingNumber != nil {
		assignments = append(assignments, "tracking_number = ?")
		args = append(args, storage.NilIfEmpty(strings.TrimSpace(*u.TrackingNumber)))
	}
	args = append(args, orderID)
	res, err := s.db.ExecContext(ctx, `UPDATE shipping_status SET `+strings.Join(assignments, ", ")+` WHERE order_id = ?`, args...)
	if err != nil {
		return Order{}, errors.Wrap(err, "update shipping status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Order{}, ErrNotFound
	}
	return s.Get(ctx, orderID)
}

func parseCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", ErrInvalidCursor
	}
	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return time.Unix(0, n).UTC(), parts[1], nil
}

func encodeCursor(ts time.Time, id string) string {
	return fmt.Sprintf("%d:%s", ts.UTC().UnixNano(), id)
}
