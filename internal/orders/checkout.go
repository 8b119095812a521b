package orders

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/payment/paypal"
)

var (
	ErrEmptyOrder        = errors.New("order has no items")
	ErrPaymentIncomplete = errors.New("payment was not completed")
)

// StatusAmountMismatch marks a captured order whose captured amount differs
// from the catalog total at capture time. The money is taken, so the order
// is recorded for reconciliation instead of being dropped.
const StatusAmountMismatch = "AMOUNT_MISMATCH"

// UnavailableError names a line that can no longer be sold as requested.
type UnavailableError struct {
	ProductID int64
	Reason    string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %d: %s", e.ProductID, e.Reason)
}

// Line is a client-submitted order line. Prices are never taken from the
// client.
type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Payments is the payment provider surface checkout needs.
type Payments interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (paypal.Capture, error)
}

type Catalog interface {
	GetMany(ctx context.Context, ids []int64) ([]catalog.Product, error)
}

// Checkout prices carts against the catalog and drives the PayPal
// create/capture flow.
type Checkout struct {
	orders   *Service
	catalog  Catalog
	pay      Payments
	currency string
	log      *zap.Logger
}

func NewCheckout(orders *Service, cat Catalog, pay Payments, currency string, log *zap.Logger) *Checkout {
	if log == nil {
		log = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &Checkout{orders: orders, catalog: cat, pay: pay, currency: currency, log: log.Named("checkout")}
}

// Price merges duplicate lines and prices them from the database. Every
// product must be active and have enough stock.
func (c *Checkout) Price(ctx context.Context, lines []Line) ([]Item, decimal.Decimal, error) {
	qty := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 || l.Quantity < 1 || l.Quantity > 99 {
			return nil, decimal.Zero, &UnavailableError{ProductID: l.ProductID, Reason: "invalid quantity"}
		}
		qty[l.ProductID] += l.Quantity
	}
	if len(qty) == 0 {
		return nil, decimal.Zero, ErrEmptyOrder
	}
	ids := make([]int64, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := c.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	byID := make(map[int64]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]Item, 0, len(ids))
	total := decimal.Zero
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || !p.IsActive {
			return nil, decimal.Zero, &UnavailableError{ProductID: id, Reason: "not available"}
		}
		if !p.InStock(qty[id]) {
			return nil, decimal.Zero, &UnavailableError{ProductID: id, Reason: "insufficient stock"}
		}
		price := p.Price.Round(2)
		items = append(items, Item{ProductID: id, Name: p.Name, UnitPrice: price, Quantity: qty[id]})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(qty[id]))))
	}
	return items, total, nil
}

// Create opens a PayPal order for the re-priced lines.
func (c *Checkout) Create(ctx context.Context, lines []Line, cartID string) (paypal.Order, decimal.Decimal, error) {
	if c.pay == nil {
		return paypal.Order{}, decimal.Zero, paypal.ErrNotConfigured
	}
	items, total, err := c.Price(ctx, lines)
	if err != nil {
		return paypal.Order{}, decimal.Zero, err
	}
	req := paypal.CreateOrderRequest{Currency: c.currency, ReferenceID: cartID}
	for _, it := range items {
		req.Items = append(req.Items, paypal.Item{
			Name:       it.Name,
			SKU:        strconv.FormatInt(it.ProductID, 10),
			Quantity:   it.Quantity,
			UnitAmount: it.UnitPrice,
		})
	}
	order, err := c.pay.CreateOrder(ctx, req)
	if err != nil {
		return paypal.Order{}, decimal.Zero, err
	}
	c.log.Info("paypal order created", zap.String("paypal_order_id", order.ID), zap.String("total", total.StringFixed(2)))
	return order, total, nil
}

type CaptureInput struct {
	OrderID string `json:"order_id"`
	CartID  string `json:"cart_id,omitempty"`
	Items   []Line `json:"items"`
	Email   string `json:"email,omitempty"`
}

// Capture captures an approved PayPal order and records it. Repeating the
// capture of an order that was already recorded returns the stored order
// without contacting PayPal. A capture whose amount differs from the
// re-priced total is still recorded, with the captured total and
// StatusAmountMismatch.
func (c *Checkout) Capture(ctx context.Context, in CaptureInput) (Order, bool, error) {
	if c.pay == nil {
		return Order{}, false, paypal.ErrNotConfigured
	}
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.OrderID == "" {
		return Order{}, false, errors.New("missing order id")
	}
	if existing, err := c.orders.ByPayPalID(ctx, in.OrderID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Order{}, false, err
	}

	items, total, err := c.Price(ctx, in.Items)
	if err != nil {
		return Order{}, false, err
	}
	capture, err := c.pay.CaptureOrder(ctx, in.OrderID)
	if err != nil {
		return Order{}, false, err
	}
	if capture.Status != "COMPLETED" {
		c.log.Warn("capture not completed", zap.String("paypal_order_id", in.OrderID), zap.String("status", capture.Status))
		return Order{}, false, ErrPaymentIncomplete
	}
	status, currency := capture.Status, c.currency
	if !capture.Amount.Round(2).Equal(total) || (capture.Currency != "" && capture.Currency != c.currency) {
		c.log.Error("captured amount mismatch",
			zap.String("paypal_order_id", in.OrderID),
			zap.String("capture_id", capture.CaptureID),
			zap.String("captured", capture.Amount.StringFixed(2)),
			zap.String("expected", total.StringFixed(2)),
			zap.String("currency", capture.Currency),
		)
		status, total = StatusAmountMismatch, capture.Amount.Round(2)
		if capture.Currency != "" {
			currency = capture.Currency
		}
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = capture.PayerEmail
	}
	order, created, err := c.orders.Persist(ctx, NewOrder{
		PayPalOrderID: in.OrderID,
		CaptureID:     capture.CaptureID,
		Status:        status,
		Currency:      currency,
		Total:         total,
		Email:         email,
		PayerName:     capture.PayerName,
		Shipping:      capture.Shipping,
		CartID:        in.CartID,
		Items:         items,
	})
	if err != nil {
		c.log.Error("persist captured order", zap.String("paypal_order_id", in.OrderID), zap.Error(err))
		return Order{}, false, err
	}
	if created {
		c.log.Info("order recorded", zap.String("order_id", order.ID), zap.String("paypal_order_id", in.OrderID))
	}
	return order, created, nil
}
