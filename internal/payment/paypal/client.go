// Package paypal is a small client for the PayPal Orders v2 REST API:
// create an order, then capture it after buyer approval.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"
)

// ErrNotConfigured is returned when no API credentials were provided.
var ErrNotConfigured = errors.New("paypal is not configured")

// APIError is a non-2xx PayPal response.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal %d %s: %s (debug_id=%s)", e.StatusCode, e.Name, e.Message, e.DebugID)
}

type Config struct {
	ClientID     string
	ClientSecret string
	// Mode is "sandbox" or "live"; BaseURL overrides it when set.
	Mode    string
	BaseURL string
	// HTTPClient is the transport used for token and API calls.
	HTTPClient *http.Client
}

type Client struct {
	http *http.Client
	base string
}

// New builds a client whose transport fetches and refreshes the OAuth2
// client-credentials token on demand.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = SandboxBaseURL
		if cfg.Mode == "live" {
			base = LiveBaseURL
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
	authed := cc.Client(tokenCtx)
	authed.Timeout = hc.Timeout
	return &Client{http: authed, base: base}, nil
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func newMoney(currency string, d decimal.Decimal) money {
	return money{CurrencyCode: currency, Value: d.StringFixed(2)}
}

// Item is one purchase-unit line.
type Item struct {
	Name       string
	SKU        string
	Quantity   int
	UnitAmount decimal.Decimal
}

type CreateOrderRequest struct {
	Currency string
	Items    []Item
	// ReferenceID is echoed back by PayPal on the purchase unit.
	ReferenceID string
}

// Total is the sum of the item lines.
func (r CreateOrderRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.UnitAmount.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Order is the subset of the order resource the storefront reads.
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	type item struct {
		Name       string `json:"name"`
		SKU        string `json:"sku,omitempty"`
		Quantity   string `json:"quantity"`
		UnitAmount money  `json:"unit_amount"`
	}
	type unit struct {
		ReferenceID string `json:"reference_id,omitempty"`
		Amount      struct {
			money
			Breakdown struct {
				ItemTotal money `json:"item_total"`
			} `json:"breakdown"`
		} `json:"amount"`
		Items []item `json:"items"`
	}
	if len(req.Items) == 0 {
		return Order{}, errors.New("paypal order needs at least one item")
	}
	u := unit{ReferenceID: req.ReferenceID}
	total := newMoney(req.Currency, req.Total())
	u.Amount.money = total
	u.Amount.Breakdown.ItemTotal = total
	for _, it := range req.Items {
		name := it.Name
		if len(name) > 127 {
			name = name[:127]
		}
		u.Items = append(u.Items, item{
			Name:       name,
			SKU:        it.SKU,
			Quantity:   fmt.Sprint(it.Quantity),
			UnitAmount: newMoney(req.Currency, it.UnitAmount),
		})
	}
	body := map[string]any{"intent": "CAPTURE", "purchase_units": []unit{u}}

	var out Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", "", body, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

// Capture is the result of capturing an approved order.
type Capture struct {
	OrderID    string
	Status     string
	CaptureID  string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	PayerName  string
	// Shipping is the raw shipping block of the first purchase unit.
	Shipping json.RawMessage
}

type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		Email string `json:"email_address"`
		Name  struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Shipping json.RawMessage `json:"shipping"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount money  `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CaptureOrder captures orderID. The order id doubles as the idempotency
// key, so a retried capture returns the original result.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (Capture, error) {
	if strings.TrimSpace(orderID) == "" {
		return Capture{}, errors.New("missing order id")
	}
	var resp captureResponse
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.do(ctx, http.MethodPost, path, orderID, struct{}{}, &resp); err != nil {
		return Capture{}, err
	}
	out := Capture{
		OrderID:    resp.ID,
		Status:     resp.Status,
		PayerEmail: resp.Payer.Email,
		PayerName:  strings.TrimSpace(resp.Payer.Name.GivenName + " " + resp.Payer.Name.Surname),
		Amount:     decimal.Zero,
	}
	for _, pu := range resp.PurchaseUnits {
		if out.Shipping == nil && len(pu.Shipping) > 0 {
			out.Shipping = pu.Shipping
		}
		for _, cp := range pu.Payments.Captures {
			if out.CaptureID == "" {
				out.CaptureID = cp.ID
			}
			amt, err := decimal.NewFromString(cp.Amount.Value)
			if err != nil {
				return Capture{}, errors.Wrap(err, "parse capture amount")
			}
			out.Amount = out.Amount.Add(amt)
			out.Currency = cp.Amount.CurrencyCode
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, requestID string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode paypal request")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build paypal request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "paypal request")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read paypal response")
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode paypal response")
	}
	return nil
}
