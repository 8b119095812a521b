// Package adminclient talks to the admin product API and keeps an
// optimistic local copy of the product table.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client with its own cookie jar so the session survives
// between calls.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "cookie jar")
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second, Jar: jar},
	}, nil
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/login", body, nil)
}

type ListFilter struct {
	Query    string
	Category string
	Active   *bool
	Limit    int
	Offset   int
}

type productsEnvelope struct {
	Products []catalog.Product `json:"products"`
	Total    int               `json:"total"`
}

type productEnvelope struct {
	Product catalog.Product `json:"product"`
}

func (c *Client) ListProducts(ctx context.Context, f ListFilter) ([]catalog.Product, int, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Active != nil {
		q.Set("active", strconv.FormatBool(*f.Active))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/api/admin/manage_products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out productsEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Products, out.Total, nil
}

func (c *Client) PatchProduct(ctx context.Context, id int64, p catalog.ProductPatch) (catalog.Product, error) {
	var out productEnvelope
	if err := c.do(ctx, http.MethodPatch, productPath(id), patchBody(p), &out); err != nil {
		return catalog.Product{}, err
	}
	return out.Product, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, productPath(id), nil, nil)
}

func productPath(id int64) string {
	return "/api/admin/manage_products/" + strconv.FormatInt(id, 10)
}

// patchBody drops an unset stock field; sending it as null would clear
// stock tracking.
func patchBody(p catalog.ProductPatch) map[string]any {
	body := map[string]any{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.Price != nil {
		body["price"] = p.Price.StringFixed(2)
	}
	if p.Category != nil {
		body["category"] = *p.Category
	}
	if p.Stock.Set {
		body["stock"] = p.Stock
	}
	if p.ImageURL != nil {
		body["image_url"] = *p.ImageURL
	}
	if p.IsActive != nil {
		body["is_active"] = *p.IsActive
	}
	if p.IsFavorite != nil {
		body["is_favorite"] = *p.IsFavorite
	}
	return body
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, method+" "+path)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
