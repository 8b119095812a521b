package catalog

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNotFound      = errors.New("product not found")
	ErrMediaNotFound = errors.New("media not found")
)

// ValidationError names the offending field; the API returns it as a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// Product is a catalog row.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	// Stock is nil when the quantity on hand is not tracked.
	Stock      *int      `json:"stock"`
	ImageURL   string    `json:"image_url,omitempty"`
	IsActive   bool      `json:"is_active"`
	IsFavorite bool      `json:"is_favorite"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Categories splits the comma-separated category column into lower-case
// names.
func (p Product) Categories() []string {
	return SplitCategories(p.Category)
}

// InStock reports whether qty units can be sold. Untracked stock always can.
func (p Product) InStock(qty int) bool {
	return p.Stock == nil || *p.Stock >= qty
}

func SplitCategories(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Detail is a product with its media and resolved thumbnail.
type Detail struct {
	Product
	Media        []Media `json:"media"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
}

func newDetail(p Product, media []Media) Detail {
	d := Detail{Product: p, Media: media, ThumbnailURL: p.ImageURL}
	if d.Media == nil {
		d.Media = []Media{}
	}
	for _, m := range media {
		if m.IsPrimary {
			d.ThumbnailURL = m.URL
			return d
		}
	}
	if len(media) > 0 {
		d.ThumbnailURL = media[0].URL
	}
	return d
}

// ProductInput is the full body for create and PUT.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       *int            `json:"stock"`
	ImageURL    string          `json:"image_url"`
	IsActive    *bool           `json:"is_active"`
	IsFavorite  *bool           `json:"is_favorite"`
}

// ProductPatch carries only the fields to change.
type ProductPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Stock       OptionalInt      `json:"stock"`
	ImageURL    *string          `json:"image_url,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
	IsFavorite  *bool            `json:"is_favorite,omitempty"`
}

// OptionalInt tells "absent" apart from an explicit null, so a patch can
// clear stock tracking.
type OptionalInt struct {
	Set   bool
	Value *int
}

func (o *OptionalInt) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("stock must be an integer")
	}
	o.Value = &n
	return nil
}

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

func (p ProductPatch) empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Category == nil &&
		!p.Stock.Set && p.ImageURL == nil && p.IsActive == nil && p.IsFavorite == nil
}

func (in *ProductInput) normalize() error {
	in.Name = cleanText(in.Name)
	in.Description = cleanText(in.Description)
	in.Category = cleanText(in.Category)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := validateName(in.Name); err != nil {
		return err
	}
	if err := validatePrice(in.Price); err != nil {
		return err
	}
	if err := validateCategory(in.Category); err != nil {
		return err
	}
	if err := validateStock(in.Stock); err != nil {
		return err
	}
	return validateImageURL(in.ImageURL)
}

func (p *ProductPatch) normalize() error {
	if p.empty() {
		return invalid("body", "empty update payload")
	}
	if p.Name != nil {
		v := cleanText(*p.Name)
		if err := validateName(v); err != nil {
			return err
		}
		p.Name = &v
	}
	if p.Description != nil {
		v := cleanText(*p.Description)
		p.Description = &v
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
	}
	if p.Category != nil {
		v := cleanText(*p.Category)
		if err := validateCategory(v); err != nil {
			return err
		}
		p.Category = &v
	}
	if p.Stock.Set {
		if err := validateStock(p.Stock.Value); err != nil {
			return err
		}
	}
	if p.ImageURL != nil {
		v := strings.TrimSpace(*p.ImageURL)
		if err := validateImageURL(v); err != nil {
			return err
		}
		p.ImageURL = &v
	}
	return nil
}

// cleanText trims and composes s to NFC, so lengths count user-visible
// characters and search terms match stored text.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func validateName(name string) error {
	if name == "" {
		return invalid("name", "name is required")
	}
	if len([]rune(name)) > 200 {
		return invalid("name", "name must be at most 200 characters")
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return invalid("price", "price must not be negative")
	}
	if !price.Equal(price.Round(2)) {
		return invalid("price", "price must have at most 2 decimal places")
	}
	if price.GreaterThanOrEqual(decimal.NewFromInt(100_000_000)) {
		return invalid("price", "price is too large")
	}
	return nil
}

func validateCategory(category string) error {
	if len([]rune(category)) > 100 {
		return invalid("category", "category must be at most 100 characters")
	}
	return nil
}

func validateStock(stock *int) error {
	if stock != nil && *stock < 0 {
		return invalid("stock", "stock must not be negative")
	}
	return nil
}

func validateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("image_url", "image_url must be an http(s) URL")
	}
	return nil
}
