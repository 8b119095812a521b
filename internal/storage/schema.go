package storage

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// schema is written once for both dialects; {{serial}} and {{ts}} are
// substituted per driver.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id {{serial}},
		name TEXT NOT NULL,
		description TEXT,
		price NUMERIC(10,2) NOT NULL DEFAULT 0,
		category TEXT,
		stock INTEGER,
		image_url TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		CHECK (price >= 0),
		CHECK (stock IS NULL OR stock >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_active_created ON products (is_active, created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_products_favorite ON products (is_favorite, is_active)`,

	`CREATE TABLE IF NOT EXISTS product_media (
		id TEXT PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		public_id TEXT,
		kind TEXT NOT NULL DEFAULT 'image' CHECK (kind IN ('image','video')),
		alt_text TEXT,
		width INTEGER,
		height INTEGER,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_media_product_sort ON product_media (product_id, sort_order)`,

	`CREATE TABLE IF NOT EXISTS cart_items (
		cart_id TEXT NOT NULL,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		added_at {{ts}} NOT NULL,
		PRIMARY KEY (cart_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		paypal_order_id TEXT NOT NULL UNIQUE,
		capture_id TEXT,
		status TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		total NUMERIC(10,2) NOT NULL,
		email TEXT,
		payer_name TEXT,
		shipping_json TEXT,
		cart_id TEXT,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders (created_at DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id {{serial}},
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		unit_price NUMERIC(10,2) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,

	`CREATE TABLE IF NOT EXISTS shipping_status (
		order_id TEXT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
		status TEXT NOT NULL CHECK (status IN ('pending','processing','shipped','delivered','cancelled')),
		carrier TEXT,
		tracking_number TEXT,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shipping_status_status ON shipping_status (status)`,
}

// EnsureSchema creates all tables and indexes when missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	serial, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
	if db.dialect == Postgres {
		serial, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	r := strings.NewReplacer("{{serial}}", serial, "{{ts}}", ts)
	for _, stmt := range schema {
		if _, err := db.sql.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return errors.Wrap(err, "ensure schema")
		}
	}
	return nil
}
