package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cache"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage"
)

// ActiveListKey is the cache key of the public product listing.
const ActiveListKey = "products:active"

const productColumns = `id, name, description, price, category, stock, image_url, is_active, is_favorite, created_at, updated_at`

// Service owns the products and product_media tables and the listing
// cache in front of them.
type Service struct {
	db       *storage.DB
	cache    *cache.Client
	cacheTTL time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewService(db *storage.DB, c *cache.Client, cacheTTL time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, cache: c, cacheTTL: cacheTTL, log: log.Named("catalog"), now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p                        Product
		desc, category, imageURL sql.NullString
		stock                    sql.NullInt64
		price                    decimal.Decimal
	)
	if err := row.Scan(&p.ID, &p.Name, &desc, &price, &category, &stock, &imageURL, &p.IsActive, &p.IsFavorite, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	p.Description = desc.String
	p.Price = price.Round(2)
	p.Category = category.String
	p.ImageURL = imageURL.String
	if stock.Valid {
		n := int(stock.Int64)
		p.Stock = &n
	}
	return p, nil
}

func collectProducts(rows *sql.Rows, capHint int) ([]Product, error) {
	defer rows.Close()
	items := make([]Product, 0, capHint)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return items, nil
}

func nullableStock(stock *int) any {
	if stock == nil {
		return nil
	}
	return *stock
}

// ---------------------------------------------------------------------------
// Public reads
// ---------------------------------------------------------------------------

// ListActive returns every active product, newest first, through the
// read-through cache. The boolean reports a cache hit.
func (s *Service) ListActive(ctx context.Context) ([]Product, bool, error) {
	return cache.Remember(ctx, s.cache, ActiveListKey, s.cacheTTL, s.listActiveDB)
}

func (s *Service) listActiveDB(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE is_active = TRUE ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list active products")
	}
	return collectProducts(rows, 32)
}

// Get returns a product regardless of its active flag.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q storage.Queryer, id int64) (Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, errors.Wrap(err, "get product")
	}
	return p, nil
}

// ActiveDetail returns an active product with its media.
func (s *Service) ActiveDetail(ctx context.Context, id int64) (Detail, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if !p.IsActive {
		return Detail{}, ErrNotFound
	}
	media, err := s.ListMedia(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return newDetail(p, media), nil
}

// GetMany returns the products with the given ids, in id order. Missing ids
// are skipped.
func (s *Service) GetMany(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id IN (`+storage.Placeholders(len(ids))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	return collectProducts(rows, len(ids))
}

// FavoritesQuery selects the favorites pool. Bounds are applied by
// Normalize.
type FavoritesQuery struct {
	Limit    int
	Offset   int
	Random   bool
	MinStock int
	Exclude  []int64
}

const (
	maxFavoritesLimit   = 50
	maxFavoritesOffset  = 5000
	maxFavoritesExclude = 50
	maxMinStock         = 1000
)

// Normalize clamps the query into its accepted ranges.
func (q FavoritesQuery) Normalize() FavoritesQuery {
	q.Limit = clamp(q.Limit, 1, maxFavoritesLimit)
	q.Offset = clamp(q.Offset, 0, maxFavoritesOffset)
	q.MinStock = clamp(q.MinStock, 0, maxMinStock)
	seen := make(map[int64]struct{}, len(q.Exclude))
	ex := make([]int64, 0, len(q.Exclude))
	for _, id := range q.Exclude {
		if _, dup := seen[id]; dup || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		ex = append(ex, id)
		if len(ex) == maxFavoritesExclude {
			break
		}
	}
	q.Exclude = ex
	return q
}

// Favorites returns active favorite products with stock at or above
// MinStock (untracked stock qualifies), excluding the given ids.
func (s *Service) Favorites(ctx context.Context, q FavoritesQuery) ([]Product, error) {
	q = q.Normalize()
	where := []string{"is_active = TRUE", "is_favorite = TRUE", "(stock IS NULL OR stock >= ?)"}
	args := []any{q.MinStock}
	if len(q.Exclude) > 0 {
		where = append(where, "id NOT IN ("+storage.Placeholders(len(q.Exclude))+")")
		for _, id := range q.Exclude {
			args = append(args, id)
		}
	}
	order := "created_at DESC, id DESC"
	if q.Random {
		order = "RANDOM()"
	}
	args = append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY %s LIMIT ? OFFSET ?`, productColumns, strings.Join(where, " AND "), order)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list favorites")
	}
	return collectProducts(rows, q.Limit)
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

// AdminFilter narrows the admin product table.
type AdminFilter struct {
	Query    string
	Category string
	Active   *bool
	Limit    int
	Offset   int
}

// AdminList returns a page of products, active or not, and the total that
// match the filter.
func (s *Service) AdminList(ctx context.Context, f AdminFilter) ([]Product, int, error) {
	f.Limit = clamp(f.Limit, 1, 200)
	f.Offset = clamp(f.Offset, 0, 100_000)

	where := []string{"1 = 1"}
	args := []any{}
	if q := strings.ToLower(cleanText(f.Query)); q != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?)")
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if c := strings.ToLower(cleanText(f.Category)); c != "" {
		where = append(where, "LOWER(COALESCE(category, '')) LIKE ?")
		args = append(args, "%"+c+"%")
	}
	if f.Active != nil {
		if *f.Active {
			where = append(where, "is_active = TRUE")
		} else {
			where = append(where, "is_active = FALSE")
		}
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+cond+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "admin list products")
	}
	items, err := collectProducts(rows, f.Limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := in.normalize(); err != nil {
		return Product{}, err
	}
	now := s.now()
	active := boolOr(in.IsActive, true)
	favorite := boolOr(in.IsFavorite, false)

	var id int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO products (name, description, price, category, stock, image_url, is_active, is_favorite, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		in.Name, storage.NilIfEmpty(in.Description), in.Price.StringFixed(2), storage.NilIfEmpty(in.Category),
		nullableStock(in.Stock), storage.NilIfEmpty(in.ImageURL), active, favorite, now, now,
	).Scan(&id)
	if err != nil {
		return Product{}, errors.Wrap(err, "insert product")
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// Replace overwrites every editable field (PUT). Flags left nil keep their
// stored values.
func (s *Service) Replace(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if err := in.normalize(); err != nil {
		return Product{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET name = ?, description = ?, price = ?, category = ?, stock = ?, image_url = ?, is_active = ?, is_favorite = ?, updated_at = ? WHERE id = ?`,
		in.Name, storage.NilIfEmpty(in.Description), in.Price.StringFixed(2), storage.NilIfEmpty(in.Category),
		nullableStock(in.Stock), storage.NilIfEmpty(in.ImageURL),
		boolOr(in.IsActive, current.IsActive), boolOr(in.IsFavorite, current.IsFavorite), s.now(), id,
	)
	if err := affectedOne(res, err, ErrNotFound); err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// Patch applies the set fields only (PATCH).
func (s *Service) Patch(ctx context.Context, id int64, p ProductPatch) (Product, error) {
	if err := p.normalize(); err != nil {
		return Product{}, err
	}
	assignments := make([]string, 0, 9)
	args := make([]any, 0, 10)
	set := func(col string, v any) {
		assignments = append(assignments, col+" = ?")
		args = append(args, v)
	}
	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.Description != nil {
		set("description", storage.NilIfEmpty(*p.Description))
	}
	if p.Price != nil {
		set("price", p.Price.StringFixed(2))
	}
	if p.Category != nil {
		set("category", storage.NilIfEmpty(*p.Category))
	}
	if p.Stock.Set {
		set("stock", nullableStock(p.Stock.Value))
	}
	if p.ImageURL != nil {
		set("image_url", storage.NilIfEmpty(*p.ImageURL))
	}
	if p.IsActive != nil {
		set("is_active", *p.IsActive)
	}
	if p.IsFavorite != nil {
		set("is_favorite", *p.IsFavorite)
	}
	set("updated_at", s.now())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE products SET `+strings.Join(assignments, ", ")+` WHERE id = ?`, args...)
	if err := affectedOne(res, err, ErrNotFound); err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err := affectedOne(res, err, ErrNotFound); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ExplainAdminList returns the planner output for the admin listing query.
func (s *Service) ExplainAdminList(ctx context.Context) (any, error) {
	if s.db.Dialect() != storage.Postgres {
		rows, err := s.db.QueryContext(ctx, `EXPLAIN QUERY PLAN SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC LIMIT 50`)
		if err != nil {
			return nil, errors.Wrap(err, "explain")
		}
		defer rows.Close()
		var steps []string
		for rows.Next() {
			var id, parent, notused int
			var detail string
			if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
				return nil, errors.Wrap(err, "scan plan")
			}
			steps = append(steps, detail)
		}
		return map[string]any{"dialect": "sqlite", "plan": steps}, rows.Err()
	}
	var raw []byte
	if err := s.db.QueryRowContext(ctx, `EXPLAIN (ANALYZE FALSE, FORMAT JSON) SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC LIMIT 50`).Scan(&raw); err != nil {
		return nil, errors.Wrap(err, "explain")
	}
	return map[string]any{"dialect": "postgres", "plan": string(raw)}, nil
}

// invalidate drops the cached public listing after any catalog write.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, ActiveListKey); err != nil && !errors.Is(err, cache.ErrDisabled) {
		s.log.Warn("listing cache not invalidated", zap.Error(err))
	}
}

func affectedOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return errors.Wrap(err, "exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
