package catalog

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage"
)

// Media is an uploaded asset attached to a product. Only metadata is kept
// here; the binary lives with the asset host.
type Media struct {
	ID        string    `json:"id"`
	ProductID int64     `json:"product_id"`
	URL       string    `json:"url"`
	PublicID  string    `json:"public_id,omitempty"`
	Kind      string    `json:"kind"`
	AltText   string    `json:"alt_text,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	SortOrder int       `json:"sort_order"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// MediaInput is one item of a batch save.
type MediaInput struct {
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	Kind      string `json:"kind"`
	AltText   string `json:"alt_text"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsPrimary bool   `json:"is_primary"`
}

const maxMediaBatch = 50

const mediaColumns = `id, product_id, url, public_id, kind, alt_text, width, height, sort_order, is_primary, created_at`

func (in *MediaInput) normalize(i int) error {
	in.URL = strings.TrimSpace(in.URL)
	in.PublicID = strings.TrimSpace(in.PublicID)
	in.AltText = strings.TrimSpace(in.AltText)
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	field := "items[" + strconv.Itoa(i) + "]"
	u, err := url.Parse(in.URL)
	if in.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(field+".url", "url must be an http(s) URL")
	}
	switch in.Kind {
	case "":
		in.Kind = "image"
	case "image", "video":
	default:
		return invalid(field+".kind", "kind must be image or video")
	}
	if in.Width < 0 || in.Height < 0 {
		return invalid(field, "dimensions must not be negative")
	}
	if len([]rune(in.AltText)) > 300 {
		return invalid(field+".alt_text", "alt_text must be at most 300 characters")
	}
	return nil
}

func scanMedia(row rowScanner) (Media, error) {
	var (
		m             Media
		publicID, alt sql.NullString
		width, height sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.ProductID, &m.URL, &publicID, &m.Kind, &alt, &width, &height, &m.SortOrder, &m.IsPrimary, &m.CreatedAt); err != nil {
		return Media{}, err
	}
	m.PublicID = publicID.String
	m.AltText = alt.String
	m.Width = int(width.Int64)
	m.Height = int(height.Int64)
	return m, nil
}

func listMedia(ctx context.Context, q storage.Queryer, productID int64) ([]Media, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+mediaColumns+` FROM product_media WHERE product_id = ? ORDER BY sort_order, created_at, id`, productID)
	if err != nil {
		return nil, errors.Wrap(err, "list media")
	}
	defer rows.Close()
	items := make([]Media, 0, 8)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan media")
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate media")
	}
	return items, nil
}

// ListMedia returns a product's media in display order.
func (s *Service) ListMedia(ctx context.Context, productID int64) ([]Media, error) {
	return listMedia(ctx, s.db, productID)
}

// SaveMedia appends a batch of upload metadata in one transaction. A
// primary flag in the batch wins over the stored primary; a product left
// without a primary gets its first media promoted.
func (s *Service) SaveMedia(ctx context.Context, productID int64, items []MediaInput) ([]Media, error) {
	if len(items) == 0 {
		return nil, invalid("items", "at least one media item is required")
	}
	if len(items) > maxMediaBatch {
		return nil, invalid("items", "at most 50 media items per batch")
	}
	for i := range items {
		if err := items[i].normalize(i); err != nil {
			return nil, err
		}
	}

	var saved []Media
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := getProduct(ctx, tx, productID); err != nil {
			return err
		}
		var next int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order), -1) + 1 FROM product_media WHERE product_id = ?`, productID).Scan(&next); err != nil {
			return errors.Wrap(err, "next sort order")
		}
		now := s.now()
		for _, in := range items {
			if in.IsPrimary {
				if _, err := tx.ExecContext(ctx, `UPDATE product_media SET is_primary = FALSE WHERE product_id = ?`, productID); err != nil {
					return errors.Wrap(err, "clear primary")
				}
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO product_media (`+mediaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), productID, in.URL, storage.NilIfEmpty(in.PublicID), in.Kind, storage.NilIfEmpty(in.AltText),
				nullableDim(in.Width), nullableDim(in.Height), next, in.IsPrimary, now,
			); err != nil {
				return errors.Wrap(err, "insert media")
			}
			next++
		}
		if err := ensurePrimary(ctx, tx, productID); err != nil {
			return err
		}
		var err error
		saved, err = listMedia(ctx, tx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return saved, nil
}

// ReorderMedia rewrites sort_order to follow ids. ids must be exactly the
// product's media set.
func (s *Service) ReorderMedia(ctx context.Context, productID int64, ids []string) ([]Media, error) {
	var out []Media
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		current, err := listMedia(ctx, tx, productID)
		if err != nil {
			return err
		}
		if len(current) != len(ids) {
			return invalid("ids", "ids must list every media of the product exactly once")
		}
		known := make(map[string]bool, len(current))
		for _, m := range current {
			known[m.ID] = false
		}
		for _, id := range ids {
			seen, ok := known[id]
			if !ok || seen {
				return invalid("ids", "ids must list every media of the product exactly once")
			}
			known[id] = true
		}
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE product_media SET sort_order = ? WHERE id = ? AND product_id = ?`, i, id, productID); err != nil {
				return errors.Wrap(err, "update sort order")
			}
		}
		out, err = listMedia(ctx, tx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return out, nil
}

// SetPrimary makes mediaID the product's only primary media.
func (s *Service) SetPrimary(ctx context.Context, productID int64, mediaID string) ([]Media, error) {
	var out []Media
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		if err := mediaExists(ctx, tx, productID, mediaID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE product_media SET is_primary = (id = ?) WHERE product_id = ?`, mediaID, productID); err != nil {
			return errors.Wrap(err, "set primary")
		}
		var err error
		out, err = listMedia(ctx, tx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return out, nil
}

// DeleteMedia removes one media row, promoting another when the primary
// goes away.
func (s *Service) DeleteMedia(ctx context.Context, productID int64, mediaID string) error {
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM product_media WHERE id = ? AND product_id = ?`, mediaID, productID)
		if err := affectedOne(res, err, ErrMediaNotFound); err != nil {
			return err
		}
		return ensurePrimary(ctx, tx, productID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func mediaExists(ctx context.Context, q storage.Queryer, productID int64, mediaID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM product_media WHERE id = ? AND product_id = ?`, mediaID, productID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMediaNotFound
	}
	if err != nil {
		return errors.Wrap(err, "lookup media")
	}
	return nil
}

func ensurePrimary(ctx context.Context, q storage.Queryer, productID int64) error {
	var primaries int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_media WHERE product_id = ? AND is_primary = TRUE`, productID).Scan(&primaries); err != nil {
		return errors.Wrap(err, "count primary")
	}
	if primaries > 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, `UPDATE product_media SET is_primary = TRUE WHERE id = (
		SELECT id FROM product_media WHERE product_id = ? ORDER BY sort_order, created_at, id LIMIT 1)`, productID)
	if err != nil {
		return errors.Wrap(err, "promote primary")
	}
	return nil
}

func nullableDim(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}
