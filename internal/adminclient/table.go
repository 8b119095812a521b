package adminclient

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/optimistic"
)

// ErrUnknownProduct is returned for ids that are not in the loaded table.
var ErrUnknownProduct = errors.New("product not in table")

// API is the server surface the table mutates.
type API interface {
	ListProducts(ctx context.Context, f ListFilter) ([]catalog.Product, int, error)
	PatchProduct(ctx context.Context, id int64, p catalog.ProductPatch) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// Table is the admin product list. Every mutation is applied to the local
// copy first and undone if the server rejects it.
type Table struct {
	api    API
	cache  *optimistic.Cache
	key    string
	filter ListFilter
	// Parallel bounds bulk requests in flight.
	Parallel int
}

func NewTable(api API, cache *optimistic.Cache, filter ListFilter) *Table {
	return &Table{api: api, cache: cache, key: "admin:products", filter: filter, Parallel: 4}
}

// Load fetches the list and stores it under the table key.
func (t *Table) Load(ctx context.Context) ([]catalog.Product, error) {
	rows, _, err := t.api.ListProducts(ctx, t.filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []catalog.Product{}
	}
	if err := t.cache.SetJSON(t.key, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Rows returns the local copy, reloading it when a committed mutation
// invalidated it.
func (t *Table) Rows(ctx context.Context) ([]catalog.Product, error) {
	var rows []catalog.Product
	ok, err := t.cache.GetJSON(t.key, &rows)
	if err != nil || !ok || t.cache.Stale(t.key) {
		return t.Load(ctx)
	}
	return rows, nil
}

func (t *Table) Delete(ctx context.Context, id int64) error {
	return t.mutate(ctx, []int64{id}, func(rows []catalog.Product) []catalog.Product {
		out := rows[:0]
		for _, p := range rows {
			if p.ID != id {
				out = append(out, p)
			}
		}
		return out
	}, func(ctx context.Context, id int64) error {
		return t.api.DeleteProduct(ctx, id)
	})
}

func (t *Table) SetActive(ctx context.Context, id int64, active bool) error {
	return t.BulkUpdate(ctx, []int64{id}, catalog.ProductPatch{IsActive: &active})
}

// ToggleFavorite flips the favorite flag as currently shown.
func (t *Table) ToggleFavorite(ctx context.Context, id int64) error {
	rows, err := t.Rows(ctx)
	if err != nil {
		return err
	}
	for _, p := range rows {
		if p.ID == id {
			next := !p.IsFavorite
			return t.BulkUpdate(ctx, []int64{id}, catalog.ProductPatch{IsFavorite: &next})
		}
	}
	return ErrUnknownProduct
}

// BulkUpdate applies patch to every id. The requests run concurrently; if
// any fails, the whole table is restored.
func (t *Table) BulkUpdate(ctx context.Context, ids []int64, patch catalog.ProductPatch) error {
	return t.mutate(ctx, ids, func(rows []catalog.Product) []catalog.Product {
		want := make(map[int64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		for i := range rows {
			if want[rows[i].ID] {
				applyPatch(&rows[i], patch)
			}
		}
		return rows
	}, func(ctx context.Context, id int64) error {
		_, err := t.api.PatchProduct(ctx, id, patch)
		return err
	})
}

func (t *Table) mutate(ctx context.Context, ids []int64, local func([]catalog.Product) []catalog.Product, remote func(context.Context, int64) error) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.Rows(ctx); err != nil {
		return err
	}
	tx, err := optimistic.BeginJSON(t.cache, t.key, func(rows *[]catalog.Product) error {
		known := make(map[int64]bool, len(*rows))
		for _, p := range *rows {
			known[p.ID] = true
		}
		for _, id := range ids {
			if !known[id] {
				return ErrUnknownProduct
			}
		}
		*rows = local(*rows)
		return nil
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if t.Parallel > 0 {
		g.SetLimit(t.Parallel)
	}
	for _, id := range ids {
		id := id
		g.Go(func() error { return remote(gctx, id) })
	}
	if err := g.Wait(); err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	return nil
}

func applyPatch(p *catalog.Product, patch catalog.ProductPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Stock.Set {
		p.Stock = patch.Stock.Value
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.IsFavorite != nil {
		p.IsFavorite = *patch.IsFavorite
	}
}
