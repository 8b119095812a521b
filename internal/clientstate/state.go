// Package clientstate is the storefront's client-side store: cart lines,
// theme and a product cache, updated only through Reduce.
package clientstate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type CartItem struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

type State struct {
	Items    []CartItem                `json:"items"`
	Theme    Theme                     `json:"theme"`
	Products map[int64]catalog.Product `json:"products"`
}

func Initial() State {
	return State{Items: []CartItem{}, Theme: ThemeLight, Products: map[int64]catalog.Product{}}
}

// CartIDs returns the set of product ids in the cart.
func (s State) CartIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(s.Items))
	for _, it := range s.Items {
		ids[it.Product.ID] = struct{}{}
	}
	return ids
}

func (s State) Count() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

func (s State) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Action is a state transition. The set is closed.
type Action interface {
	apply(State) State
}

// Reduce returns the state after a. s is never modified.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

// AddItem adds Quantity (default 1) units, capped at the product's stock
// when it is known. Out-of-stock products are ignored.
type AddItem struct {
	Product  catalog.Product
	Quantity int
}

func (a AddItem) apply(s State) State {
	qty := a.Quantity
	if qty < 1 {
		qty = 1
	}
	if a.Product.Stock != nil && *a.Product.Stock < 1 {
		return s
	}
	items := cloneItems(s.Items)
	for i := range items {
		if items[i].Product.ID == a.Product.ID {
			items[i].Product = a.Product
			items[i].Quantity = capStock(a.Product, items[i].Quantity+qty)
			s.Items = items
			return s
		}
	}
	s.Items = append(items, CartItem{Product: a.Product, Quantity: capStock(a.Product, qty)})
	return s
}

type RemoveItem struct {
	ProductID int64
}

func (a RemoveItem) apply(s State) State {
	items := make([]CartItem, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Product.ID != a.ProductID {
			items = append(items, it)
		}
	}
	s.Items = items
	return s
}

// SetQuantity overwrites a line's quantity; zero or less removes it.
type SetQuantity struct {
	ProductID int64
	Quantity  int
}

func (a SetQuantity) apply(s State) State {
	if a.Quantity < 1 {
		return RemoveItem{ProductID: a.ProductID}.apply(s)
	}
	items := cloneItems(s.Items)
	for i := range items {
		if items[i].Product.ID == a.ProductID {
			items[i].Quantity = capStock(items[i].Product, a.Quantity)
		}
	}
	s.Items = items
	return s
}

type ClearCart struct{}

func (ClearCart) apply(s State) State {
	s.Items = []CartItem{}
	return s
}

// SetTheme ignores unknown themes.
type SetTheme struct {
	Theme Theme
}

func (a SetTheme) apply(s State) State {
	if a.Theme == ThemeLight || a.Theme == ThemeDark {
		s.Theme = a.Theme
	}
	return s
}

type ToggleTheme struct{}

func (ToggleTheme) apply(s State) State {
	if s.Theme == ThemeDark {
		s.Theme = ThemeLight
	} else {
		s.Theme = ThemeDark
	}
	return s
}

// CacheProducts upserts products into the cache and refreshes matching
// cart lines, re-capping their quantities.
type CacheProducts struct {
	Products []catalog.Product
}

func (a CacheProducts) apply(s State) State {
	cache := make(map[int64]catalog.Product, len(s.Products)+len(a.Products))
	for id, p := range s.Products {
		cache[id] = p
	}
	for _, p := range a.Products {
		cache[p.ID] = p
	}
	s.Products = cache

	items := make([]CartItem, 0, len(s.Items))
	for _, it := range s.Items {
		if p, ok := cache[it.Product.ID]; ok {
			it.Product = p
			it.Quantity = capStock(p, it.Quantity)
		}
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	s.Items = items
	return s
}

// CachedProducts lists the product cache by id.
func (s State) CachedProducts() []catalog.Product {
	out := make([]catalog.Product, 0, len(s.Products))
	for _, p := range s.Products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func capStock(p catalog.Product, qty int) int {
	if p.Stock != nil && qty > *p.Stock {
		return *p.Stock
	}
	return qty
}

func cloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items), len(items)+1)
	copy(out, items)
	return out
}
