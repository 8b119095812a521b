// Package favorites drives the "favorites" rail: a fixed-size window of
// favorite products that never shows anything already in the cart and
// refills itself from a pool and, when that runs dry, from the catalog.
package favorites

import (
	"sort"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
)

const DefaultWindowSize = 6

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "error"
	}
}

// Toast announces a product that was just added to the cart.
type Toast struct {
	Name string `json:"name"`
}

// State is a snapshot of the rail. Transition functions return new
// states and leave their input alone.
type State struct {
	Phase  Phase
	Window []catalog.Product
	Pool   []catalog.Product
	Err    error
	Toast  *Toast
}

// Rand is the randomness the transitions need; *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Cart is the cart view used by the transitions.
type Cart struct {
	IDs        map[int64]struct{}
	Categories map[string]struct{}
}

func (c Cart) Has(id int64) bool {
	_, ok := c.IDs[id]
	return ok
}

// Seed builds the first ready state from the initial batch. Products
// sharing a category with the cart score 2, others 1; the stable sort
// keeps catalog order within a score. The first size products are shown,
// the rest pooled.
func Seed(batch []catalog.Product, cart Cart, size int) State {
	type scored struct {
		p     catalog.Product
		score int
	}
	seen := make(map[int64]struct{}, len(batch))
	candidates := make([]scored, 0, len(batch))
	for _, p := range batch {
		if _, dup := seen[p.ID]; dup || cart.Has(p.ID) {
			continue
		}
		seen[p.ID] = struct{}{}
		candidates = append(candidates, scored{p: p, score: score(p, cart)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	s := State{Phase: PhaseReady, Window: []catalog.Product{}, Pool: []catalog.Product{}}
	for i, c := range candidates {
		if i < size {
			s.Window = append(s.Window, c.p)
		} else {
			s.Pool = append(s.Pool, c.p)
		}
	}
	return s
}

func score(p catalog.Product, cart Cart) int {
	for _, c := range p.Categories() {
		if _, ok := cart.Categories[c]; ok {
			return 2
		}
	}
	return 1
}

// Prune drops every window and pool product that is in the cart.
func Prune(s State, cart Cart) State {
	s.Window = without(s.Window, cart)
	s.Pool = without(s.Pool, cart)
	return s
}

func without(list []catalog.Product, cart Cart) []catalog.Product {
	out := make([]catalog.Product, 0, len(list))
	for _, p := range list {
		if !cart.Has(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// Fill moves products from the front of the pool into the window until it
// holds size products or the pool is empty.
func Fill(s State, size int) State {
	if len(s.Window) >= size || len(s.Pool) == 0 {
		return s
	}
	n := size - len(s.Window)
	if n > len(s.Pool) {
		n = len(s.Pool)
	}
	window := make([]catalog.Product, 0, size)
	window = append(window, s.Window...)
	window = append(window, s.Pool[:n]...)
	s.Window = window
	s.Pool = append([]catalog.Product{}, s.Pool[n:]...)
	return s
}

// Merge adds a fetched batch to the pool, skipping anything already shown,
// pooled or in the cart, and shuffles the pool.
func Merge(s State, batch []catalog.Product, cart Cart, rnd Rand) State {
	known := make(map[int64]struct{}, len(s.Window)+len(s.Pool))
	for _, p := range s.Window {
		known[p.ID] = struct{}{}
	}
	pool := make([]catalog.Product, 0, len(s.Pool)+len(batch))
	for _, p := range s.Pool {
		known[p.ID] = struct{}{}
		pool = append(pool, p)
	}
	for _, p := range batch {
		if _, ok := known[p.ID]; ok || cart.Has(p.ID) {
			continue
		}
		known[p.ID] = struct{}{}
		pool = append(pool, p)
	}
	rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.Pool = pool
	return s
}

// Replace swaps the window slot holding productID for a random pool
// candidate. requestedIndex is trusted when that slot holds the product,
// otherwise the window is searched. With an empty pool the slot is
// removed. found is false when the product is not visible.
func Replace(s State, productID int64, requestedIndex int, rnd Rand) (State, bool) {
	idx := -1
	if requestedIndex >= 0 && requestedIndex < len(s.Window) && s.Window[requestedIndex].ID == productID {
		idx = requestedIndex
	} else {
		for i, p := range s.Window {
			if p.ID == productID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return s, false
	}

	window := append([]catalog.Product{}, s.Window...)
	if len(s.Pool) == 0 {
		s.Window = append(window[:idx], window[idx+1:]...)
		return s, true
	}
	pick := rnd.IntN(len(s.Pool))
	window[idx] = s.Pool[pick]
	pool := make([]catalog.Product, 0, len(s.Pool)-1)
	pool = append(pool, s.Pool[:pick]...)
	pool = append(pool, s.Pool[pick+1:]...)
	s.Window = window
	s.Pool = pool
	return s, true
}

// ids lists every product id the rail currently holds.
func (s State) ids() []int64 {
	out := make([]int64, 0, len(s.Window)+len(s.Pool))
	for _, p := range s.Window {
		out = append(out, p.ID)
	}
	for _, p := range s.Pool {
		out = append(out, p.ID)
	}
	return out
}
