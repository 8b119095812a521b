package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/clientstate"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/favorites"
)

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, key)), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadRequest("invalid " + key)
	}
	return id, nil
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	items, cached, err := s.Catalog.ListActive(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "cached": cached})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.Catalog.ActiveDetail(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) favorites(w http.ResponseWriter, r *http.Request) {
	q := catalog.FavoritesQuery{
		Limit:    intParam(r, "limit", 12, 1, 50),
		Offset:   intParam(r, "offset", 0, 0, 5000),
		MinStock: intParam(r, "minStock", 1, 0, 1000),
		Exclude:  idsParam(r.URL.Query().Get("exclude")),
	}
	if random := boolParam(r, "random"); random != nil {
		q.Random = *random
	}
	items, err := s.Catalog.Favorites(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// favoritesRail runs the rail's initial load for a cart and returns the
// visible window. The cart comes from ?cart=ids, else the caller's cart.
func (s *Server) favoritesRail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	size := intParam(r, "size", favorites.DefaultWindowSize, 1, 24)

	var inCart []catalog.Product
	if raw := r.URL.Query().Get("cart"); raw != "" {
		products, err := s.Catalog.GetMany(ctx, idsParam(raw))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		inCart = products
	} else if id := s.cartID(r); id != "" {
		c, err := s.Carts.Get(ctx, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		for _, it := range c.Items {
			inCart = append(inCart, catalog.Product{ID: it.ProductID, Name: it.Name, Category: it.Category, Price: it.Price})
		}
	}

	state := clientstate.Initial()
	for _, p := range inCart {
		state.Items = append(state.Items, clientstate.CartItem{Product: p, Quantity: 1})
	}
	rail := favorites.New(favorites.CatalogFetcher{Catalog: s.Catalog, MinStock: 1}, clientstate.NewStore(state), favorites.Options{
		WindowSize: size,
		Log:        s.log,
	})
	defer rail.Close()

	if err := rail.Initialize(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"phase": favorites.PhaseError.String(), "items": []catalog.Product{}, "error": "favorites unavailable"})
		return
	}
	st := rail.State()
	writeJSON(w, http.StatusOK, map[string]any{"phase": st.Phase.String(), "items": st.Window, "pool_size": len(st.Pool)})
}
