package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/orders"
)

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) {
	res, err := s.Orders.List(r.Context(), orders.ListFilter{
		ShippingStatus: strings.TrimSpace(r.URL.Query().Get("status")),
		Cursor:         strings.TrimSpace(r.URL.Query().Get("cursor")),
		Limit:          intParam(r, "limit", 50, 1, 200),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res.Items, "next_cursor": res.NextCursor})
}

func (s *Server) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

func (s *Server) adminUpdateShipping(w http.ResponseWriter, r *http.Request) {
	var u orders.ShippingUpdate
	if err := decodeJSON(r, &u); err != nil {
		s.fail(w, r, err)
		return
	}
	o, err := s.Orders.UpdateShipping(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}
