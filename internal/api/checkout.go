package api

import (
	"net/http"
	"strings"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/orders"
)

func (s *Server) createPayPalOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []orders.Line `json:"items"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	order, total, err := s.Checkout.Create(r.Context(), body.Items, s.cartID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": order.ID, "status": order.Status, "total": total.StringFixed(2)})
}

func (s *Server) capturePayPalOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CaptureInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(in.OrderID) == "" {
		s.fail(w, r, errBadRequest("order_id is required"))
		return
	}
	if in.CartID == "" {
		in.CartID = s.cartID(r)
	}
	order, created, err := s.Checkout.Capture(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{"success": true, "order": order})
}
