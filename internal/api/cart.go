package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	cartCookie = "cart_id"
	cartHeader = "X-Cart-ID"
)

// cartID reads the caller's cart id from the header or cookie.
func (s *Server) cartID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(cartHeader)); validCartID(id) {
		return id
	}
	if c, err := r.Cookie(cartCookie); err == nil && validCartID(c.Value) {
		return c.Value
	}
	return ""
}

// ensureCartID returns the caller's cart id, issuing a cookie for a new
// one when there is none.
func (s *Server) ensureCartID(w http.ResponseWriter, r *http.Request) string {
	if id := s.cartID(r); id != "" {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cartCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   60 * 60 * 24 * 30,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func validCartID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.Carts.Get(r.Context(), s.ensureCartID(w, r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.ProductID <= 0 {
		s.fail(w, r, errBadRequest("product_id is required"))
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	c, err := s.Carts.Add(r.Context(), s.ensureCartID(w, r), body.ProductID, body.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) setCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Carts.SetQuantity(r.Context(), s.ensureCartID(w, r), productID, body.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Carts.Remove(r.Context(), s.ensureCartID(w, r), productID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	id := s.ensureCartID(w, r)
	if err := s.Carts.Clear(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Carts.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
