package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
)

// mediaConfig hands the admin UI what it needs to upload directly to the
// asset host.
func (s *Server) mediaConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cloud_name":    s.Media.CloudName,
		"upload_preset": s.Media.UploadPreset,
		"configured":    s.Media.CloudName != "" && s.Media.UploadPreset != "",
	})
}

func (s *Server) saveMedia(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("productId")), 10, 64)
	if err != nil || productID <= 0 {
		s.fail(w, r, errBadRequest("invalid productId"))
		return
	}
	var body struct {
		Items []catalog.MediaInput `json:"items"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	media, err := s.Catalog.SaveMedia(r.Context(), productID, body.Items)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "media": media})
}

func (s *Server) listMedia(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	media, err := s.Catalog.ListMedia(r.Context(), productID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "media": media})
}

func (s *Server) reorderMedia(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	media, err := s.Catalog.ReorderMedia(r.Context(), productID, body.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "media": media})
}

func (s *Server) setPrimaryMedia(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	media, err := s.Catalog.SetPrimary(r.Context(), productID, chi.URLParam(r, "mediaId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "media": media})
}

func (s *Server) deleteMedia(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Catalog.DeleteMedia(r.Context(), productID, chi.URLParam(r, "mediaId")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Media deleted"})
}
