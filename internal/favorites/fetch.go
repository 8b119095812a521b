package favorites

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
)

// CatalogFetcher reads favorites straight from the catalog service.
type CatalogFetcher struct {
	Catalog  *catalog.Service
	MinStock int
}

func (f CatalogFetcher) Fetch(ctx context.Context, req FetchRequest) ([]catalog.Product, error) {
	return f.Catalog.Favorites(ctx, catalog.FavoritesQuery{
		Limit:    req.Limit,
		Random:   req.Random,
		MinStock: f.MinStock,
		Exclude:  req.Exclude,
	})
}

// HTTPFetcher reads favorites from GET /api/products/favorites.
type HTTPFetcher struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) ([]catalog.Product, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.Random {
		q.Set("random", "true")
	}
	if len(req.Exclude) > 0 {
		ids := make([]string, len(req.Exclude))
		for i, id := range req.Exclude {
			ids[i] = strconv.FormatInt(id, 10)
		}
		q.Set("exclude", strings.Join(ids, ","))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/api/products/favorites?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build favorites request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "fetch favorites")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("fetch favorites: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Items []catalog.Product `json:"items"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode favorites")
	}
	return out.Items, nil
}
