package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cache"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage/storagetest"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := storagetest.Open(t)
	svc := NewService(db, cache.NewClient(cache.NewMemory(), true, time.Second, nil), time.Minute, nil)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func mustCreate(t *testing.T, svc *Service, in ProductInput) Product {
	t.Helper()
	p, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create(%s) returned error: %v", in.Name, err)
	}
	return p
}

func TestCreateValidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := map[string]ProductInput{
		"name":     {Name: "  ", Price: decimal.NewFromInt(1)},
		"price":    {Name: "Shell", Price: decimal.NewFromInt(-1)},
		"stock":    {Name: "Shell", Price: decimal.NewFromInt(1), Stock: intPtr(-2)},
		"image":    {Name: "Shell", Price: decimal.NewFromInt(1), ImageURL: "ftp://x/y.png"},
		"decimals": {Name: "Shell", Price: decimal.RequireFromString("1.005")},
	}
	for field, in := range cases {
		_, err := svc.Create(ctx, in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", field, err)
		}
	}

	p := mustCreate(t, svc, ProductInput{Name: " Cowrie Necklace ", Price: decimal.RequireFromString("24.50"), Category: "Jewelry", Stock: intPtr(3)})
	if p.Name != "Cowrie Necklace" || !p.IsActive || p.IsFavorite {
		t.Fatalf("unexpected product %+v", p)
	}
	if !p.Price.Equal(decimal.RequireFromString("24.5")) {
		t.Fatalf("price mismatch: %s", p.Price)
	}
	if p.Stock == nil || *p.Stock != 3 {
		t.Fatalf("stock mismatch: %v", p.Stock)
	}
}

func TestListActiveInvalidatesCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, ProductInput{Name: "Sand Dollar", Price: decimal.NewFromInt(5)})
	mustCreate(t, svc, ProductInput{Name: "Hidden", Price: decimal.NewFromInt(5), IsActive: boolPtr(false)})

	first, hit, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("first ListActive returned error: %v", err)
	}
	if hit || len(first) != 1 {
		t.Fatalf("expected 1 uncached item, got %d hit=%v", len(first), hit)
	}
	if _, hit, _ := svc.ListActive(ctx); !hit {
		t.Fatal("expected second list to hit cache")
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	third, hit, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("third ListActive returned error: %v", err)
	}
	if hit {
		t.Fatal("expected cache invalidation after delete")
	}
	if len(third) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(third))
	}
	if err := svc.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFavoritesFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fav := func(name string, stock *int) Product {
		return mustCreate(t, svc, ProductInput{Name: name, Price: decimal.NewFromInt(10), Stock: stock, IsFavorite: boolPtr(true)})
	}
	a := fav("Abalone", intPtr(5))
	b := fav("Conch", nil)
	fav("Empty", intPtr(0))
	c := fav("Nautilus", intPtr(1))
	mustCreate(t, svc, ProductInput{Name: "Plain", Price: decimal.NewFromInt(10), Stock: intPtr(5)})
	mustCreate(t, svc, ProductInput{Name: "Retired", Price: decimal.NewFromInt(10), IsFavorite: boolPtr(true), IsActive: boolPtr(false)})

	got, err := svc.Favorites(ctx, FavoritesQuery{Limit: 10, MinStock: 1, Exclude: []int64{b.ID}})
	if err != nil {
		t.Fatalf("Favorites returned error: %v", err)
	}
	want := []int64{c.ID, a.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d favorites, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want id %d, got %d", i, id, got[i].ID)
		}
	}

	random, err := svc.Favorites(ctx, FavoritesQuery{Limit: 10, Random: true, MinStock: 1})
	if err != nil {
		t.Fatalf("random Favorites returned error: %v", err)
	}
	if len(random) != 3 {
		t.Fatalf("expected 3 random favorites, got %d", len(random))
	}
}

func TestFavoritesQueryNormalize(t *testing.T) {
	ex := make([]int64, 0, 80)
	for i := int64(1); i <= 80; i++ {
		ex = append(ex, i, i)
	}
	q := FavoritesQuery{Limit: 500, Offset: -3, MinStock: -1, Exclude: ex}.Normalize()
	if q.Limit != 50 || q.Offset != 0 || q.MinStock != 0 {
		t.Fatalf("unexpected clamp %+v", q)
	}
	if len(q.Exclude) != 50 {
		t.Fatalf("exclude should be capped at 50, got %d", len(q.Exclude))
	}
	if q := (FavoritesQuery{Limit: 0, Offset: 9000}).Normalize(); q.Limit != 1 || q.Offset != 5000 {
		t.Fatalf("unexpected clamp %+v", q)
	}
}

func TestPatchAndReplace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, ProductInput{Name: "Whelk", Price: decimal.NewFromInt(8), Stock: intPtr(2), IsFavorite: boolPtr(true)})

	if _, err := svc.Patch(ctx, p.ID, ProductPatch{}); err == nil {
		t.Fatal("expected empty patch to fail")
	}
	price := decimal.RequireFromString("9.99")
	patched, err := svc.Patch(ctx, p.ID, ProductPatch{Price: &price, Stock: OptionalInt{Set: true}, IsActive: boolPtr(false)})
	if err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if !patched.Price.Equal(price) || patched.Stock != nil || patched.IsActive || !patched.IsFavorite {
		t.Fatalf("unexpected patched product %+v", patched)
	}

	replaced, err := svc.Replace(ctx, p.ID, ProductInput{Name: "Whelk II", Price: decimal.NewFromInt(12), Stock: intPtr(4)})
	if err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if replaced.Name != "Whelk II" || replaced.IsActive || !replaced.IsFavorite || *replaced.Stock != 4 {
		t.Fatalf("replace should overwrite fields and keep unset flags: %+v", replaced)
	}
	if _, err := svc.Replace(ctx, 9999, ProductInput{Name: "x", Price: decimal.NewFromInt(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMediaLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, ProductInput{Name: "Scallop", Price: decimal.NewFromInt(3), ImageURL: "https://cdn.example.com/fallback.jpg"})

	d, err := svc.ActiveDetail(ctx, p.ID)
	if err != nil {
		t.Fatalf("ActiveDetail returned error: %v", err)
	}
	if d.ThumbnailURL != "https://cdn.example.com/fallback.jpg" || len(d.Media) != 0 {
		t.Fatalf("expected image_url fallback, got %+v", d)
	}

	saved, err := svc.SaveMedia(ctx, p.ID, []MediaInput{
		{URL: "https://cdn.example.com/a.jpg"},
		{URL: "https://cdn.example.com/b.mp4", Kind: "video"},
	})
	if err != nil {
		t.Fatalf("SaveMedia returned error: %v", err)
	}
	if len(saved) != 2 || !saved[0].IsPrimary || saved[1].IsPrimary || saved[1].SortOrder != 1 {
		t.Fatalf("first media should be promoted to primary: %+v", saved)
	}

	more, err := svc.SaveMedia(ctx, p.ID, []MediaInput{{URL: "https://cdn.example.com/c.jpg", IsPrimary: true}})
	if err != nil {
		t.Fatalf("second SaveMedia returned error: %v", err)
	}
	primaries := 0
	for _, m := range more {
		if m.IsPrimary {
			primaries++
			if m.URL != "https://cdn.example.com/c.jpg" {
				t.Fatalf("wrong primary %s", m.URL)
			}
		}
	}
	if primaries != 1 || more[2].SortOrder != 2 {
		t.Fatalf("expected a single primary and appended sort order: %+v", more)
	}

	if _, err := svc.ReorderMedia(ctx, p.ID, []string{more[0].ID}); err == nil {
		t.Fatal("partial reorder should be rejected")
	}
	reordered, err := svc.ReorderMedia(ctx, p.ID, []string{more[2].ID, more[0].ID, more[1].ID})
	if err != nil {
		t.Fatalf("ReorderMedia returned error: %v", err)
	}
	if reordered[0].ID != more[2].ID || reordered[2].ID != more[1].ID {
		t.Fatalf("unexpected order %+v", reordered)
	}

	if _, err := svc.SetPrimary(ctx, p.ID, more[1].ID); err != nil {
		t.Fatalf("SetPrimary returned error: %v", err)
	}
	if err := svc.DeleteMedia(ctx, p.ID, more[1].ID); err != nil {
		t.Fatalf("DeleteMedia returned error: %v", err)
	}
	d, err = svc.ActiveDetail(ctx, p.ID)
	if err != nil {
		t.Fatalf("ActiveDetail returned error: %v", err)
	}
	if len(d.Media) != 2 || !d.Media[0].IsPrimary || d.ThumbnailURL != d.Media[0].URL {
		t.Fatalf("deleting the primary should promote the first media: %+v", d)
	}
	if err := svc.DeleteMedia(ctx, p.ID, "nope"); !errors.Is(err, ErrMediaNotFound) {
		t.Fatalf("expected ErrMediaNotFound, got %v", err)
	}
	if _, err := svc.SaveMedia(ctx, 4242, []MediaInput{{URL: "https://cdn.example.com/x.jpg"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}
}

func TestTextIsComposed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	decomposed := "Cone\u0301 shell"
	p := mustCreate(t, svc, ProductInput{Name: decomposed, Price: decimal.NewFromInt(5), Category: "Pe\u0301rou"})
	if p.Name != "Con\u00e9 shell" || p.Category != "P\u00e9rou" {
		t.Fatalf("expected composed text, got %q / %q", p.Name, p.Category)
	}

	long := strings.Repeat("e\u0301", 200)
	if _, err := svc.Create(ctx, ProductInput{Name: long, Price: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("200 composed characters should be accepted: %v", err)
	}

	items, total, err := svc.AdminList(ctx, AdminFilter{Query: "cone\u0301"})
	if err != nil {
		t.Fatalf("AdminList returned error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != p.ID {
		t.Fatalf("expected decomposed query to find %d, got %d items", p.ID, total)
	}
}
