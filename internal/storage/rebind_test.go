package storage

import "testing"

func TestRebind(t *testing.T) {
	q := `SELECT id FROM products WHERE name = ? AND note <> 'why?' AND id IN (?, ?)`
	want := `SELECT id FROM products WHERE name = $1 AND note <> 'why?' AND id IN ($2, $3)`
	if got := rebind(Postgres, q); got != want {
		t.Fatalf("rebind mismatch:\n got %s\nwant %s", got, want)
	}
	if got := rebind(SQLite, q); got != q {
		t.Fatalf("sqlite query should be untouched, got %s", got)
	}
}
