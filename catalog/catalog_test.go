package catalog_test

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pricewatch/catalog"
	"github.com/hazyhaar/pricewatch/dbopen"
	"github.com/hazyhaar/pricewatch/store"
)

func setup(t *testing.T) (*store.Store, *catalog.Catalog) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)
	return st, catalog.New(st)
}

func TestReloadAndRead(t *testing.T) {
	st, cat := setup(t)
	ctx := context.Background()

	if _, err := st.AddProduct(ctx, "Widget"); err != nil {
		t.Fatal(err)
	}
	if err := st.AddSource(ctx, 12345); err != nil {
		t.Fatal(err)
	}

	// Before reload: fail-safe-closed.
	if cat.IsWhitelisted(12345) {
		t.Fatal("whitelist non-empty before first reload")
	}
	if len(cat.Products()) != 0 {
		t.Fatal("products non-empty before first reload")
	}

	if err := cat.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if got := cat.Products(); len(got) != 1 || got[0].Name != "Widget" {
		t.Fatalf("products = %+v, want one Widget", got)
	}
	if !cat.IsWhitelisted(12345) {
		t.Fatal("short form not whitelisted")
	}
}

// Inserting a source under one encoding must make both encodings members.
func TestWhitelistEncodingRoundTrip(t *testing.T) {
	st, cat := setup(t)
	ctx := context.Background()

	if err := st.AddSource(ctx, 12345); err != nil { // short form stored
		t.Fatal(err)
	}
	if err := st.AddSource(ctx, -10067890); err != nil { // qualified form stored
		t.Fatal(err)
	}
	if err := cat.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	for _, id := range []int64{12345, -10012345, 67890, -10067890} {
		if !cat.IsWhitelisted(id) {
			t.Errorf("IsWhitelisted(%d) = false, want true", id)
		}
	}
	if cat.IsWhitelisted(99999) {
		t.Error("unrelated id reported whitelisted")
	}
}

func TestReloadPicksUpDeletes(t *testing.T) {
	st, cat := setup(t)
	ctx := context.Background()

	p, err := st.AddProduct(ctx, "Widget")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AddSource(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if err := cat.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	if _, _, err := st.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.DeleteSource(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if err := cat.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	if len(cat.Products()) != 0 {
		t.Fatal("deleted product still in snapshot")
	}
	if cat.IsWhitelisted(100) {
		t.Fatal("deleted source still whitelisted")
	}
}

func TestReloadFailureResetsToEmpty(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)
	cat := catalog.New(st)
	ctx := context.Background()

	if err := st.AddSource(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if err := cat.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if !cat.IsWhitelisted(100) {
		t.Fatal("source not whitelisted after reload")
	}

	// Break the store out from under the catalog.
	if _, err := db.Exec(`DROP TABLE watched_products`); err != nil {
		t.Fatal(err)
	}
	if err := cat.Reload(ctx); err == nil {
		t.Fatal("reload over a broken store returned nil error")
	}

	// Fail-safe-closed: no stale matching.
	if cat.IsWhitelisted(100) {
		t.Fatal("whitelist kept stale entries after failed reload")
	}
	if len(cat.Products()) != 0 {
		t.Fatal("products kept stale entries after failed reload")
	}
}
