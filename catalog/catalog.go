// Package catalog holds the in-memory snapshot the detection pipeline reads
// on every event: the watched product list and the normalized source
// whitelist. The snapshot is rebuilt from the store by Reload — once at
// startup, synchronously after every admin mutation, and from the watch
// loop when another process writes the database.
//
// Reads never touch the database. Reload swaps the whole snapshot under a
// write lock, so a concurrent reader sees either the old or the new state,
// never a half-built one.
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/pricewatch/chatid"
	"github.com/hazyhaar/pricewatch/store"
)

// Catalog is the reloadable snapshot. The zero value is unusable; use New.
type Catalog struct {
	st     *store.Store
	logger *slog.Logger

	mu        sync.RWMutex
	products  []store.Product
	whitelist map[int64]struct{}
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// New creates an empty Catalog over the given store. Call Reload before
// serving events; until then every whitelist check fails and the product
// list is empty.
func New(st *store.Store, opts ...Option) *Catalog {
	c := &Catalog{
		st:        st,
		logger:    slog.Default(),
		whitelist: make(map[int64]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Reload rebuilds the snapshot from the store. On any store failure the
// snapshot is reset to empty rather than left stale: matching against a
// possibly-deleted product is worse than matching nothing until the next
// successful reload.
func (c *Catalog) Reload(ctx context.Context) error {
	products, err := c.st.ListProducts(ctx)
	if err != nil {
		c.logger.Error("catalog: reload products failed, resetting to empty", "error", err)
		c.replace(nil, nil)
		return err
	}

	sources, err := c.st.ListSources(ctx)
	if err != nil {
		c.logger.Error("catalog: reload whitelist failed, resetting to empty", "error", err)
		c.replace(nil, nil)
		return err
	}

	whitelist := make(map[int64]struct{}, len(sources)*2)
	for _, id := range sources {
		for _, v := range chatid.Expand(id) {
			whitelist[v] = struct{}{}
		}
	}

	c.replace(products, whitelist)
	c.logger.Info("catalog: reloaded",
		"products", len(products),
		"whitelist", len(whitelist))
	return nil
}

func (c *Catalog) replace(products []store.Product, whitelist map[int64]struct{}) {
	if whitelist == nil {
		whitelist = make(map[int64]struct{})
	}
	c.mu.Lock()
	c.products = products
	c.whitelist = whitelist
	c.mu.Unlock()
}

// Products returns the current product snapshot in store insertion order.
// The returned slice must not be mutated.
func (c *Catalog) Products() []store.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products
}

// IsWhitelisted reports whether chatID names a whitelisted source under any
// of its encodings. Both sides of the comparison are expanded: the stored
// ids were expanded at reload, and the queried id is expanded here.
func (c *Catalog) IsWhitelisted(chatID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range chatid.Expand(chatID) {
		if _, ok := c.whitelist[v]; ok {
			return true
		}
	}
	return false
}
