// Package pipeline turns inbound channel messages into price observations
// and relays the triggering message to the distribution destination.
//
// Per event the pipeline runs a fixed gate sequence: resolve the source id,
// check the whitelist, reject empty and multi-price texts, then scan the
// watched products in catalog order. The first product whose name appears
// in the text ends the scan — with an observation and a relay when a price
// was extracted, silently otherwise. At most one observation is written and
// at most one relay is attempted per inbound message.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/hazyhaar/pricewatch/catalog"
	"github.com/hazyhaar/pricewatch/chatid"
	"github.com/hazyhaar/pricewatch/detect"
	"github.com/hazyhaar/pricewatch/messaging"
	"github.com/hazyhaar/pricewatch/store"
)

// Currency is the fixed currency code recorded with every observation.
const Currency = "BRL"

// Pipeline is the per-event detection state machine. It holds no per-event
// state of its own; everything it reads lives in the catalog snapshot.
type Pipeline struct {
	cat    *catalog.Catalog
	st     *store.Store
	fwd    *Forwarder
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline reading from cat, writing observations to st and
// relaying through fwd.
func New(cat *catalog.Catalog, st *store.Store, fwd *Forwarder, opts ...Option) *Pipeline {
	p := &Pipeline{
		cat:    cat,
		st:     st,
		fwd:    fwd,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SourceID resolves an event to the identifier used for whitelist checks.
// Channel peers are reported by the substrate in short positive form and
// are qualified here; group peers are used as-is. Events without a
// channel/group source reference resolve to ok == false.
func SourceID(ev messaging.Event) (int64, bool) {
	switch ev.PeerKind {
	case messaging.PeerChannel:
		return chatid.Qualify(ev.PeerID), true
	case messaging.PeerGroup:
		return ev.PeerID, true
	}
	return 0, false
}

// Handle runs one inbound event through the gate sequence. It never returns
// an error: persistence failures are logged and forwarding is attempted
// anyway, because the relay is the user-facing effect that matters more
// than a lost history row.
func (p *Pipeline) Handle(ctx context.Context, ev messaging.Event) {
	sourceID, ok := SourceID(ev)
	if !ok {
		return
	}

	if !p.cat.IsWhitelisted(sourceID) {
		// The common case: most traffic is from unlisted sources.
		p.logger.Debug("pipeline: source not whitelisted",
			"source", sourceID, "message_id", ev.MessageID)
		return
	}

	if ev.Text == "" {
		return
	}

	p.logger.Info("pipeline: message from whitelisted source",
		"source", sourceID, "message_id", ev.MessageID)

	if detect.IsMultiItemPost(ev.Text) {
		p.logger.Info("pipeline: skipping multi-item post",
			"source", sourceID, "message_id", ev.MessageID)
		return
	}

	for _, product := range p.cat.Products() {
		if !detect.ContainsProduct(ev.Text, product.Name) {
			continue
		}

		price, found := detect.ExtractPrice(ev.Text)
		if !found {
			// The first name match is authoritative even without a price:
			// a later, weaker match must not supersede an intended but
			// unpriced mention.
			p.logger.Info("pipeline: product matched but no price extracted",
				"product", product.Name, "product_id", product.ID,
				"source", sourceID, "message_id", ev.MessageID)
			return
		}

		p.logger.Info("pipeline: price detected",
			"product", product.Name, "product_id", product.ID,
			"price", price, "source", sourceID, "message_id", ev.MessageID)

		err := p.st.AddObservation(ctx, store.Observation{
			ProductID:  product.ID,
			Price:      price,
			Currency:   Currency,
			SourceText: ev.Text,
			SourceChat: strconv.FormatInt(sourceID, 10),
		})
		if err != nil {
			// Observation loss is acceptable; the relay still happens.
			p.logger.Error("pipeline: persist observation failed",
				"product_id", product.ID, "error", err)
		}

		p.fwd.Relay(ctx, ev)
		return
	}
}
