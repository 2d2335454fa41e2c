// Package admin implements the operator command surface: slash commands
// sent to the bot in a private chat by the configured admin account.
// Every successful mutation reloads the catalog before the reply is sent,
// so the pipeline sees the change immediately.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/pricewatch/catalog"
	"github.com/hazyhaar/pricewatch/messaging"
	"github.com/hazyhaar/pricewatch/store"
)

// Command identifies a parsed admin command.
type Command int

const (
	CmdUnknown Command = iota
	CmdAddProduct
	CmdListProducts
	CmdDelProduct
	CmdAddChannel
	CmdListChannels
	CmdDelChannel
	CmdHelp
)

var commandNames = map[string]Command{
	"/add_product":   CmdAddProduct,
	"/list_products": CmdListProducts,
	"/del_product":   CmdDelProduct,
	"/add_channel":   CmdAddChannel,
	"/list_channels": CmdListChannels,
	"/del_channel":   CmdDelChannel,
	"/help":          CmdHelp,
}

// ParseCommand splits text into a command and its argument string.
// Text not starting with '/' parses to CmdUnknown with empty args.
func ParseCommand(text string) (Command, string) {
	if !strings.HasPrefix(text, "/") {
		return CmdUnknown, ""
	}
	name, args, _ := strings.Cut(text, " ")
	cmd, ok := commandNames[name]
	if !ok {
		return CmdUnknown, ""
	}
	return cmd, strings.TrimSpace(args)
}

var chatIDRe = regexp.MustCompile(`^-?\d+$`)

const helpText = `pricewatch commands (send from the admin account):

Products:
  /add_product <name>
  /list_products
  /del_product <id>

Channels:
  /add_channel <id>
  /list_channels
  /del_channel <id>

  /help - shows this message`

// Handler executes admin commands against the store and replies through the
// messenger.
type Handler struct {
	st       *store.Store
	cat      *catalog.Catalog
	msgr     messaging.Messenger
	adminID  int64
	logger   *slog.Logger
	handlers map[Command]func(ctx context.Context, ev messaging.Event, args string)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New creates a Handler accepting commands from adminID. adminID == 0
// disables the surface entirely.
func New(st *store.Store, cat *catalog.Catalog, msgr messaging.Messenger, adminID int64, opts ...Option) *Handler {
	h := &Handler{
		st:      st,
		cat:     cat,
		msgr:    msgr,
		adminID: adminID,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	// One entry per Command value; ParseCommand can only produce these.
	h.handlers = map[Command]func(context.Context, messaging.Event, string){
		CmdAddProduct:   h.addProduct,
		CmdListProducts: h.listProducts,
		CmdDelProduct:   h.delProduct,
		CmdAddChannel:   h.addChannel,
		CmdListChannels: h.listChannels,
		CmdDelChannel:   h.delChannel,
		CmdHelp:         h.help,
		CmdUnknown:      h.unknown,
	}
	return h
}

// Handle processes one inbound event. Only private-chat messages from the
// configured admin are acted on; everything else is ignored silently.
// Non-command text from the admin is also ignored.
func (h *Handler) Handle(ctx context.Context, ev messaging.Event) {
	if h.adminID == 0 || !ev.IsPrivate || ev.SenderID != h.adminID {
		return
	}
	if !strings.HasPrefix(ev.Text, "/") {
		return
	}

	h.logger.Info("admin: command received", "sender", ev.SenderID, "text", ev.Text)
	cmd, args := ParseCommand(ev.Text)
	h.handlers[cmd](ctx, ev, args)
}

// reply sends text back to the chat the command arrived in. Send failures
// are logged, never propagated — the mutation already happened.
func (h *Handler) reply(ctx context.Context, ev messaging.Event, text string) {
	if err := h.msgr.SendText(ctx, ev.ChatID, text); err != nil {
		h.logger.Error("admin: reply failed", "chat", ev.ChatID, "error", err)
	}
}

// reload refreshes the catalog after a mutation, before the caller replies.
func (h *Handler) reload(ctx context.Context) {
	if err := h.cat.Reload(ctx); err != nil {
		h.logger.Error("admin: catalog reload after mutation failed", "error", err)
	}
}

func (h *Handler) addProduct(ctx context.Context, ev messaging.Event, args string) {
	if args == "" {
		h.reply(ctx, ev, "Usage: /add_product <product name>")
		return
	}
	p, err := h.st.AddProduct(ctx, args)
	if err != nil {
		h.logger.Error("admin: add product failed", "name", args, "error", err)
		h.reply(ctx, ev, fmt.Sprintf("Error adding product: %v", err))
		return
	}
	h.reload(ctx)
	h.reply(ctx, ev, fmt.Sprintf("Product %q (id %d) added.", p.Name, p.ID))
}

func (h *Handler) listProducts(ctx context.Context, ev messaging.Event, _ string) {
	products := h.cat.Products()
	if len(products) == 0 {
		h.reply(ctx, ev, "No products watched.")
		return
	}
	var b strings.Builder
	b.WriteString("Watched products:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "- %d: %s\n", p.ID, p.Name)
	}
	h.reply(ctx, ev, b.String())
}

func (h *Handler) delProduct(ctx context.Context, ev messaging.Event, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		h.reply(ctx, ev, "Usage: /del_product <product_id>")
		return
	}
	name, ok, err := h.st.DeleteProduct(ctx, id)
	if err != nil {
		h.logger.Error("admin: delete product failed", "id", id, "error", err)
		h.reply(ctx, ev, fmt.Sprintf("Error deleting product: %v", err))
		return
	}
	if !ok {
		h.reply(ctx, ev, fmt.Sprintf("Product id %d not found.", id))
		return
	}
	h.reload(ctx)
	h.reply(ctx, ev, fmt.Sprintf("Product %q (id %d) deleted.", name, id))
}

func (h *Handler) addChannel(ctx context.Context, ev messaging.Event, args string) {
	if !chatIDRe.MatchString(args) {
		h.reply(ctx, ev, "Usage: /add_channel <channel_id>")
		return
	}
	chatID, _ := strconv.ParseInt(args, 10, 64)

	// Best effort: a name makes the confirmation readable, but an
	// unreachable channel is still added (the operator may add before the
	// account joins).
	name := fmt.Sprintf("id %d", chatID)
	if title, err := h.msgr.ResolveName(ctx, chatID); err == nil && title != "" {
		name = title
	} else if err != nil {
		h.logger.Warn("admin: could not resolve channel title", "chat", chatID, "error", err)
		h.reply(ctx, ev, fmt.Sprintf("Warning: could not verify channel %d. Adding anyway.", chatID))
	}

	if err := h.st.AddSource(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrDuplicateSource) {
			h.reply(ctx, ev, fmt.Sprintf("Channel %d is already whitelisted.", chatID))
			return
		}
		h.logger.Error("admin: add channel failed", "chat", chatID, "error", err)
		h.reply(ctx, ev, fmt.Sprintf("Error adding channel: %v", err))
		return
	}
	h.reload(ctx)
	h.reply(ctx, ev, fmt.Sprintf("Channel %q (%d) added to whitelist.", name, chatID))
}

func (h *Handler) listChannels(ctx context.Context, ev messaging.Event, _ string) {
	ids, err := h.st.ListSources(ctx)
	if err != nil {
		h.logger.Error("admin: list channels failed", "error", err)
		h.reply(ctx, ev, "Error fetching channel list.")
		return
	}
	if len(ids) == 0 {
		h.reply(ctx, ev, "No channels whitelisted.")
		return
	}
	var b strings.Builder
	b.WriteString("Whitelisted channels:\n")
	for _, id := range ids {
		name := ""
		if title, err := h.msgr.ResolveName(ctx, id); err == nil {
			name = title
		}
		if name == "" {
			name = "(name unavailable)"
		}
		fmt.Fprintf(&b, "- %d: %s\n", id, name)
	}
	h.reply(ctx, ev, b.String())
}

func (h *Handler) delChannel(ctx context.Context, ev messaging.Event, args string) {
	if !chatIDRe.MatchString(args) {
		h.reply(ctx, ev, "Usage: /del_channel <channel_id>")
		return
	}
	chatID, _ := strconv.ParseInt(args, 10, 64)

	ok, err := h.st.DeleteSource(ctx, chatID)
	if err != nil {
		h.logger.Error("admin: delete channel failed", "chat", chatID, "error", err)
		h.reply(ctx, ev, fmt.Sprintf("Error deleting channel: %v", err))
		return
	}
	if !ok {
		h.reply(ctx, ev, fmt.Sprintf("Channel %d was not whitelisted.", chatID))
		return
	}
	h.reload(ctx)
	h.reply(ctx, ev, fmt.Sprintf("Channel %d removed from whitelist.", chatID))
}

func (h *Handler) help(ctx context.Context, ev messaging.Event, _ string) {
	h.reply(ctx, ev, helpText)
}

func (h *Handler) unknown(ctx context.Context, ev messaging.Event, _ string) {
	h.reply(ctx, ev, "Unknown command. Send /help for a list of commands.")
}
