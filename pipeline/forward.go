package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/pricewatch/messaging"
)

// Outcome reports what a Relay attempt did.
type Outcome int

const (
	// RelayDisabled: no destination is configured; the event counts as
	// handled so no later code retries.
	RelayDisabled Outcome = iota
	// RelayForwarded: the original message was forwarded intact.
	RelayForwarded
	// RelayCopied: forwarding was restricted at the origin, so a plain-text
	// copy was sent instead.
	RelayCopied
	// RelayFailed: neither the forward nor an applicable fallback succeeded.
	RelayFailed
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case RelayDisabled:
		return "disabled"
	case RelayForwarded:
		return "forwarded"
	case RelayCopied:
		return "copied"
	}
	return "failed"
}

// Forwarder relays a triggering message to the configured destination,
// at most once per event. Every failure class is logged and swallowed;
// nothing is retried and nothing aborts the caller.
type Forwarder struct {
	messenger messaging.Messenger
	dest      int64 // 0 disables forwarding
	logger    *slog.Logger
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets a custom logger.
func WithForwarderLogger(l *slog.Logger) ForwarderOption {
	return func(f *Forwarder) { f.logger = l }
}

// NewForwarder creates a Forwarder targeting dest. dest == 0 means no
// destination is configured: Relay becomes a logged no-op.
func NewForwarder(m messaging.Messenger, dest int64, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		messenger: m,
		dest:      dest,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Relay makes exactly one forward-or-copy attempt for the event. The copy
// fallback runs only when the primary attempt fails with
// messaging.ErrForwardRestricted; a failed fallback is logged and swallowed
// like every other failure.
func (f *Forwarder) Relay(ctx context.Context, ev messaging.Event) Outcome {
	if f.dest == 0 {
		f.logger.Warn("forward: no destination configured, skipping",
			"message_id", ev.MessageID)
		return RelayDisabled
	}

	err := f.messenger.Forward(ctx, f.dest, ev.ChatID, ev.MessageID)
	if err == nil {
		f.logger.Info("forward: relayed message",
			"message_id", ev.MessageID, "from", ev.ChatID, "to", f.dest)
		return RelayForwarded
	}

	switch {
	case errors.Is(err, messaging.ErrForwardRestricted):
		f.logger.Info("forward: origin restricts forwarding, sending copy",
			"message_id", ev.MessageID, "from", ev.ChatID)
		if sendErr := f.messenger.SendText(ctx, f.dest, ev.Text); sendErr != nil {
			f.logger.Error("forward: copy fallback failed",
				"message_id", ev.MessageID, "to", f.dest, "error", sendErr)
			return RelayFailed
		}
		f.logger.Info("forward: relayed copy",
			"message_id", ev.MessageID, "to", f.dest)
		return RelayCopied

	case errors.Is(err, messaging.ErrNotParticipant),
		errors.Is(err, messaging.ErrDestinationPrivate):
		f.logger.Error("forward: destination inaccessible — "+
			"check that the account is a member of the destination and the id is correct",
			"message_id", ev.MessageID, "to", f.dest, "error", err)

	case errors.Is(err, messaging.ErrWriteForbidden):
		f.logger.Error("forward: no permission to send in destination",
			"message_id", ev.MessageID, "to", f.dest, "error", err)

	default:
		f.logger.Error("forward: unexpected failure",
			"message_id", ev.MessageID, "from", ev.ChatID, "to", f.dest, "error", err)
	}
	return RelayFailed
}
