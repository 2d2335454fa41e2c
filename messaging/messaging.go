// Package messaging defines the boundary to the chat substrate: the inbound
// event model, the outbound Messenger capability, and the delivery failure
// taxonomy the forwarding path reacts to.
//
// The substrate's session lifecycle (connect, authenticate, reconnect) lives
// outside this process. A bridge owns the real chat session and speaks to
// pricewatch over HTTP: inbound messages arrive through WebhookSource,
// outbound forwards and sends go through BridgeMessenger.
package messaging

import (
	"context"
	"errors"
	"time"
)

// PeerKind classifies the origin of an inbound event.
type PeerKind int

const (
	PeerNone    PeerKind = iota // no usable source reference
	PeerUser                    // private chat with a user
	PeerGroup                   // basic group chat
	PeerChannel                 // broadcast channel (or supergroup)
)

// String returns the lowercase kind name.
func (k PeerKind) String() string {
	switch k {
	case PeerUser:
		return "user"
	case PeerGroup:
		return "group"
	case PeerChannel:
		return "channel"
	}
	return "none"
}

// Event is one inbound message, normalized away from any platform SDK.
// PeerID carries the raw source reference as the substrate exposed it:
// for channels this may be the short positive form, which the pipeline
// qualifies before whitelist checks.
type Event struct {
	MessageID int64     `json:"message_id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id"`
	PeerKind  PeerKind  `json:"peer_kind"`
	PeerID    int64     `json:"peer_id"`
	IsPrivate bool      `json:"is_private"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSource emits inbound events. The returned channel is closed when ctx
// is cancelled or the source shuts down.
type EventSource interface {
	Listen(ctx context.Context) <-chan Event
}

// Delivery failure classes. Implementations wrap these so callers can
// select behaviour with errors.Is: only ErrForwardRestricted triggers the
// copy fallback, everything else is logged and swallowed.
var (
	// ErrNotParticipant: the bot account is not a member of the destination.
	ErrNotParticipant = errors.New("messaging: not a participant of destination")
	// ErrDestinationPrivate: the destination exists but is not accessible.
	ErrDestinationPrivate = errors.New("messaging: destination is private")
	// ErrWriteForbidden: the account lacks send permission in the destination.
	ErrWriteForbidden = errors.New("messaging: writing to destination forbidden")
	// ErrForwardRestricted: the origin chat forbids forwarding its content.
	ErrForwardRestricted = errors.New("messaging: forwarding restricted from origin")
)

// Messenger is the outbound capability the pipeline and the admin surface
// consume. All methods block until the substrate acknowledges or fails.
type Messenger interface {
	// ResolveName resolves a chat id to its display title.
	ResolveName(ctx context.Context, chatID int64) (string, error)

	// Forward relays an existing message (preserving origin metadata) from
	// fromChat to dest. Failures carry one of the taxonomy sentinels.
	Forward(ctx context.Context, dest, fromChat, messageID int64) error

	// SendText sends a new plain-text message to dest.
	SendText(ctx context.Context, dest int64, text string) error
}
