package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hazyhaar/pricewatch/messaging"
	"github.com/hazyhaar/pricewatch/pipeline"
)

func relayEvent() messaging.Event {
	return messaging.Event{
		MessageID: 7, ChatID: -10012345,
		PeerKind: messaging.PeerChannel, PeerID: 12345,
		Text: "Widget R$ 99,90",
	}
}

func TestRelayForwarded(t *testing.T) {
	m := &stubMessenger{}
	fwd := pipeline.NewForwarder(m, 555)

	if got := fwd.Relay(context.Background(), relayEvent()); got != pipeline.RelayForwarded {
		t.Fatalf("outcome = %s, want forwarded", got)
	}
	if m.forwards != 1 || m.sends != 0 {
		t.Fatalf("forwards = %d, sends = %d, want 1/0", m.forwards, m.sends)
	}
}

func TestRelayDisabledWithoutDestination(t *testing.T) {
	m := &stubMessenger{}
	fwd := pipeline.NewForwarder(m, 0)

	if got := fwd.Relay(context.Background(), relayEvent()); got != pipeline.RelayDisabled {
		t.Fatalf("outcome = %s, want disabled", got)
	}
	if m.forwards != 0 || m.sends != 0 {
		t.Fatal("disabled forwarder still made outbound calls")
	}
}

func TestRelayRestrictedFallsBackToCopy(t *testing.T) {
	m := &stubMessenger{
		forwardErr: fmt.Errorf("bridge: %w", messaging.ErrForwardRestricted),
	}
	fwd := pipeline.NewForwarder(m, 555)

	ev := relayEvent()
	if got := fwd.Relay(context.Background(), ev); got != pipeline.RelayCopied {
		t.Fatalf("outcome = %s, want copied", got)
	}
	if m.forwards != 1 {
		t.Fatalf("forwards = %d, want 1", m.forwards)
	}
	if m.sends != 1 {
		t.Fatalf("sends = %d, want exactly 1 fallback copy", m.sends)
	}
	if m.lastText != ev.Text {
		t.Fatalf("copy text = %q, want original text", m.lastText)
	}
}

func TestRelayRestrictedCopyAlsoFails(t *testing.T) {
	m := &stubMessenger{
		forwardErr: fmt.Errorf("bridge: %w", messaging.ErrForwardRestricted),
		sendErr:    errors.New("network down"),
	}
	fwd := pipeline.NewForwarder(m, 555)

	if got := fwd.Relay(context.Background(), relayEvent()); got != pipeline.RelayFailed {
		t.Fatalf("outcome = %s, want failed", got)
	}
	if m.sends != 1 {
		t.Fatalf("sends = %d, want a single fallback attempt, no retries", m.sends)
	}
}

func TestRelayAccessFailuresDoNotFallBack(t *testing.T) {
	for _, cause := range []error{
		messaging.ErrNotParticipant,
		messaging.ErrDestinationPrivate,
		messaging.ErrWriteForbidden,
		errors.New("flood wait"),
	} {
		m := &stubMessenger{forwardErr: fmt.Errorf("bridge: %w", cause)}
		fwd := pipeline.NewForwarder(m, 555)

		if got := fwd.Relay(context.Background(), relayEvent()); got != pipeline.RelayFailed {
			t.Errorf("cause %v: outcome = %s, want failed", cause, got)
		}
		if m.sends != 0 {
			t.Errorf("cause %v: copy fallback ran, want none", cause)
		}
		if m.forwards != 1 {
			t.Errorf("cause %v: forwards = %d, want 1", cause, m.forwards)
		}
	}
}
