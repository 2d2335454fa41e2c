package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// WebhookConfig configures the HTTP leg between pricewatch and the chat
// bridge process.
type WebhookConfig struct {
	// ListenAddr is the address the inbound webhook server binds (e.g. ":8086").
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// Path is the URL path inbound events are POSTed to.
	Path string `yaml:"path" json:"path"`
	// Secret is an optional shared secret for HMAC-SHA256 verification.
	// When set, inbound requests must include an X-Signature-256 header with
	// the hex-encoded HMAC-SHA256 of the request body; outbound bridge
	// requests are signed the same way.
	Secret string `yaml:"secret" json:"secret,omitempty"`
	// BridgeURL is the base URL of the bridge's outbound API
	// (e.g. "http://127.0.0.1:9090"). Empty disables BridgeMessenger.
	BridgeURL string `yaml:"bridge_url" json:"bridge_url,omitempty"`
	// MaxBodyBytes limits the inbound request body size. Defaults to 1MB.
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes,omitempty"`
}

func (c *WebhookConfig) defaults() {
	if c.Path == "" {
		c.Path = "/inbound"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20 // 1MB
	}
}

// WebhookSource receives inbound events as JSON POST bodies from the bridge.
type WebhookSource struct {
	config WebhookConfig
	logger *slog.Logger

	mu         sync.Mutex
	closed     bool
	server     *http.Server
	inbound    chan Event
	closeCh    chan struct{}
	serveErr   chan error
	listenOnce sync.Once
}

// SourceOption configures a WebhookSource.
type SourceOption func(*WebhookSource)

// WithSourceLogger sets a custom logger.
func WithSourceLogger(l *slog.Logger) SourceOption {
	return func(s *WebhookSource) { s.logger = l }
}

// NewWebhookSource creates a WebhookSource. The HTTP server starts on the
// first call to Listen.
func NewWebhookSource(cfg WebhookConfig, opts ...SourceOption) (*WebhookSource, error) {
	cfg.defaults()
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("messaging: webhook listen_addr is required")
	}
	s := &WebhookSource{
		config:   cfg,
		logger:   slog.Default(),
		inbound:  make(chan Event, 256),
		closeCh:  make(chan struct{}),
		serveErr: make(chan error, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// verifyHMAC checks the X-Signature-256 header against the body.
// Returns true if verification passes or no secret is configured.
func verifyHMAC(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	// Strip optional "sha256=" prefix (GitHub-style).
	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// Listen starts the HTTP server (once) and returns the inbound event stream.
// The stream is closed when ctx is cancelled, Close is called, or the server
// fails to start (the failure is logged with the configured logger).
func (s *WebhookSource) Listen(ctx context.Context) <-chan Event {
	ch := make(chan Event)

	s.listenOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc(s.config.Path, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes))
			if err != nil {
				http.Error(w, "read body failed", http.StatusBadRequest)
				return
			}

			if !verifyHMAC(s.config.Secret, body, r.Header.Get("X-Signature-256")) {
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}

			var ev Event
			if err := json.Unmarshal(body, &ev); err != nil {
				http.Error(w, "invalid JSON", http.StatusBadRequest)
				return
			}
			if ev.Timestamp.IsZero() {
				ev.Timestamp = time.Now()
			}

			select {
			case s.inbound <- ev:
				w.WriteHeader(http.StatusAccepted)
			default:
				http.Error(w, "buffer full", http.StatusServiceUnavailable)
			}
		})

		s.mu.Lock()
		s.server = &http.Server{
			Addr:              s.config.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16, // 64 KiB
		}
		s.mu.Unlock()

		go func() {
			err := s.server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("messaging: webhook server failed",
					"addr", s.config.ListenAddr, "error", err)
				s.serveErr <- err
			}
		}()
	})

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closeCh:
				return
			case <-s.serveErr:
				// Bind or serve failure: the stream ends so the caller's
				// event loop terminates instead of idling forever.
				return
			case ev, ok := <-s.inbound:
				if !ok {
					return
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				case <-s.closeCh:
					return
				}
			}
		}
	}()

	return ch
}

// Close shuts down the webhook server. Safe to call more than once.
func (s *WebhookSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closeCh)
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// bridgeError is the JSON error envelope the bridge returns on failures.
type bridgeError struct {
	Error string `json:"error"`
}

// BridgeMessenger implements Messenger against the bridge's HTTP API.
//
// The bridge exposes POST /forward, POST /send and GET /resolve, and maps
// the substrate's delivery failures to stable error codes in a JSON body:
// "not_participant", "destination_private", "write_forbidden",
// "forward_restricted". Anything else is reported as-is.
type BridgeMessenger struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewBridgeMessenger creates a Messenger speaking to the bridge at baseURL.
func NewBridgeMessenger(cfg WebhookConfig) (*BridgeMessenger, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("messaging: bridge_url is required")
	}
	return &BridgeMessenger{
		baseURL: cfg.BridgeURL,
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// ResolveName resolves a chat id to its display title via the bridge.
func (m *BridgeMessenger) ResolveName(ctx context.Context, chatID int64) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	err := m.call(ctx, http.MethodGet,
		fmt.Sprintf("/resolve?chat_id=%d", chatID), nil, &out)
	if err != nil {
		return "", err
	}
	return out.Title, nil
}

// Forward relays message messageID from fromChat to dest.
func (m *BridgeMessenger) Forward(ctx context.Context, dest, fromChat, messageID int64) error {
	body := map[string]int64{
		"dest": dest, "from_chat": fromChat, "message_id": messageID,
	}
	return m.call(ctx, http.MethodPost, "/forward", body, nil)
}

// SendText sends a new plain-text message to dest.
func (m *BridgeMessenger) SendText(ctx context.Context, dest int64, text string) error {
	body := map[string]any{"dest": dest, "text": text}
	return m.call(ctx, http.MethodPost, "/send", body, nil)
}

func (m *BridgeMessenger) call(ctx context.Context, method, path string, in, out any) error {
	var reqBody []byte
	if in != nil {
		var err error
		reqBody, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("messaging: marshal bridge request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("messaging: build bridge request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.secret != "" {
		mac := hmac.New(sha256.New, []byte(m.secret))
		mac.Write(reqBody)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("messaging: bridge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("messaging: decode bridge response: %w", err)
			}
		}
		return nil
	}

	var be bridgeError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &be)
	switch be.Error {
	case "not_participant":
		return fmt.Errorf("messaging: bridge %s: %w", path, ErrNotParticipant)
	case "destination_private":
		return fmt.Errorf("messaging: bridge %s: %w", path, ErrDestinationPrivate)
	case "write_forbidden":
		return fmt.Errorf("messaging: bridge %s: %w", path, ErrWriteForbidden)
	case "forward_restricted":
		return fmt.Errorf("messaging: bridge %s: %w", path, ErrForwardRestricted)
	}
	return fmt.Errorf("messaging: bridge %s returned %d: %s", path, resp.StatusCode, string(raw))
}
