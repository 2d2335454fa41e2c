// Entry point for the pricewatch service: webhook event loop, detection
// pipeline, admin command surface and the HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pricewatch/admin"
	"github.com/hazyhaar/pricewatch/api"
	"github.com/hazyhaar/pricewatch/catalog"
	"github.com/hazyhaar/pricewatch/config"
	"github.com/hazyhaar/pricewatch/dbopen"
	"github.com/hazyhaar/pricewatch/messaging"
	"github.com/hazyhaar/pricewatch/pipeline"
	"github.com/hazyhaar/pricewatch/store"
	"github.com/hazyhaar/pricewatch/watch"
)

func main() {
	cfgPath := "pricewatch.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Secrets can come from the environment instead of the config file.
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("API_PASSWORD_HASH"); v != "" {
		cfg.API.PasswordHash = v
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// State DB.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open db", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Init(db); err != nil {
		slog.Error("init schema", "error", err)
		os.Exit(1)
	}
	st := store.New(db)

	// Catalog snapshot.
	cat := catalog.New(st, catalog.WithLogger(logger))
	if err := cat.Reload(ctx); err != nil {
		slog.Error("initial catalog load", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "products", len(cat.Products()))

	// Outbound messenger (optional — without a bridge URL the service
	// still detects and records prices, it just cannot forward or reply).
	var messenger messaging.Messenger
	if cfg.Webhook.BridgeURL != "" {
		bm, err := messaging.NewBridgeMessenger(cfg.Webhook)
		if err != nil {
			slog.Error("bridge messenger", "error", err)
			os.Exit(1)
		}
		messenger = bm
	} else {
		slog.Warn("no bridge_url configured; forwarding and admin replies disabled")
	}

	// Verify the destination is reachable before entering the loop. A
	// failure here is the usual "bot not in the destination chat" setup
	// mistake, so log guidance but keep running.
	if messenger != nil && cfg.DestinationChatID != 0 {
		name, err := messenger.ResolveName(ctx, cfg.DestinationChatID)
		if err != nil {
			slog.Warn("destination chat not reachable; add the account to the chat and restart, or forwards will fail",
				"chat_id", cfg.DestinationChatID, "error", err)
		} else {
			slog.Info("forwarding to", "chat_id", cfg.DestinationChatID, "name", name)
		}
	}

	dest := cfg.DestinationChatID
	if messenger == nil {
		dest = 0 // Relay degrades to a logged no-op without an outbound leg.
	}
	fwd := pipeline.NewForwarder(messenger, dest,
		pipeline.WithForwarderLogger(logger))
	pipe := pipeline.New(cat, st, fwd, pipeline.WithLogger(logger))

	var adm *admin.Handler
	if messenger != nil && cfg.AdminUserID != 0 {
		adm = admin.New(st, cat, messenger, cfg.AdminUserID, admin.WithLogger(logger))
	}

	// React to out-of-band DB edits (sqlite3 CLI, another process).
	if cfg.WatchIntervalSeconds > 0 {
		w := watch.New(st.DB(), watch.Options{
			Interval: time.Duration(cfg.WatchIntervalSeconds) * time.Second,
			Logger:   logger,
		})
		go w.OnChange(ctx, func() error { return cat.Reload(ctx) })
	}

	// HTTP API.
	var apiServer *http.Server
	if cfg.API.Listen != "" {
		opts := []api.Option{api.WithLogger(logger)}
		if cfg.API.PasswordHash != "" {
			opts = append(opts, api.WithBasicAuth(cfg.API.User, []byte(cfg.API.PasswordHash)))
		}
		srv := api.NewServer(st, cat, opts...)
		apiServer = &http.Server{
			Addr:              cfg.API.Listen,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("api listening", "addr", cfg.API.Listen)
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("api server", "error", err)
			}
		}()
	}

	// Inbound events.
	source, err := messaging.NewWebhookSource(cfg.Webhook,
		messaging.WithSourceLogger(logger))
	if err != nil {
		slog.Error("webhook source", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	slog.Info("pricewatch started",
		"webhook", cfg.Webhook.ListenAddr,
		"destination", cfg.DestinationChatID,
		"admin", cfg.AdminUserID != 0 && messenger != nil)

	for ev := range source.Listen(ctx) {
		if ev.IsPrivate {
			if adm != nil {
				adm.Handle(ctx, ev)
			}
			continue
		}
		pipe.Handle(ctx, ev)
	}

	// The stream also ends when the webhook server fails to start; that is
	// an error exit, not a shutdown.
	exitCode := 0
	if ctx.Err() == nil {
		slog.Error("event stream ended unexpectedly")
		exitCode = 1
	}

	// Graceful shutdown.
	if apiServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("api shutdown", "error", err)
		}
	}
	slog.Info("pricewatch stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
