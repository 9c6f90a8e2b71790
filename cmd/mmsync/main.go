package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/api"
	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/config"
	"github.com/ageniuscoder/mmchat/client/internal/conversations"
	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/ageniuscoder/mmchat/client/internal/logging"
	"github.com/ageniuscoder/mmchat/client/internal/messages"
	"github.com/ageniuscoder/mmchat/client/internal/metrics"
	"github.com/ageniuscoder/mmchat/client/internal/offline"
	"github.com/ageniuscoder/mmchat/client/internal/presence"
	"github.com/ageniuscoder/mmchat/client/internal/remote"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
	"github.com/ageniuscoder/mmchat/client/internal/storage/postgres"
	"github.com/ageniuscoder/mmchat/client/internal/storage/sqlite"
	"github.com/ageniuscoder/mmchat/client/internal/typing"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

type database interface {
	storage.KV
	Migrate() error
	Close() error
}

func openStore(cfg config.Config) (database, error) {
	if cfg.StorageDriver == "postgres" {
		return postgres.New(cfg.PostgresDsn)
	}
	return sqlite.New(cfg.SQLITEDsn)
}

func main() {
	migrate := flag.Bool("migrate", false, "run migrations and exits")
	flag.Parse()
	//config part
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file, using the environment", "error", err)
	}
	cfg := config.MustLoad()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	//database handling
	db, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Error loading to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed %v", err)
	}
	if *migrate {
		logger.Info("Migration Completed")
		return
	}

	id, err := auth.IdentityFromToken(cfg.AuthToken)
	if err != nil {
		log.Fatalf("Invalid AUTH_TOKEN: %v", err)
	}
	if id.Expired(time.Now()) {
		logger.Warn("auth token has expired; the server will refuse it", "expires_at", id.ExpiresAt)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	mx := metrics.New()
	rc := remote.New(cfg.ServerAPIURL, cfg.AuthToken, nil, logger)

	queue, err := offline.New(ctx, db, cfg.SendRetryCeiling, bus, logger)
	if err != nil {
		log.Fatalf("Loading offline queue: %v", err)
	}
	convs := conversations.NewStore(db, bus, logger)
	if err := convs.Restore(ctx); err != nil {
		logger.Warn("conversation snapshot not restored", "error", err)
	}

	manager := chat.NewManager(&chat.WSDialer{URL: cfg.ServerWSURL, Token: cfg.AuthToken, Logger: logger}, chat.Deps{
		Self:          id.UserID,
		Messages:      messages.NewStore(id.UserID, rc, cfg.PageSize, bus, logger),
		Conversations: convs,
		Queue:         queue,
		Remote:        rc,
		KV:            db,
		Metrics:       mx,
		Bus:           bus,
		Logger:        logger,
	}, chat.Options{
		ReconnectBase:     cfg.ReconnectBase,
		ReconnectFactor:   cfg.ReconnectFactor,
		ReconnectMax:      cfg.ReconnectMax,
		ReconnectAttempts: cfg.ReconnectAttempts,
		AckTimeout:        cfg.AckTimeout,
		RetryCeiling:      cfg.SendRetryCeiling,
		TypingTTL:         cfg.TypingRemoteTTL,
		PageSize:          cfg.PageSize,
	})
	manager.Typing = typing.New(manager.TypingEmitter(), typing.Options{
		EmitInterval: cfg.TypingEmitInterval,
		IdleStop:     cfg.TypingIdleStop,
		RemoteTTL:    cfg.TypingRemoteTTL,
	}, bus, logger)
	manager.Presence = presence.New(id.UserID, manager.PresenceTransport(), db, presence.Options{
		InactivityTimeout: cfg.InactivityTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		CacheTTL:          cfg.PresenceCacheTTL,
	}, bus, logger)
	manager.Presence.Restore(ctx)
	defer manager.Presence.Stop()

	manager.Connect(ctx)
	defer manager.Disconnect()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewRouter(api.Options{
			Manager:    manager,
			Uploader:   rc,
			Identity:   id,
			LocalToken: cfg.LocalAPIToken,
			Logger:     logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("local api listening", "addr", cfg.Addr, "user_id", id.UserID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("local api stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("local api shutdown", "error", err)
	}
}
