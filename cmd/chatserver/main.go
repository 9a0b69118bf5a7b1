package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dhruvxsingh/Converza/internal/auth"
	"github.com/dhruvxsingh/Converza/internal/config"
	"github.com/dhruvxsingh/Converza/internal/db"
	"github.com/dhruvxsingh/Converza/internal/message"
	"github.com/dhruvxsingh/Converza/internal/messaging"
	"github.com/dhruvxsingh/Converza/internal/presence"
	"github.com/dhruvxsingh/Converza/internal/ratelimit"
	"github.com/dhruvxsingh/Converza/internal/room"
	"github.com/dhruvxsingh/Converza/internal/user"
	"github.com/dhruvxsingh/Converza/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// --- PostgreSQL ---
	handle, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := db.Migrate(handle); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	store := message.NewPgStore(handle)
	users := user.NewStore(handle)
	verifier := auth.NewTokenVerifier(cfg.SecretKey, users)
	registry := room.NewRegistry()

	serverName := cfg.ServerName
	if serverName == "" {
		serverName, _ = os.Hostname()
	}
	if serverName == "" {
		serverName = "chat-1"
	}

	// --- Redis (optional: presence + rate limiting) ---
	var presenceStore *presence.Store
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		presenceStore, err = presence.NewStore(cfg.RedisAddr, serverName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		limiter = ratelimit.NewLimiter(presenceStore.Client())
	}

	// --- NATS (optional: room event publishing) ---
	var publisher *messaging.Publisher
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = cfg.NATSURL
		publisher, err = messaging.NewPublisher(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	serverConfig := ws.DefaultServerConfig()
	serverConfig.ListenAddr = cfg.ListenAddr
	serverConfig.MaxConnections = cfg.MaxConnections
	serverConfig.WriteTimeout = cfg.WriteTimeout
	serverConfig.PersistTimeout = cfg.PersistTimeout
	serverConfig.HeartbeatInterval = cfg.HeartbeatInterval
	serverConfig.HeartbeatTimeout = cfg.HeartbeatTimeout

	log.Printf("Converza messaging server starting")
	log.Printf("  listen_addr:     %s", serverConfig.ListenAddr)
	log.Printf("  max_connections: %d", serverConfig.MaxConnections)
	log.Printf("  write_timeout:   %s", serverConfig.WriteTimeout)
	log.Printf("  persist_timeout: %s", serverConfig.PersistTimeout)
	log.Printf("  redis_addr:      %s", orDisabled(cfg.RedisAddr))
	log.Printf("  nats_url:        %s", orDisabled(cfg.NATSURL))
	log.Printf("  server_name:     %s", serverName)

	server := ws.NewServer(serverConfig, ws.Deps{
		Registry:  registry,
		Store:     store,
		Verifier:  verifier,
		Presence:  presenceStore,
		Limiter:   limiter,
		Publisher: publisher,
	})

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if publisher != nil {
			publisher.Close()
		}
		if presenceStore != nil {
			if err := presenceStore.Close(); err != nil {
				log.Printf("presence store close error: %v", err)
			}
		}
		if err := handle.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func orDisabled(v string) string {
	if v == "" {
		return "(disabled)"
	}
	return v
}
