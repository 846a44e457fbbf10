// Package main boots the chara chat service and wires application dependencies.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/easeaico/project-chara/internal/character"
	"github.com/easeaico/project-chara/internal/chat"
	"github.com/easeaico/project-chara/internal/config"
	"github.com/easeaico/project-chara/internal/emotion"
	"github.com/easeaico/project-chara/internal/kv"
	"github.com/easeaico/project-chara/internal/llm"
	"github.com/easeaico/project-chara/internal/memory"
	"github.com/easeaico/project-chara/internal/prompt"
	"github.com/easeaico/project-chara/internal/relationship"
	"github.com/easeaico/project-chara/internal/repository"
	"github.com/easeaico/project-chara/internal/security"
	"github.com/easeaico/project-chara/internal/server"
	"github.com/easeaico/project-chara/internal/session"
	"github.com/easeaico/project-chara/internal/state"
	"github.com/easeaico/project-chara/internal/validate"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	slog.Info("configuration loaded", "addr", cfg.Addr(), "default_provider", cfg.DefaultProvider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, err := character.NewLoader(cfg.CharactersDir, cfg.CharacterCacheTTL)
	if err != nil {
		log.Fatalf("failed to open characters dir: %v", err)
	}

	connector, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize llm providers: %v", err)
	}
	slog.Info("llm providers ready", "providers", connector.AvailableProviders())

	var sessionStore kv.Store[session.Session]
	var stateStore kv.Store[state.CharacterState] = kv.NewMemory[state.CharacterState]()
	var archiver memory.Archiver
	var recaller memory.Recaller

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		sessionStore = kv.NewRedis[session.Session](client, "session", cfg.SessionTimeout)
		stateStore = kv.NewRedis[state.CharacterState](client, "state", 0)
		slog.Info("redis store enabled", "addr", cfg.RedisAddr)
	}

	if cfg.DatabaseURL != "" {
		var embedder memory.Embedder
		if cfg.GeminiAPIKey != "" {
			genaiEmbedder, err := memory.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
			if err != nil {
				slog.Warn("embedder unavailable, memories archive without vectors", "error", err)
			} else {
				embedder = genaiEmbedder
			}
		}

		store, err := repository.NewStore(ctx, cfg.DatabaseURL, embedder)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer store.Close()

		archiver = store.Memories
		recaller = store.Memories
		// The durable archive wins over Redis for session snapshots.
		sessionStore = store.Sessions
		slog.Info("postgres archive enabled")
	}

	sessions := session.NewManager(sessionStore, cfg.MaxSessions, cfg.SessionTimeout)
	sessions.StartCleanup(ctx, cfg.SessionCleanupPeriod)
	defer sessions.Close(context.Background())

	states := state.NewManager(stateStore)
	memories := memory.NewManager(archiver, recaller)
	emotions := emotion.NewManager()
	relationships := relationship.NewManager()
	validator := validate.NewValidator()

	svc := chat.NewService(chat.Deps{
		Characters:    loader,
		Sessions:      sessions,
		Emotions:      emotions,
		States:        states,
		Memories:      memories,
		Relationships: relationships,
		Prompts:       prompt.NewBuilder(),
		Validator:     validator,
		Generator:     connector,
		Filter:        security.NewContentFilter(cfg.MaxMessageLength, true),
		Limiter:       security.NewRateLimiter(cfg.RateLimitPerMinute),
	}, validate.LevelNormal)

	var auth *security.TokenAuth
	var users *security.UserRegistry
	if cfg.JWTSecret != "" {
		auth = security.NewTokenAuth(cfg.JWTSecret, 24*time.Hour)
		users = security.NewUserRegistry()
	}

	srv := server.New(server.Deps{
		Chat:          svc,
		Characters:    loader,
		Sessions:      sessions,
		States:        states,
		Memories:      memories,
		Relationships: relationships,
		Emotions:      emotions,
		Validator:     validator,
		Auth:          auth,
		Users:         users,
		Providers:     connector.AvailableProviders(),
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		fmt.Println("\n正在关闭...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
	}

	fmt.Println("服务已关闭")
}
